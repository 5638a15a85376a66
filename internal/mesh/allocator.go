package mesh

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// DefaultClaimTimeout bounds a single registration attempt.
const DefaultClaimTimeout = 5 * time.Second

// ClaimSlot registers room-0, room-1, ... in order until one succeeds. A
// conflict moves on to the next slot; any other failure is fatal because an
// unresponsive substrate would fail every slot the same way.
func ClaimSlot(ctx context.Context, dir Directory, room string, slots int, claimTimeout time.Duration, logger zerolog.Logger) (Peer, Identity, error) {
	if slots <= 0 || slots > MaxSlots {
		slots = MaxSlots
	}
	if claimTimeout <= 0 {
		claimTimeout = DefaultClaimTimeout
	}

	for slot := 0; slot < slots; slot++ {
		id := Identity{Room: room, Slot: slot}

		claimCtx, cancel := context.WithTimeout(ctx, claimTimeout)
		peer, err := dir.Register(claimCtx, id.PeerName())
		cancel()

		switch {
		case err == nil:
			logger.Debug().Str("peer", id.PeerName()).Msg("slot claimed")
			return peer, id, nil
		case errors.Is(err, ErrIdentityTaken):
			logger.Debug().Str("peer", id.PeerName()).Msg("slot occupied")
			continue
		case ctx.Err() != nil:
			return nil, Identity{}, NewError("claim slot", ctx.Err())
		default:
			return nil, Identity{}, &Error{Op: "claim slot", Peer: id.PeerName(), Err: fmtFatal(err)}
		}
	}
	return nil, Identity{}, WrapError("claim slot", ErrRoomFull, room)
}

func fmtFatal(err error) error {
	if errors.Is(err, ErrTransportFatal) {
		return err
	}
	return errors.Join(ErrTransportFatal, err)
}
