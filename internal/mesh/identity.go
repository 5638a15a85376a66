package mesh

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxSlots bounds the number of participants in a room. Every participant
// links to every other one, so link count grows with the square of this.
const MaxSlots = 6

var roomPattern = regexp.MustCompile(`^[a-z0-9]+(?:[_-][a-z0-9]+)*$`)

// Identity is a claimed slot inside a room namespace.
type Identity struct {
	Room string
	Slot int
}

// PeerName is the name registered on the discovery substrate.
func (i Identity) PeerName() string { return PeerName(i.Room, i.Slot) }

func (i Identity) IsZero() bool { return i.Room == "" }

func (i Identity) String() string { return i.PeerName() }

func PeerName(room string, slot int) string {
	return fmt.Sprintf("%s-%d", room, slot)
}

// ParsePeerName splits a peer name back into room and slot.
func ParsePeerName(name string) (Identity, bool) {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 {
		return Identity{}, false
	}
	slot, err := strconv.Atoi(name[i+1:])
	if err != nil || slot < 0 || slot >= MaxSlots {
		return Identity{}, false
	}
	return Identity{Room: name[:i], Slot: slot}, true
}

// NormalizeRoom lower-cases a user supplied room id and joins words with
// single dashes, so "Team Sync" and "team-sync" name the same room.
func NormalizeRoom(raw string) (string, error) {
	room := strings.ToLower(strings.Join(strings.Fields(raw), "-"))
	if !roomPattern.MatchString(room) {
		return "", WrapError("normalize room", ErrInvalidRoom, raw)
	}
	return room, nil
}
