package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/signaling"
)

const (
	peerKeyPrefix   = "huddle:peer:"
	relayChanPrefix = "huddle:relay:"
)

// releaseScript deletes a claim only if it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends a claim only if it still belongs to the caller.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisRegistry shares peer names across directory instances. Claims
// expire after ttl unless refreshed, so a crashed instance frees its names.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: ttl}
}

func peerKey(name string) string { return peerKeyPrefix + name }

func (r *RedisRegistry) Claim(ctx context.Context, name, owner string) (bool, error) {
	ok, err := r.client.SetNX(ctx, peerKey(name), owner, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", name, err)
	}
	return ok, nil
}

func (r *RedisRegistry) Release(ctx context.Context, name, owner string) error {
	if err := releaseScript.Run(ctx, r.client, []string{peerKey(name)}, owner).Err(); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

func (r *RedisRegistry) Owner(ctx context.Context, name string) (string, error) {
	owner, err := r.client.Get(ctx, peerKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("owner of %s: %w", name, err)
	}
	return owner, nil
}

func (r *RedisRegistry) Refresh(ctx context.Context, owner string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	// Load once so the pipelined EVALSHA calls cannot miss.
	if err := refreshScript.Load(ctx, r.client).Err(); err != nil {
		return fmt.Errorf("load refresh script: %w", err)
	}
	pipe := r.client.Pipeline()
	for _, name := range names {
		refreshScript.EvalSha(ctx, pipe, []string{peerKey(name)}, owner, r.ttl.Milliseconds())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh claims: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Close() error { return nil }

// Relay carries signals between directory instances.
type Relay interface {
	Publish(ctx context.Context, instance string, msg *signaling.Message) error
	// Subscribe delivers messages addressed to instance until ctx ends.
	Subscribe(ctx context.Context, instance string) (<-chan *signaling.Message, error)
	Close() error
}

// RedisRelay is a Relay over Redis Pub/Sub with one channel per instance.
type RedisRelay struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisRelay(client *redis.Client, logger zerolog.Logger) *RedisRelay {
	return &RedisRelay{client: client, log: logger}
}

func relayChannel(instance string) string { return relayChanPrefix + instance }

func (r *RedisRelay) Publish(ctx context.Context, instance string, msg *signaling.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return r.client.Publish(ctx, relayChannel(instance), data).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, instance string) (<-chan *signaling.Message, error) {
	pubsub := r.client.Subscribe(ctx, relayChannel(instance))
	// Wait for the subscription so nothing published afterwards is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", instance, err)
	}

	out := make(chan *signaling.Message, 100)
	go r.processMessages(ctx, pubsub, out)
	return out, nil
}

func (r *RedisRelay) processMessages(ctx context.Context, pubsub *redis.PubSub, out chan<- *signaling.Message) {
	defer close(out)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var msg signaling.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.log.Warn().Err(err).Msg("bad relayed message")
				continue
			}
			select {
			case out <- &msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *RedisRelay) Close() error { return nil }
