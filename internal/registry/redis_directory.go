package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/config"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/log"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/pubsub"
)

type RedisDirectory struct {
	client            redis.UniversalClient
	advertiseAddress  string
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration
	managedKeys       map[string]struct{} // keys owned by this instance
	mu                sync.RWMutex
	cancel            context.CancelFunc
}

// NewRedisDirectory connects to Redis and returns a directory advertising
// advertiseAddress for every room registered through it.
func NewRedisDirectory(redisCfg config.RedisConfig, dirCfg config.DirectoryConfig, advertiseAddress string) (*RedisDirectory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Address,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisDirectory(client, dirCfg, advertiseAddress), nil
}

func newRedisDirectory(client redis.UniversalClient, dirCfg config.DirectoryConfig, advertiseAddress string) *RedisDirectory {
	return &RedisDirectory{
		client:            client,
		advertiseAddress:  advertiseAddress,
		prefix:            dirCfg.Prefix,
		keyTTL:            dirCfg.KeyTTL,
		heartbeatInterval: dirCfg.HeartbeatInterval,
		managedKeys:       make(map[string]struct{}),
	}
}

func (r *RedisDirectory) keyFor(roomName string) string {
	return fmt.Sprintf("%s:room:%s", r.prefix, roomName)
}

func (r *RedisDirectory) Register(ctx context.Context, roomName string) error {
	key := r.keyFor(roomName)

	if err := r.client.Set(ctx, key, r.advertiseAddress, r.keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to register room: %w", err)
	}

	r.mu.Lock()
	r.managedKeys[key] = struct{}{}
	r.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldRoom, roomName).Str("address", r.advertiseAddress).Msg("registered room")
	return nil
}

func (r *RedisDirectory) Deregister(ctx context.Context, roomName string) error {
	key := r.keyFor(roomName)

	r.mu.Lock()
	delete(r.managedKeys, key)
	r.mu.Unlock()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to deregister room: %w", err)
	}

	l := log.L()
	l.Debug().Str(log.FieldRoom, roomName).Msg("deregistered room")
	return nil
}

func (r *RedisDirectory) Lookup(ctx context.Context, roomName string) (string, error) {
	addr, err := r.client.Get(ctx, r.keyFor(roomName)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrRoomNotRegistered, roomName)
	}
	if err != nil {
		return "", fmt.Errorf("failed to lookup room: %w", err)
	}
	return addr, nil
}

// Name implements events.Sink.
func (r *RedisDirectory) Name() string {
	return "directory"
}

// Handle implements events.Sink: created rooms are registered and closed
// rooms removed.
func (r *RedisDirectory) Handle(ctx context.Context, event *pubsub.Event) error {
	switch event.Type {
	case pubsub.EventRoomCreated:
		return r.Register(ctx, event.RoomName)
	case pubsub.EventRoomClosed:
		return r.Deregister(ctx, event.RoomName)
	default:
		return nil
	}
}

func (r *RedisDirectory) StartHeartbeat(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.heartbeatLoop(ctx)
	l := log.L()
	l.Info().Dur("interval", r.heartbeatInterval).Dur("ttl", r.keyTTL).Msg("directory heartbeat started")
	return nil
}

func (r *RedisDirectory) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshKeys(ctx)
		}
	}
}

func (r *RedisDirectory) refreshKeys(ctx context.Context) {
	r.mu.RLock()
	keys := make([]string, 0, len(r.managedKeys))
	for k := range r.managedKeys {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	for _, key := range keys {
		if err := r.client.Set(ctx, key, r.advertiseAddress, r.keyTTL).Err(); err != nil {
			l := log.L()
			l.Error().Str("key", key).Err(err).Msg("failed to refresh key")
		}
	}
}

func (r *RedisDirectory) StopHeartbeat() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Close stops the heartbeat, removes every key this instance still owns and
// closes the client.
func (r *RedisDirectory) Close() error {
	r.StopHeartbeat()

	r.mu.Lock()
	keys := make([]string, 0, len(r.managedKeys))
	for k := range r.managedKeys {
		keys = append(keys, k)
	}
	r.managedKeys = make(map[string]struct{})
	r.mu.Unlock()

	if len(keys) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			l := log.L()
			l.Warn().Err(err).Int("keys", len(keys)).Msg("failed to remove directory keys on close")
		}
	}

	return r.client.Close()
}
