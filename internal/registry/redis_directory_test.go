package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/config"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/pubsub"
)

// unreachableDirectory points at a port nothing listens on.
func unreachableDirectory(t *testing.T) *RedisDirectory {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return newRedisDirectory(client, config.DirectoryConfig{
		Prefix:            "relay:directory",
		KeyTTL:            30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
	}, "10.0.0.1:6058")
}

func TestRedisDirectory_KeyFor(t *testing.T) {
	d := unreachableDirectory(t)
	assert.Equal(t, "relay:directory:room:lobby", d.keyFor("lobby"))
}

func TestRedisDirectory_HandleIgnoresMemberEvents(t *testing.T) {
	d := unreachableDirectory(t)

	for _, typ := range []string{pubsub.EventMemberJoined, pubsub.EventMemberLeft, pubsub.EventMemberTimedOut} {
		evt, err := pubsub.NewEvent(typ, "lobby", nil)
		require.NoError(t, err)
		assert.NoError(t, d.Handle(context.Background(), evt))
	}
}

func TestRedisDirectory_RegisterFailure(t *testing.T) {
	d := unreachableDirectory(t)

	evt, err := pubsub.NewEvent(pubsub.EventRoomCreated, "lobby", nil)
	require.NoError(t, err)

	err = d.Handle(context.Background(), evt)
	assert.ErrorContains(t, err, "failed to register room")
	assert.Empty(t, d.managedKeys)
}

func liveDirectory(t *testing.T, heartbeat time.Duration) (*RedisDirectory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return newRedisDirectory(client, config.DirectoryConfig{
		Prefix:            "relay:directory",
		KeyTTL:            30 * time.Second,
		HeartbeatInterval: heartbeat,
	}, "10.0.0.1:6058"), mr
}

func handle(t *testing.T, d *RedisDirectory, typ, roomName string) {
	t.Helper()
	evt, err := pubsub.NewEvent(typ, roomName, nil)
	require.NoError(t, err)
	require.NoError(t, d.Handle(context.Background(), evt))
}

func TestRedisDirectory_RoomLifecycle(t *testing.T) {
	d, mr := liveDirectory(t, time.Hour)
	t.Cleanup(func() { d.Close() })
	ctx := context.Background()
	key := d.keyFor("lobby")

	handle(t, d, pubsub.EventRoomCreated, "lobby")

	mr.CheckGet(t, key, "10.0.0.1:6058")
	assert.Equal(t, 30*time.Second, mr.TTL(key))
	addr, err := d.Lookup(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:6058", addr)

	handle(t, d, pubsub.EventRoomClosed, "lobby")

	assert.False(t, mr.Exists(key))
	assert.Empty(t, d.managedKeys)
	_, err = d.Lookup(ctx, "lobby")
	assert.ErrorIs(t, err, ErrRoomNotRegistered)
}

func TestRedisDirectory_KeyExpires(t *testing.T) {
	d, mr := liveDirectory(t, time.Hour)
	t.Cleanup(func() { d.Close() })

	handle(t, d, pubsub.EventRoomCreated, "lobby")
	mr.FastForward(31 * time.Second)

	_, err := d.Lookup(context.Background(), "lobby")
	assert.ErrorIs(t, err, ErrRoomNotRegistered)
}

func TestRedisDirectory_HeartbeatRefreshesKeys(t *testing.T) {
	d, mr := liveDirectory(t, 20*time.Millisecond)
	t.Cleanup(func() { d.Close() })

	handle(t, d, pubsub.EventRoomCreated, "lobby")
	handle(t, d, pubsub.EventRoomCreated, "den")
	lobby, den := d.keyFor("lobby"), d.keyFor("den")

	mr.SetTTL(lobby, time.Second)
	mr.Del(den)

	require.NoError(t, d.StartHeartbeat(context.Background()))

	assert.Eventually(t, func() bool {
		return mr.TTL(lobby) == 30*time.Second && mr.Exists(den)
	}, 2*time.Second, 10*time.Millisecond)

	// Closed rooms are no longer refreshed.
	handle(t, d, pubsub.EventRoomClosed, "den")
	time.Sleep(60 * time.Millisecond)
	mr.Del(den)
	time.Sleep(60 * time.Millisecond)
	assert.False(t, mr.Exists(den))
}

func TestRedisDirectory_CloseRemovesManagedKeys(t *testing.T) {
	d, mr := liveDirectory(t, 20*time.Millisecond)

	handle(t, d, pubsub.EventRoomCreated, "lobby")
	handle(t, d, pubsub.EventRoomCreated, "den")
	require.NoError(t, mr.Set("relay:directory:room:elsewhere", "10.0.0.9:6058"))

	require.NoError(t, d.Close())

	assert.False(t, mr.Exists(d.keyFor("lobby")))
	assert.False(t, mr.Exists(d.keyFor("den")))
	assert.True(t, mr.Exists("relay:directory:room:elsewhere"), "keys of other instances survive")
}
