package store

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/domain"
)

// Requires Redis running on localhost:6379; skipped otherwise.
const testRedisURL = "redis://localhost:6379"

func setupRedisStore(t *testing.T) (*RedisStore, *redis.Client) {
	t.Helper()
	ctx := context.Background()

	opts, err := redis.ParseURL(testRedisURL)
	require.NoError(t, err)
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", testRedisURL, err)
	}

	s, err := NewRedisStore(ctx, testRedisURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
		raw.Close()
	})
	return s, raw
}

func cleanupRoom(t *testing.T, raw *redis.Client, id domain.RoomID) {
	t.Helper()
	t.Cleanup(func() {
		ctx := context.Background()
		raw.Del(ctx, roomKey(id), participantsKey(id), usersKey(id))
		raw.SRem(ctx, openRoomsKey(), string(id))
	})
}

func TestRedisRoomLifecycle(t *testing.T) {
	ctx := context.Background()
	s, raw := setupRedisStore(t)

	room, err := s.CreateRoom(ctx, "alice")
	require.NoError(t, err)
	cleanupRoom(t, raw, room.ID)

	open, err := s.RoomIsOpen(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, open)

	p := mustParticipant(t, room.ID, "", "bob")
	require.NoError(t, s.RecordJoin(ctx, p))

	count, err := s.ActiveCount(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.RecordLeave(ctx, room.ID, p.ID))
	require.NoError(t, s.RecordLeave(ctx, room.ID, p.ID))

	count, err = s.ActiveCount(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, s.CloseRoom(ctx, room.ID))
	require.NoError(t, s.CloseRoom(ctx, room.ID))
	open, err = s.RoomIsOpen(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, open)

	dead := mustParticipant(t, room.ID, "", "")
	assert.ErrorIs(t, s.RecordJoin(ctx, dead), ErrRoomNotOpen)
}

func TestRedisRejoinLeavesNoGhostRow(t *testing.T) {
	ctx := context.Background()
	s, raw := setupRedisStore(t)

	room, err := s.CreateRoom(ctx, "")
	require.NoError(t, err)
	cleanupRoom(t, raw, room.ID)

	first := mustParticipant(t, room.ID, "user-token", "carol")
	require.NoError(t, s.RecordJoin(ctx, first))

	// The rejoin rekeys the (room, user) record to the new participant id.
	second := mustParticipant(t, room.ID, "user-token", "carol")
	require.NoError(t, s.RecordJoin(ctx, second))

	// A leave for the evicted id must not re-insert it as a stale row.
	require.NoError(t, s.RecordLeave(ctx, room.ID, first.ID))

	n, err := raw.HLen(ctx, participantsKey(room.ID)).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	members, err := s.ActiveParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, second.ID, members[0].ID)
}
