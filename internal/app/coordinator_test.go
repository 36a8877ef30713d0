package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/store"
)

// fakeConn records every delivered frame and can be flipped into a failing
// state to exercise the eviction path.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
	closed bool
}

func (c *fakeConn) TrySend(frame core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send buffer full")
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) setFail(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = v
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// envelopes decodes the recorded frames back into wire envelopes.
func (c *fakeConn) envelopes(t *testing.T) []core.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env core.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

func newTestCoordinator(t *testing.T) (*Coordinator, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewCoordinator(NewRegistry(), st, EvictOnFailure{}), st
}

func connect(t *testing.T, c *Coordinator, sid core.SessionID, roomID domain.RoomID, name string) (*fakeConn, *domain.Participant) {
	t.Helper()
	conn := &fakeConn{}
	p, err := c.Connect(context.Background(), sid, conn, roomID, "", name, nil)
	require.NoError(t, err)
	return conn, p
}

func TestConnectRefusedForMissingRoom(t *testing.T) {
	c, _ := newTestCoordinator(t)
	conn := &fakeConn{}
	_, err := c.Connect(context.Background(), "sid-1", conn, "no-such-room", "", "", nil)
	assert.ErrorIs(t, err, ErrRoomNotOpen)
	assert.Zero(t, c.LiveConnections())
	assert.Empty(t, conn.envelopes(t))
}

func TestConnectRefusedForClosedRoom(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCoordinator(t)
	room, err := st.CreateRoom(ctx, "")
	require.NoError(t, err)
	require.NoError(t, st.CloseRoom(ctx, room.ID))

	_, err = c.Connect(ctx, "sid-1", &fakeConn{}, room.ID, "", "", nil)
	assert.ErrorIs(t, err, ErrRoomNotOpen)
}

func TestConnectGreetsNewAndAnnouncesToPeers(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCoordinator(t)
	room, err := st.CreateRoom(ctx, "")
	require.NoError(t, err)

	connA, pA := connect(t, c, "sid-a", room.ID, "alice")

	envsA := connA.envelopes(t)
	require.Len(t, envsA, 2)
	assert.Equal(t, core.TypeConnected, envsA[0].Type)
	require.NotNil(t, envsA[0].Participant)
	assert.Equal(t, pA.ID, envsA[0].Participant.ID)
	assert.Equal(t, core.TypeExistingParticipants, envsA[1].Type)
	assert.Empty(t, envsA[1].Participants)

	connB, pB := connect(t, c, "sid-b", room.ID, "bob")

	envsB := connB.envelopes(t)
	require.Len(t, envsB, 2)
	assert.Equal(t, core.TypeConnected, envsB[0].Type)
	assert.Equal(t, core.TypeExistingParticipants, envsB[1].Type)
	require.Len(t, envsB[1].Participants, 1)
	assert.Equal(t, pA.ID, envsB[1].Participants[0].ID)
	assert.Equal(t, "alice", envsB[1].Participants[0].DisplayName)

	envsA = connA.envelopes(t)
	require.Len(t, envsA, 3)
	assert.Equal(t, core.TypeUserJoined, envsA[2].Type)
	require.NotNil(t, envsA[2].Participant)
	assert.Equal(t, pB.ID, envsA[2].Participant.ID)

	assert.Equal(t, 2, c.LiveConnections())
	count, err := st.ActiveCount(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRelayStampsSenderAndExcludesSender(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCoordinator(t)
	room, err := st.CreateRoom(ctx, "")
	require.NoError(t, err)

	connA, pA := connect(t, c, "sid-a", room.ID, "alice")
	connB, _ := connect(t, c, "sid-b", room.ID, "bob")

	beforeA := len(connA.envelopes(t))
	beforeB := len(connB.envelopes(t))

	sdp := json.RawMessage(`{"sdp":"v=0..."}`)
	c.Relay("sid-a", &core.Envelope{Type: core.TypeOffer, Data: sdp})

	envsB := connB.envelopes(t)
	require.Len(t, envsB, beforeB+1)
	got := envsB[len(envsB)-1]
	assert.Equal(t, core.TypeOffer, got.Type)
	assert.Equal(t, pA.ID, got.Sender)
	assert.Equal(t, room.ID, got.RoomID)
	assert.JSONEq(t, string(sdp), string(got.Data))

	// The sender never receives its own message back.
	assert.Len(t, connA.envelopes(t), beforeA)
}

func TestRelayFromUnboundSession(t *testing.T) {
	c, _ := newTestCoordinator(t)
	// Must not panic or deliver anything.
	c.Relay("no-such-sid", &core.Envelope{Type: core.TypeOffer})
}

func TestDisconnectAnnouncesAndClosesEmptyRoom(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCoordinator(t)
	room, err := st.CreateRoom(ctx, "")
	require.NoError(t, err)

	connect(t, c, "sid-a", room.ID, "alice")
	connB, _ := connect(t, c, "sid-b", room.ID, "bob")

	beforeB := len(connB.envelopes(t))
	c.Disconnect("sid-a")

	envsB := connB.envelopes(t)
	require.Len(t, envsB, beforeB+1)
	assert.Equal(t, core.TypeUserLeft, envsB[len(envsB)-1].Type)

	// B is still there, so the room stays open.
	open, err := st.RoomIsOpen(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, open)

	c.Disconnect("sid-b")

	open, err = st.RoomIsOpen(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, open)
	assert.Zero(t, c.LiveConnections())
}

func TestDisconnectTwiceIsNoOp(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCoordinator(t)
	room, err := st.CreateRoom(ctx, "")
	require.NoError(t, err)

	connect(t, c, "sid-a", room.ID, "alice")
	c.Disconnect("sid-a")
	c.Disconnect("sid-a")
	assert.Zero(t, c.LiveConnections())
}

func TestDisconnectFiresCancel(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCoordinator(t)
	room, err := st.CreateRoom(ctx, "")
	require.NoError(t, err)

	fired := false
	conn := &fakeConn{}
	_, err = c.Connect(ctx, "sid-a", conn, room.ID, "", "alice", func() { fired = true })
	require.NoError(t, err)

	c.Disconnect("sid-a")
	assert.True(t, fired)
}

func TestBroadcastEvictsFailedPeer(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCoordinator(t)
	room, err := st.CreateRoom(ctx, "")
	require.NoError(t, err)

	connA, _ := connect(t, c, "sid-a", room.ID, "alice")
	connB, _ := connect(t, c, "sid-b", room.ID, "bob")
	connect(t, c, "sid-c", room.ID, "carol")

	connB.setFail(true)

	// A relay from C fails to reach B; B gets evicted with the full
	// disconnect sequence, so A sees the offer and then B's user-left.
	beforeA := len(connA.envelopes(t))
	c.Relay("sid-c", &core.Envelope{Type: core.TypeOffer})

	assert.True(t, connB.isClosed())
	assert.Equal(t, 2, c.LiveConnections())
	assert.Empty(t, c.Registry.Peers(room.ID, "sid-a", "sid-c"))

	envsA := connA.envelopes(t)
	require.Len(t, envsA, beforeA+2)
	assert.Equal(t, core.TypeOffer, envsA[beforeA].Type)
	assert.Equal(t, core.TypeUserLeft, envsA[beforeA+1].Type)

	count, err := st.ActiveCount(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestConnectSurvivesLedgerFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	room, err := st.CreateRoom(ctx, "")
	require.NoError(t, err)

	c := NewCoordinator(NewRegistry(), &failingJoinStore{Store: st}, EvictOnFailure{})

	conn := &fakeConn{}
	_, err = c.Connect(ctx, "sid-a", conn, room.ID, "", "alice", nil)
	require.NoError(t, err)

	// The connection is live and greeted despite the failed ledger write.
	assert.Equal(t, 1, c.LiveConnections())
	envs := conn.envelopes(t)
	require.Len(t, envs, 2)
	assert.Equal(t, core.TypeConnected, envs[0].Type)

	// Disconnect still closes the room: the ledger never saw the join.
	c.Disconnect("sid-a")
	open, err := st.RoomIsOpen(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, open)
}

// failingJoinStore wraps a real store and fails every ledger join.
type failingJoinStore struct {
	store.Store
}

func (s *failingJoinStore) RecordJoin(context.Context, *domain.Participant) error {
	return errors.New("ledger unavailable")
}

func TestDisconnectClosesRoomAfterSlowLeave(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	room, err := st.CreateRoom(ctx, "")
	require.NoError(t, err)

	c := NewCoordinator(NewRegistry(), &slowLeaveStore{Store: st}, EvictOnFailure{})
	c.StoreTimeout = 30 * time.Millisecond

	conn := &fakeConn{}
	_, err = c.Connect(ctx, "sid-a", conn, room.ID, "", "alice", nil)
	require.NoError(t, err)

	// RecordLeave burns its whole store budget; the room-close check must
	// still run on a fresh one.
	c.Disconnect("sid-a")

	open, err := st.RoomIsOpen(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, open)
}

// slowLeaveStore stalls RecordLeave for its full context budget before the
// write lands, and refuses any later call arriving with an already-dead
// context.
type slowLeaveStore struct {
	store.Store
}

func (s *slowLeaveStore) RecordLeave(ctx context.Context, roomID domain.RoomID, id domain.ParticipantID) error {
	<-ctx.Done()
	return s.Store.RecordLeave(context.Background(), roomID, id)
}

func (s *slowLeaveStore) ActiveCount(ctx context.Context, roomID domain.RoomID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.Store.ActiveCount(ctx, roomID)
}

func (s *slowLeaveStore) CloseRoom(ctx context.Context, id domain.RoomID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.CloseRoom(ctx, id)
}
