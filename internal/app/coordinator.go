package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/dkeye/Huddle/internal/store"
)

// ErrRoomNotOpen refuses a connection to a missing or closed room.
var ErrRoomNotOpen = store.ErrRoomNotOpen

const defaultStoreTimeout = 3 * time.Second

// Coordinator sequences connect, relay and disconnect across the registry,
// the store and the live connections. Store writes are best-effort: a
// connection stays live and functional even when its ledger entry failed,
// and fan-out always targets the registry, never the ledger.
type Coordinator struct {
	Registry *Registry
	Store    store.Store
	Policy   Policy

	// StoreTimeout bounds every store call so a slow backend cannot stall
	// a connection's lifecycle.
	StoreTimeout time.Duration
}

func NewCoordinator(reg *Registry, st store.Store, pol Policy) *Coordinator {
	return &Coordinator{
		Registry:     reg,
		Store:        st,
		Policy:       pol,
		StoreTimeout: defaultStoreTimeout,
	}
}

func (c *Coordinator) storeCtx() (context.Context, context.CancelFunc) {
	// Teardown and fan-out paths outlive the connection's own context.
	return context.WithTimeout(context.Background(), c.StoreTimeout)
}

// Connect drives a new connection from Connecting to Bound: directory gate,
// registry bind, best-effort ledger join, then greeting, peer list and
// presence announcement. The peer list is snapshotted before the bind so the
// new connection never appears in its own list.
func (c *Coordinator) Connect(
	ctx context.Context,
	sid core.SessionID,
	conn core.SignalConnection,
	roomID domain.RoomID,
	userID domain.UserID,
	displayName string,
	cancel context.CancelFunc,
) (*domain.Participant, error) {
	open, err := c.Store.RoomIsOpen(ctx, roomID)
	if err != nil {
		// Without the directory we cannot prove the room exists; refuse.
		metrics.StoreErrors.WithLabelValues("room_is_open").Inc()
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Msg("join gate store error")
		return nil, ErrRoomNotOpen
	}
	if !open {
		metrics.JoinsRefused.Inc()
		return nil, ErrRoomNotOpen
	}

	participant, err := domain.NewParticipant(roomID, userID, displayName)
	if err != nil {
		return nil, err
	}

	peers := c.Registry.Peers(roomID)

	sess := core.NewMemberSession(participant, conn)
	if err := c.Registry.Bind(sid, sess, cancel); err != nil {
		return nil, err
	}
	metrics.ConnectionsActive.Inc()

	// Presence over the wire takes priority over durable bookkeeping.
	joinCtx, joinCancel := c.storeCtx()
	if err := c.Store.RecordJoin(joinCtx, participant); err != nil {
		metrics.StoreErrors.WithLabelValues("record_join").Inc()
		log.Error().Err(err).Str("module", "app.coordinator").
			Str("participant", string(participant.ID)).Str("room", string(roomID)).
			Msg("ledger join failed, connection stays live")
	}
	joinCancel()

	c.Unicast(conn, &core.Envelope{
		Type:        core.TypeConnected,
		RoomID:      roomID,
		Participant: &core.ParticipantInfo{ID: participant.ID, DisplayName: participant.DisplayName},
	})

	infos := make([]core.ParticipantInfo, 0, len(peers))
	for _, peer := range peers {
		p := peer.Session.Participant()
		infos = append(infos, core.ParticipantInfo{ID: p.ID, DisplayName: p.DisplayName})
	}
	c.Unicast(conn, &core.Envelope{
		Type:         core.TypeExistingParticipants,
		RoomID:       roomID,
		Participants: infos,
	})

	c.Broadcast(roomID, &core.Envelope{
		Type:        core.TypeUserJoined,
		RoomID:      roomID,
		Participant: &core.ParticipantInfo{ID: participant.ID, DisplayName: participant.DisplayName},
	}, sid)

	log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).
		Str("participant", string(participant.ID)).Str("room", string(roomID)).
		Int("peers", len(peers)).Msg("connected")
	return participant, nil
}

// Relay is the Bound self-loop: stamp the sender identity and room, then fan
// out to everyone else in the room.
func (c *Coordinator) Relay(sid core.SessionID, env *core.Envelope) {
	roomID, sess, ok := c.Registry.Lookup(sid)
	if !ok {
		log.Warn().Str("module", "app.coordinator").Str("sid", string(sid)).Msg("relay from unbound session")
		return
	}
	env.Sender = sess.Participant().ID
	env.RoomID = roomID
	metrics.MessagesRelayed.WithLabelValues(string(env.Type)).Inc()
	c.Broadcast(roomID, env, sid)
}

// Disconnect drives a session to the terminal state. Every step runs even if
// an earlier one fails; the path never panics past its own boundary since it
// typically executes inside connection teardown. A second call for the same
// session is a no-op.
func (c *Coordinator) Disconnect(sid core.SessionID) {
	// Unblock the session's read pump before tearing down its binding.
	c.Registry.Cancel(sid)

	roomID, participant, err := c.Registry.Unbind(sid)
	if err != nil {
		if !errors.Is(err, ErrNotBound) {
			log.Error().Err(err).Str("module", "app.coordinator").Str("sid", string(sid)).Msg("unbind")
		}
		return
	}
	metrics.ConnectionsActive.Dec()

	// Each teardown step gets its own store budget: a slow leave must not
	// starve the room-close check and leave the room dangling open.
	leaveCtx, leaveCancel := c.storeCtx()
	if err := c.Store.RecordLeave(leaveCtx, roomID, participant.ID); err != nil {
		metrics.StoreErrors.WithLabelValues("record_leave").Inc()
		log.Error().Err(err).Str("module", "app.coordinator").Str("participant", string(participant.ID)).Msg("ledger leave failed")
	}
	leaveCancel()

	closeCtx, closeCancel := c.storeCtx()
	c.closeRoomIfEmpty(closeCtx, roomID)
	closeCancel()

	c.Broadcast(roomID, &core.Envelope{
		Type:        core.TypeUserLeft,
		RoomID:      roomID,
		Participant: &core.ParticipantInfo{ID: participant.ID, DisplayName: participant.DisplayName},
	})

	log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).
		Str("participant", string(participant.ID)).Str("room", string(roomID)).Msg("disconnected")
}

func (c *Coordinator) closeRoomIfEmpty(ctx context.Context, roomID domain.RoomID) {
	// The registry must agree the room is empty: the ledger can lag behind
	// live connections when a join write failed.
	if c.Registry.RoomSize(roomID) > 0 {
		return
	}
	count, err := c.Store.ActiveCount(ctx, roomID)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("active_count").Inc()
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Msg("active count failed")
		count = 0
	}
	if count > 0 {
		return
	}
	if err := c.Store.CloseRoom(ctx, roomID); err != nil {
		metrics.StoreErrors.WithLabelValues("close_room").Inc()
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Msg("close room failed")
		return
	}
	metrics.RoomsClosed.Inc()
	log.Info().Str("module", "app.coordinator").Str("room", string(roomID)).Msg("room closed")
}

// Unicast is best-effort: a failure is logged and never raised to the
// caller. Cleanup stays the disconnect path's job.
func (c *Coordinator) Unicast(conn core.SignalConnection, env *core.Envelope) {
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("encode")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("type", string(env.Type)).Msg("unicast failed")
	}
}

// Broadcast delivers to every session bound to the room at call time, minus
// the excluded ones. A failed delivery is handed to the policy; eviction
// runs the full disconnect sequence for that peer, which is how dead
// sockets are reaped without a heartbeat subsystem.
func (c *Coordinator) Broadcast(roomID domain.RoomID, env *core.Envelope, excluding ...core.SessionID) {
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("encode")
		return
	}

	var failed []core.SessionID
	for _, peer := range c.Registry.Peers(roomID, excluding...) {
		if err := peer.Session.Signal().TrySend(frame); err != nil {
			metrics.DeliveryFailures.Inc()
			log.Warn().Err(err).Str("module", "app.coordinator").
				Str("sid", string(peer.SID)).Str("room", string(roomID)).Msg("delivery failed")
			if c.Policy.OnDeliveryFailure(roomID, peer.SID, err) == EvictPeer {
				failed = append(failed, peer.SID)
			}
		}
	}

	for _, sid := range failed {
		if _, sess, ok := c.Registry.Lookup(sid); ok {
			sess.Signal().Close()
		}
		c.Disconnect(sid)
	}
}

// LiveConnections reports the current number of bound sessions.
func (c *Coordinator) LiveConnections() int { return c.Registry.Len() }
