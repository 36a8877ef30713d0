package app

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrAlreadyBound = errors.New("session already bound")
	ErrNotBound     = errors.New("session not bound")
)

type binding struct {
	RoomID  domain.RoomID
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry maps live connections to their room and participant identity, in
// both directions. It is in-memory only and is the sole authority for
// delivery targets; the participant ledger is never consulted for fan-out.
//
// The mutex guards only map mutation and is never held across I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*binding
	rooms    map[domain.RoomID]map[core.SessionID]*binding
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*binding),
		rooms:    make(map[domain.RoomID]map[core.SessionID]*binding),
	}
}

// Bind records the session in both directions. Binding the same session
// twice is refused: the first binding stays intact.
func (r *Registry) Bind(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) error {
	roomID := sess.Participant().RoomID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; ok {
		log.Warn().Str("module", "app.registry").Str("sid", string(sid)).Msg("double bind refused")
		return ErrAlreadyBound
	}
	b := &binding{RoomID: roomID, Session: sess, Cancel: cancel}
	r.sessions[sid] = b
	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[core.SessionID]*binding)
		r.rooms[roomID] = room
	}
	room[sid] = b
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(roomID)).Msg("bound session")
	return nil
}

// Unbind removes both directions atomically and returns the prior binding.
// A second unbind of the same session reports ErrNotBound so teardown races
// resolve to exactly one winner.
func (r *Registry) Unbind(sid core.SessionID) (domain.RoomID, *domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.sessions[sid]
	if !ok {
		return "", nil, ErrNotBound
	}
	delete(r.sessions, sid)
	if room, ok := r.rooms[b.RoomID]; ok {
		delete(room, sid)
		if len(room) == 0 {
			delete(r.rooms, b.RoomID)
		}
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(b.RoomID)).Msg("unbound session")
	return b.RoomID, b.Session.Participant(), nil
}

type PeerSnap struct {
	SID     core.SessionID
	Session core.MemberSession
}

// Peers returns the live delivery set for a room at call time.
func (r *Registry) Peers(roomID domain.RoomID, excluding ...core.SessionID) []PeerSnap {
	skip := make(map[core.SessionID]struct{}, len(excluding))
	for _, sid := range excluding {
		skip[sid] = struct{}{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[roomID]
	out := make([]PeerSnap, 0, len(room))
	for sid, b := range room {
		if _, ok := skip[sid]; ok {
			continue
		}
		out = append(out, PeerSnap{SID: sid, Session: b.Session})
	}
	return out
}

// Lookup resolves a session to its binding without removing it.
func (r *Registry) Lookup(sid core.SessionID) (domain.RoomID, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.sessions[sid]
	if !ok {
		return "", nil, false
	}
	return b.RoomID, b.Session, true
}

// Cancel fires the session's cancel func, driving its read pump into the
// disconnect path.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	b, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if b.Cancel != nil {
		b.Cancel()
	}
	return true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RoomSize reports the number of live sessions bound to a room.
func (r *Registry) RoomSize(roomID domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}
