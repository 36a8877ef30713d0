package store

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// MemoryStore is the volatile backend: everything lives in process memory
// and is gone on restart.
type MemoryStore struct {
	mu           sync.RWMutex
	rooms        map[domain.RoomID]*domain.Room
	participants map[domain.RoomID]map[domain.ParticipantID]*domain.Participant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:        make(map[domain.RoomID]*domain.Room),
		participants: make(map[domain.RoomID]map[domain.ParticipantID]*domain.Participant),
	}
}

func (s *MemoryStore) CreateRoom(_ context.Context, createdBy string) (*domain.Room, error) {
	room := domain.NewRoom(createdBy)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	s.participants[room.ID] = make(map[domain.ParticipantID]*domain.Participant)
	cp := *room
	return &cp, nil
}

func (s *MemoryStore) RoomIsOpen(_ context.Context, id domain.RoomID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	return ok && room.Open(), nil
}

func (s *MemoryStore) CloseRoom(_ context.Context, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[id]; ok {
		room.Status = domain.RoomClosed
	}
	return nil
}

func (s *MemoryStore) RecordJoin(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[p.RoomID]
	if !ok || !room.Open() {
		return ErrRoomNotOpen
	}

	members := s.participants[p.RoomID]

	// A returning user takes over their prior record instead of duplicating
	// it: at most one record per (room, user).
	if p.UserID != "" {
		for id, prior := range members {
			if prior.UserID == p.UserID {
				delete(members, id)
				break
			}
		}
	}

	cp := *p
	cp.Status = domain.ParticipantActive
	cp.JoinedAt = time.Now().UTC()
	cp.LeftAt = nil
	members[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) RecordLeave(_ context.Context, roomID domain.RoomID, id domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[roomID][id]
	if !ok || p.Status == domain.ParticipantLeft {
		return nil
	}
	now := time.Now().UTC()
	p.Status = domain.ParticipantLeft
	p.LeftAt = &now
	return nil
}

func (s *MemoryStore) ActiveCount(_ context.Context, roomID domain.RoomID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeCountLocked(roomID), nil
}

func (s *MemoryStore) activeCountLocked(roomID domain.RoomID) int {
	n := 0
	for _, p := range s.participants[roomID] {
		if p.Status == domain.ParticipantActive {
			n++
		}
	}
	return n
}

func (s *MemoryStore) ActiveParticipants(_ context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participant, 0, len(s.participants[roomID]))
	for _, p := range s.participants[roomID] {
		if p.Status == domain.ParticipantActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListOpenRooms(_ context.Context) ([]RoomInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RoomInfo, 0, len(s.rooms))
	for id, room := range s.rooms {
		if !room.Open() {
			continue
		}
		out = append(out, RoomInfo{
			RoomID:           id,
			Status:           room.Status,
			ParticipantCount: s.activeCountLocked(id),
			CreatedAt:        room.CreatedAt,
			CreatedBy:        room.CreatedBy,
		})
	}
	return out, nil
}

func (s *MemoryStore) RoomSnapshot(_ context.Context, id domain.RoomID) (*RoomSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	snap := &RoomSnapshot{Room: *room, Participants: make([]domain.Participant, 0)}
	for _, p := range s.participants[id] {
		if p.Status == domain.ParticipantActive {
			snap.Participants = append(snap.Participants, *p)
		}
	}
	return snap, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
