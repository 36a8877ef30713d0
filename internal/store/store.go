// Package store persists room and participant state. Live connections are
// never stored here; the registry in internal/app owns those.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomNotOpen  = errors.New("room not open")
)

// RoomDirectory is the authoritative record of which rooms exist and
// whether each is open for joining.
type RoomDirectory interface {
	// CreateRoom mints a fresh open room.
	CreateRoom(ctx context.Context, createdBy string) (*domain.Room, error)
	// RoomIsOpen is the join gate: false for unknown or closed rooms.
	RoomIsOpen(ctx context.Context, id domain.RoomID) (bool, error)
	// CloseRoom is idempotent; closing a closed or unknown room is a no-op.
	CloseRoom(ctx context.Context, id domain.RoomID) error
}

// ParticipantLedger records who has ever joined a room and their last known
// status. It is never consulted for delivery decisions.
type ParticipantLedger interface {
	// RecordJoin returns ErrRoomNotOpen when the room is missing or closed.
	// When a record for the same (room, user) exists it is reactivated under
	// the new participant identity instead of inserting a duplicate.
	RecordJoin(ctx context.Context, p *domain.Participant) error
	// RecordLeave is idempotent.
	RecordLeave(ctx context.Context, roomID domain.RoomID, id domain.ParticipantID) error
	ActiveCount(ctx context.Context, roomID domain.RoomID) (int, error)
	ActiveParticipants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error)
}

// Reporter serves the read-only reporting layer.
type Reporter interface {
	ListOpenRooms(ctx context.Context) ([]RoomInfo, error)
	// RoomSnapshot returns ErrRoomNotFound for unknown rooms.
	RoomSnapshot(ctx context.Context, id domain.RoomID) (*RoomSnapshot, error)
}

// Store is implemented by every backend: the volatile in-memory store and
// the persistent SQLite, Postgres and Redis variants.
type Store interface {
	RoomDirectory
	ParticipantLedger
	Reporter

	Ping(ctx context.Context) error
	Close() error
}

type RoomInfo struct {
	RoomID           domain.RoomID     `json:"roomId"`
	Status           domain.RoomStatus `json:"status"`
	ParticipantCount int               `json:"participantCount"`
	CreatedAt        time.Time         `json:"createdAt"`
	CreatedBy        string            `json:"createdBy,omitempty"`
}

type RoomSnapshot struct {
	Room         domain.Room          `json:"room"`
	Participants []domain.Participant `json:"participants"`
}
