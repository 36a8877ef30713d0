// Package domain contains entities without logic, just meta-data.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type RoomID string

type RoomStatus string

const (
	RoomOpen   RoomStatus = "open"
	RoomClosed RoomStatus = "closed"
)

// Room is a signaling session grouping. A room transitions open -> closed
// at most once; a closed room identifier is never reused.
type Room struct {
	ID        RoomID     `json:"roomId"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	CreatedBy string     `json:"createdBy,omitempty"`
}

// NewRoom mints a fresh open room. createdBy is an optional creator tag.
func NewRoom(createdBy string) *Room {
	return &Room{
		ID:        RoomID(uuid.NewString()),
		Status:    RoomOpen,
		CreatedAt: time.Now().UTC(),
		CreatedBy: createdBy,
	}
}

func (r *Room) Open() bool { return r.Status == RoomOpen }
