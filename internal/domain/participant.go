package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

var ErrDisplayNameTooLong = errors.New("display name too long")

type ParticipantID string

// UserID is a stable per-client identity (browser client token). Empty for
// clients that do not carry one; such clients are always fresh participants.
type UserID string

type ParticipantStatus string

const (
	ParticipantActive ParticipantStatus = "active"
	ParticipantLeft   ParticipantStatus = "left"
)

// Participant is one joined identity, minted per live connection and owned
// by its room.
type Participant struct {
	ID          ParticipantID     `json:"id"`
	RoomID      RoomID            `json:"roomId"`
	UserID      UserID            `json:"-"`
	DisplayName string            `json:"displayName,omitempty"`
	Status      ParticipantStatus `json:"status"`
	JoinedAt    time.Time         `json:"joinedAt"`
	LeftAt      *time.Time        `json:"leftAt,omitempty"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(roomID RoomID, userID UserID, displayName string) (*Participant, error) {
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &Participant{
		ID:          ParticipantID(uuid.NewString()),
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: displayName,
		Status:      ParticipantActive,
		JoinedAt:    time.Now().UTC(),
	}, nil
}
