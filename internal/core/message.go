package core

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Huddle/internal/domain"
)

type MessageType string

const (
	TypeOffer                MessageType = "offer"
	TypeAnswer               MessageType = "answer"
	TypeICECandidate         MessageType = "ice-candidate"
	TypeJoin                 MessageType = "join"
	TypeLeave                MessageType = "leave"
	TypePresenceUpdate       MessageType = "presence-update"
	TypeError                MessageType = "error"
	TypeConnected            MessageType = "connected"
	TypeExistingParticipants MessageType = "existing-participants"
	TypeUserJoined           MessageType = "user-joined"
	TypeUserLeft             MessageType = "user-left"
)

var ErrInvalidMessageType = errors.New("invalid message type")

// relayable lists the inbound types a peer may send; everything else is
// server-generated and rejected on ingress.
var relayable = map[MessageType]bool{
	TypeOffer:          true,
	TypeAnswer:         true,
	TypeICECandidate:   true,
	TypeJoin:           true,
	TypeLeave:          true,
	TypePresenceUpdate: true,
}

// ParticipantInfo is a read-only view for wire messages (no transport fields).
type ParticipantInfo struct {
	ID          domain.ParticipantID `json:"id"`
	DisplayName string               `json:"displayName,omitempty"`
}

// Envelope is the wire shape for every signaling message, inbound and
// outbound. Data carries SDP/ICE content and is relayed verbatim.
type Envelope struct {
	Type         MessageType          `json:"type"`
	RoomID       domain.RoomID        `json:"roomId,omitempty"`
	Sender       domain.ParticipantID `json:"senderParticipantId,omitempty"`
	Participant  *ParticipantInfo     `json:"participant,omitempty"`
	Participants []ParticipantInfo    `json:"participants,omitempty"`
	Data         json.RawMessage      `json:"data,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// DecodeInbound parses a raw frame from a peer and validates its type
// against the relayable set.
func DecodeInbound(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrInvalidMessageType
	}
	if !relayable[env.Type] {
		return nil, ErrInvalidMessageType
	}
	return &env, nil
}

func (e *Envelope) Encode() (Frame, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}

// ErrorEnvelope builds the typed reply sent to a misbehaving sender.
func ErrorEnvelope(reason string) *Envelope {
	return &Envelope{Type: TypeError, Error: reason}
}
