package core

import "github.com/dkeye/Huddle/internal/domain"

// MemberSession binds a domain.Participant and its transport endpoint.
// This is what the registry stores and the broadcaster fans out to.
type MemberSession interface {
	Participant() *domain.Participant
	Signal() SignalConnection
}

type memberSession struct {
	participant *domain.Participant
	conn        SignalConnection
}

func NewMemberSession(p *domain.Participant, conn SignalConnection) MemberSession {
	return &memberSession{participant: p, conn: conn}
}

func (m *memberSession) Participant() *domain.Participant { return m.participant }
func (m *memberSession) Signal() SignalConnection         { return m.conn }
