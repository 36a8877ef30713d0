package app

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type DeliveryAction int

const (
	NoAction DeliveryAction = iota
	DropFrame
	EvictPeer
)

// Policy decides what happens to a peer whose delivery failed.
type Policy interface {
	OnDeliveryFailure(roomID domain.RoomID, sid core.SessionID, err error) DeliveryAction
}

// EvictOnFailure treats every failed send as that peer's disconnect. A dead
// or saturated socket is reaped here instead of by a heartbeat subsystem.
type EvictOnFailure struct{}

func (EvictOnFailure) OnDeliveryFailure(domain.RoomID, core.SessionID, error) DeliveryAction {
	return EvictPeer
}
