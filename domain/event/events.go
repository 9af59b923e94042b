// Package event defines the closed set of events the remote service pushes
// over the live connection. Inbound frames are decoded into this union at the
// transport boundary; nothing past that boundary inspects payload shape.
package event

import (
	"marketchat/domain"
)

type DomainEvent interface {
	RoomID() domain.RoomID
}

// Connected signals transport readiness. It fires on every successful
// (re)connect, including automatic reconnects.
type Connected struct{}

func (Connected) RoomID() domain.RoomID { return 0 }

// Disconnected signals that the live connection dropped. The transport keeps
// retrying on its own; this only exists so transient state can be reset.
type Disconnected struct {
	Err error
}

func (Disconnected) RoomID() domain.RoomID { return 0 }

// NewMessage carries a full message, echoed to all subscribers of its room,
// the sender included.
type NewMessage struct {
	Message domain.Message
}

func (e NewMessage) RoomID() domain.RoomID { return e.Message.RoomID }

// NewRoom announces a room created server-side on first contact for a listing.
type NewRoom struct {
	Room domain.Room
}

func (e NewRoom) RoomID() domain.RoomID { return e.Room.ID }

// UserLeft announces that the counterpart left the room for good.
type UserLeft struct {
	Room          domain.RoomID
	SystemMessage domain.Message
}

func (e UserLeft) RoomID() domain.RoomID { return e.Room }

// UserRejoined announces that the counterpart came back.
type UserRejoined struct {
	Room          domain.RoomID
	SystemMessage domain.Message
}

func (e UserRejoined) RoomID() domain.RoomID { return e.Room }

// Typing is implicitly scoped to the actively joined room; the wire payload
// carries no room id.
type Typing struct {
	Nickname string
	IsTyping bool
}

func (Typing) RoomID() domain.RoomID { return 0 }
