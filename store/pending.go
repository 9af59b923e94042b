package store

import (
	"time"

	"marketchat/domain"
)

type SendState int

const (
	SendStateSending SendState = iota
	SendStateFailed
)

// PendingSend is a short-lived record of an in-flight send, kept purely for
// "sending… / failed, tap to retry" affordances. The sent message itself only
// ever enters the cache through the echoed newMessage event, so this list
// does not change the at-most-once delivery semantics.
type PendingSend struct {
	ID      string
	Room    domain.RoomID
	Content string
	At      time.Time
	State   SendState
	Err     error
}
