// Package domain contains the core concepts of the chat engine.
// Messages are immutable: once observed they are only ever appended,
// never edited.
package domain

import "time"

// Message represents one chat message. IDs are assigned by the remote service.
type Message struct {
	ID        int
	RoomID    RoomID
	Sender    User
	Content   string
	CreatedAt time.Time
	// System marks synthetic messages representing lifecycle events
	// (leave/rejoin). They are not user-authored.
	System bool
}

// MessagePage is one page of a room's history as delivered by the
// history endpoint, newest first within the page.
type MessagePage struct {
	Messages []Message
	HasMore  bool
}
