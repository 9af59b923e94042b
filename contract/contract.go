//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"

	"marketchat/auth"
	"marketchat/domain"
	"marketchat/domain/event"
)

// AckFunc resolves a sendMessage emission, once, with nil on success.
type AckFunc func(err error)

// Transport owns the single multiplexed bidirectional channel of a session.
// Reconnection is the transport's own business; consumers only see a fresh
// event.Connected on every successful (re)connect.
type Transport interface {
	// Connect brings the channel up for the given credential. Calling it while
	// a connection exists is a no-op; an empty credential is refused.
	Connect(ctx context.Context, credential auth.Credential) error
	// Disconnect tears the channel down. Idempotent.
	Disconnect()
	// Events delivers decoded inbound events in arrival order.
	Events() <-chan event.DomainEvent

	SubscribeToAllRooms(ids []domain.RoomID) error
	JoinRoom(id domain.RoomID) error
	LeaveRoom(id domain.RoomID) error
	SendMessage(id domain.RoomID, content string, ack AckFunc) error
	StartTyping(id domain.RoomID) error
	StopTyping(id domain.RoomID) error
}

// RoomAPI is the REST collaborator owning room persistence. Shape only;
// the service behind it is not part of this repository.
type RoomAPI interface {
	FindOrCreateRoom(ctx context.Context, listingID int) (domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
	GetMessages(ctx context.Context, room domain.RoomID, page, limit int) (domain.MessagePage, error)
	MarkRead(ctx context.Context, room domain.RoomID) error
	LeaveRoom(ctx context.Context, room domain.RoomID) error
}

// EventSink consumes events fanned out by the store, for side effects such as
// the transcript archive. Sinks never feed state back into the engine.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}
