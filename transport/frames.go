package transport

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"marketchat/domain"
	"marketchat/domain/event"
	errs "marketchat/errors"
)

// Wire event names, both directions.
const (
	evConnected    = "connected"
	evNewMessage   = "newMessage"
	evNewRoom      = "newChatRoom"
	evUserLeft     = "userLeft"
	evUserRejoined = "userRejoined"
	evTyping       = "typing"
	evAck          = "ack"

	evSubscribeToAllRooms = "subscribeToAllRooms"
	evJoinRoom            = "joinRoom"
	evLeaveRoom           = "leaveRoom"
	evSendMessage         = "sendMessage"
	evStartTyping         = "startTyping"
	evStopTyping          = "stopTyping"
)

var validate = validator.New()

// Frame is the envelope every event travels in, both directions. AckID is set
// on outbound sendMessage frames and echoed back on the matching ack.
type Frame struct {
	Event   string          `json:"event"`
	AckID   string          `json:"ackId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Sender fields stay unvalidated: system messages carry no author.
type userPayload struct {
	ID              int    `json:"id"`
	Nickname        string `json:"nickname"`
	ProfileImageURL string `json:"profileImageUrl"`
}

type roomRef struct {
	ID int `json:"id" validate:"required"`
}

type messagePayload struct {
	ID        int         `json:"id" validate:"required"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt" validate:"required"`
	Sender    userPayload `json:"sender"`
	ChatRoom  roomRef     `json:"chatRoom"`
	System    bool        `json:"system"`
}

type listingPayload struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl"`
}

type participantPayload struct {
	User userPayload `json:"user"`
}

type roomPayload struct {
	ID           int                  `json:"id" validate:"required"`
	Listing      listingPayload       `json:"listing"`
	Participants []participantPayload `json:"participants"`
	LastMessage  *messagePayload      `json:"lastMessage"`
	UnreadCount  int                  `json:"unreadCount"`
}

type lifecyclePayload struct {
	RoomID        int            `json:"roomId" validate:"required"`
	SystemMessage messagePayload `json:"systemMessage"`
}

type typingPayload struct {
	Nickname string `json:"nickname" validate:"required"`
	IsTyping bool   `json:"isTyping"`
}

type ackPayload struct {
	Error string `json:"error,omitempty"`
}

type subscribePayload struct {
	RoomIDs []int `json:"roomIds"`
}

type roomScopedPayload struct {
	RoomID int `json:"roomId"`
}

type sendPayload struct {
	RoomID  int    `json:"roomId"`
	Content string `json:"content"`
}

// decode turns one inbound frame into a domain event. Payload shape is
// checked here and nowhere else.
func decode(f Frame) (event.DomainEvent, error) {
	switch f.Event {
	case evConnected:
		return event.Connected{}, nil
	case evNewMessage:
		var p messagePayload
		if err := unmarshal(f.Payload, &p); err != nil {
			return nil, err
		}
		return event.NewMessage{Message: toMessage(p, p.ChatRoom.ID)}, nil
	case evNewRoom:
		var p roomPayload
		if err := unmarshal(f.Payload, &p); err != nil {
			return nil, err
		}
		return event.NewRoom{Room: toRoom(p)}, nil
	case evUserLeft:
		var p lifecyclePayload
		if err := unmarshal(f.Payload, &p); err != nil {
			return nil, err
		}
		return event.UserLeft{
			Room:          domain.RoomID(p.RoomID),
			SystemMessage: toSystemMessage(p.SystemMessage, p.RoomID),
		}, nil
	case evUserRejoined:
		var p lifecyclePayload
		if err := unmarshal(f.Payload, &p); err != nil {
			return nil, err
		}
		return event.UserRejoined{
			Room:          domain.RoomID(p.RoomID),
			SystemMessage: toSystemMessage(p.SystemMessage, p.RoomID),
		}, nil
	case evTyping:
		var p typingPayload
		if err := unmarshal(f.Payload, &p); err != nil {
			return nil, err
		}
		return event.Typing{Nickname: p.Nickname, IsTyping: p.IsTyping}, nil
	default:
		return nil, errs.ErrUnknownFrame
	}
}

func unmarshal(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.ErrInvalidPayload
	}
	if err := validate.Struct(out); err != nil {
		return errs.ErrInvalidPayload
	}
	return nil
}

func toMessage(p messagePayload, roomID int) domain.Message {
	return domain.Message{
		ID:        p.ID,
		RoomID:    domain.RoomID(roomID),
		Sender:    toUser(p.Sender),
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
		System:    p.System,
	}
}

func toSystemMessage(p messagePayload, roomID int) domain.Message {
	msg := toMessage(p, roomID)
	msg.System = true
	return msg
}

func toUser(p userPayload) domain.User {
	return domain.User{
		ID:              p.ID,
		Nickname:        p.Nickname,
		ProfileImageURL: p.ProfileImageURL,
	}
}

func toRoom(p roomPayload) domain.Room {
	room := domain.Room{
		ID: domain.RoomID(p.ID),
		Listing: domain.Listing{
			ID:       p.Listing.ID,
			Title:    p.Listing.Title,
			ImageURL: p.Listing.ImageURL,
		},
		UnreadCount: p.UnreadCount,
	}
	for _, part := range p.Participants {
		room.Participants = append(room.Participants, domain.Participant{User: toUser(part.User)})
	}
	if p.LastMessage != nil {
		msg := toMessage(*p.LastMessage, p.ID)
		room.LastMessage = &msg
	}
	return room
}
