// Package api talks to the marketplace's room service over REST. It owns
// room persistence calls only; live traffic goes over the transport.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"marketchat/auth"
	"marketchat/config"
	"marketchat/domain"
)

type Client struct {
	log        *slog.Logger
	baseURL    string
	httpClient *http.Client
	credential auth.Credential
}

func NewClient(log *slog.Logger, cfg config.Config, credential auth.Credential) *Client {
	return &Client{
		log:        log,
		baseURL:    strings.TrimSuffix(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		credential: credential,
	}
}

type userDTO struct {
	ID              int    `json:"id"`
	Nickname        string `json:"nickname"`
	ProfileImageURL string `json:"profileImageUrl"`
}

type listingDTO struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl"`
}

type participantDTO struct {
	User userDTO `json:"user"`
}

type messageDTO struct {
	ID        int       `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Sender    userDTO   `json:"sender"`
	System    bool      `json:"system"`
}

type roomDTO struct {
	ID           int              `json:"id"`
	Listing      listingDTO       `json:"listing"`
	Participants []participantDTO `json:"participants"`
	LastMessage  *messageDTO      `json:"lastMessage"`
	UnreadCount  int              `json:"unreadCount"`
}

type messagePageDTO struct {
	Messages []messageDTO `json:"messages"`
	HasMore  bool         `json:"hasMore"`
}

type createRoomRequest struct {
	ListingID int `json:"listingId"`
}

// FindOrCreateRoom returns the room for a listing, creating it on first
// contact. The service decides which; the client cannot tell the difference.
func (c *Client) FindOrCreateRoom(ctx context.Context, listingID int) (domain.Room, error) {
	var dto roomDTO
	err := c.do(ctx, http.MethodPost, "/chat/rooms", createRoomRequest{ListingID: listingID}, &dto)
	if err != nil {
		return domain.Room{}, err
	}
	return toRoom(dto), nil
}

func (c *Client) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var dtos []roomDTO
	if err := c.do(ctx, http.MethodGet, "/chat/rooms", nil, &dtos); err != nil {
		return nil, err
	}
	return lo.Map(dtos, func(dto roomDTO, _ int) domain.Room { return toRoom(dto) }), nil
}

func (c *Client) GetMessages(ctx context.Context, room domain.RoomID, page, limit int) (domain.MessagePage, error) {
	var dto messagePageDTO
	path := fmt.Sprintf("/chat/rooms/%d/messages?page=%d&limit=%d", room, page, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return domain.MessagePage{}, err
	}
	return domain.MessagePage{
		Messages: lo.Map(dto.Messages, func(m messageDTO, _ int) domain.Message {
			return toMessage(m, room)
		}),
		HasMore: dto.HasMore,
	}, nil
}

func (c *Client) MarkRead(ctx context.Context, room domain.RoomID) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/chat/rooms/%d/read", room), nil, nil)
}

func (c *Client) LeaveRoom(ctx context.Context, room domain.RoomID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/chat/rooms/%d", room), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+string(c.credential))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.log.Warn("request failed", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func toRoom(dto roomDTO) domain.Room {
	room := domain.Room{
		ID: domain.RoomID(dto.ID),
		Listing: domain.Listing{
			ID:       dto.Listing.ID,
			Title:    dto.Listing.Title,
			ImageURL: dto.Listing.ImageURL,
		},
		Participants: lo.Map(dto.Participants, func(p participantDTO, _ int) domain.Participant {
			return domain.Participant{User: toUser(p.User)}
		}),
		UnreadCount: dto.UnreadCount,
	}
	if dto.LastMessage != nil {
		msg := toMessage(*dto.LastMessage, room.ID)
		room.LastMessage = &msg
	}
	return room
}

func toMessage(dto messageDTO, room domain.RoomID) domain.Message {
	return domain.Message{
		ID:        dto.ID,
		RoomID:    room,
		Sender:    toUser(dto.Sender),
		Content:   dto.Content,
		CreatedAt: dto.CreatedAt,
		System:    dto.System,
	}
}

func toUser(dto userDTO) domain.User {
	return domain.User{
		ID:              dto.ID,
		Nickname:        dto.Nickname,
		ProfileImageURL: dto.ProfileImageURL,
	}
}
