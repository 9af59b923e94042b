// Package store hosts the session chat engine: the single writer for the room
// summary list and the per-room message caches. One Store is constructed at
// session start and torn down at session end; nothing here is a process-wide
// singleton. Inbound transport events and user actions are serialized through
// the store, then reduced into the projections.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"marketchat/auth"
	"marketchat/config"
	"marketchat/contract"
	"marketchat/domain"
	"marketchat/domain/event"
	errs "marketchat/errors"
	"marketchat/projection"
)

type Store struct {
	log       *slog.Logger
	cfg       config.Config
	transport contract.Transport
	api       contract.RoomAPI

	credential auth.Credential
	self       auth.Identity

	registry *Registry
	debounce *debouncer

	mu             sync.Mutex
	started        bool
	summary        *projection.Summary
	history        *projection.History
	chatOpen       bool
	activeRoom     domain.RoomID
	typingNickname string
	pending        []PendingSend

	sinks         []contract.EventSink
	onSendFailure func(room domain.RoomID, content string, err error)
}

// New builds an engine for the session's credential. A missing credential is
// a logged-out session: the store works, it just never connects.
func New(log *slog.Logger, cfg config.Config, transport contract.Transport,
	api contract.RoomAPI, credential auth.Credential) (*Store, error) {
	var self auth.Identity
	if !credential.Empty() {
		var err error
		if self, err = auth.Identify(credential); err != nil {
			return nil, err
		}
	}
	return &Store{
		log:        log,
		cfg:        cfg,
		transport:  transport,
		api:        api,
		credential: credential,
		self:       self,
		registry:   NewRegistry(),
		debounce:   newDebouncer(cfg.TypingDebounce),
		summary:    projection.NewSummary(self.UserID),
		history:    projection.NewHistory(),
	}, nil
}

// Add registers sinks that observe every accepted inbound event. Sinks are
// side effects only and never feed state back into the engine.
func (s *Store) Add(sinks ...contract.EventSink) {
	s.sinks = append(s.sinks, sinks...)
}

// OnSendFailure installs the user-visible alert hook for failed sends.
func (s *Store) OnSendFailure(fn func(room domain.RoomID, content string, err error)) {
	s.onSendFailure = fn
}

// Connect brings the transport up and starts consuming its events. Without a
// credential the connection is never attempted; that is not an error.
func (s *Store) Connect(ctx context.Context) error {
	if s.credential.Empty() {
		s.log.Debug("no credential, connection not attempted")
		return nil
	}
	if err := s.transport.Connect(ctx, s.credential); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	s.mu.Lock()
	already := s.started
	s.started = true
	s.mu.Unlock()
	if !already {
		go s.pump(ctx)
	}
	return nil
}

// Disconnect tears the transport down. Transient state (typing, pending
// debounce) is dropped; the summaries and caches stay for the session.
func (s *Store) Disconnect() {
	s.debounce.Cancel()
	s.transport.Disconnect()

	s.mu.Lock()
	s.typingNickname = ""
	s.mu.Unlock()
}

func (s *Store) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-s.transport.Events():
			if !ok {
				return
			}
			s.dispatch(ctx, e)
		}
	}
}

// dispatch is the thin shim between the transport and the reducers. Handlers
// are pure merges of prior state plus the one event, so duplicate or
// out-of-order delivery after a reconnect cannot corrupt the caches.
func (s *Store) dispatch(ctx context.Context, e event.DomainEvent) {
	if !s.registry.Expected(e) {
		s.log.Warn("dropping event without subscription", "room", int(e.RoomID()))
		return
	}

	switch evt := e.(type) {
	case event.Connected:
		s.resubscribe(ctx)
	case event.Disconnected:
		s.mu.Lock()
		s.typingNickname = ""
		s.mu.Unlock()
		s.log.Info("connection lost, transport is retrying", "error", evt.Err)
	case event.NewMessage:
		s.applyMessage(evt.Message)
	case event.NewRoom:
		s.mu.Lock()
		s.summary.Upsert(evt.Room)
		s.mu.Unlock()
		s.registry.AddPassive(evt.Room.ID)
	case event.UserLeft:
		s.applyLifecycle(evt.Room, evt.SystemMessage, true)
		s.refreshRooms(ctx)
	case event.UserRejoined:
		s.applyLifecycle(evt.Room, evt.SystemMessage, false)
	case event.Typing:
		s.mu.Lock()
		if evt.IsTyping {
			s.typingNickname = evt.Nickname
		} else {
			s.typingNickname = ""
		}
		s.mu.Unlock()
	}

	for _, sink := range s.sinks {
		if err := sink.Consume(ctx, e); err != nil {
			s.log.Error("sink failed", "error", err)
		}
	}
}

// resubscribe runs on every readiness signal, first connect and automatic
// reconnects alike: the room list is fetched fresh and the passive
// subscription is issued for exactly that set. A pre-drop set may be stale,
// so it is never reused.
func (s *Store) resubscribe(ctx context.Context) {
	rooms, err := s.api.ListRooms(ctx)
	if err != nil {
		s.log.Error("room list fetch failed, passive subscription skipped", "error", err)
		return
	}

	s.mu.Lock()
	s.summary.Replace(rooms)
	ids := s.summary.RoomIDs()
	s.mu.Unlock()

	s.registry.ReplacePassive(ids)
	if err := s.transport.SubscribeToAllRooms(ids); err != nil {
		s.log.Error("bulk subscribe failed", "error", err)
		return
	}
	s.log.Info("subscribed to rooms", "count", len(ids))
}

func (s *Store) refreshRooms(ctx context.Context) {
	rooms, err := s.api.ListRooms(ctx)
	if err != nil {
		s.log.Warn("room list refresh failed", "error", err)
		return
	}
	s.mu.Lock()
	s.summary.Replace(rooms)
	s.mu.Unlock()
}

func (s *Store) applyMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	viewing := s.chatOpen && s.activeRoom == msg.RoomID
	s.history.Append(msg)
	s.summary.ApplyMessage(msg, viewing)
}

func (s *Store) applyLifecycle(room domain.RoomID, sysMsg domain.Message, inactive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Append(sysMsg)
	s.summary.SetInactive(room, inactive)
}

// StartChatForListing asks the remote service for the room tied to a listing,
// creating it on first contact, and folds it into the local summary.
func (s *Store) StartChatForListing(ctx context.Context, listingID int) (domain.Room, error) {
	room, err := s.api.FindOrCreateRoom(ctx, listingID)
	if err != nil {
		return domain.Room{}, fmt.Errorf("find or create room: %w", err)
	}

	s.mu.Lock()
	s.summary.Upsert(room)
	s.mu.Unlock()
	s.registry.AddPassive(room.ID)
	return room, nil
}

// OpenRoom marks the room read, makes it the active one, opens the chat panel
// and joins the room session for typing signals. The message cache is created
// lazily on the first open; the newest history page is fetched on every open
// until one fetch succeeds, so a transient failure is retried on reopen
// instead of leaving the room's history blank for the session.
func (s *Store) OpenRoom(ctx context.Context, id domain.RoomID) error {
	s.MarkRoomAsRead(ctx, id)

	s.mu.Lock()
	s.activeRoom = id
	s.chatOpen = true
	s.typingNickname = ""
	s.history.Open(id)
	needFirstPage := s.history.PageCount(id) == 0
	s.mu.Unlock()

	s.registry.SetActive(id)
	if err := s.transport.JoinRoom(id); err != nil {
		// Typing signals are the only thing lost without the join.
		s.log.Warn("room join failed", "room", int(id), "error", err)
	}

	if needFirstPage {
		page, err := s.api.GetMessages(ctx, id, 1, s.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("history fetch: %w", err)
		}
		s.mu.Lock()
		s.history.AddPage(id, page)
		s.mu.Unlock()
	}
	return nil
}

// CloseRoom leaves the active room's typing scope and returns the panel to
// the room list. The pending stop-typing debounce is canceled so no timer
// outlives the room.
func (s *Store) CloseRoom() {
	s.debounce.Cancel()

	s.mu.Lock()
	room := s.activeRoom
	s.activeRoom = 0
	s.typingNickname = ""
	s.mu.Unlock()

	if room == 0 {
		return
	}
	s.registry.ClearActive()
	if err := s.transport.LeaveRoom(room); err != nil {
		s.log.Warn("session leave failed", "room", int(room), "error", err)
	}
}

func (s *Store) ToggleChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatOpen = !s.chatOpen
}

// MarkRoomAsRead resets the unread counter locally right away, then tells the
// remote service best-effort. Read state is advisory: a remote failure never
// rolls the local reset back.
func (s *Store) MarkRoomAsRead(ctx context.Context, id domain.RoomID) {
	s.mu.Lock()
	s.summary.MarkRead(id)
	s.mu.Unlock()

	if err := s.api.MarkRead(ctx, id); err != nil {
		s.log.Debug("remote mark read failed", "room", int(id), "error", err)
	}
}

// Typing is called on every keystroke in the active room's composer. The
// start signal goes out immediately (safe to repeat); the stop signal fires
// once the composer has been quiet for the configured debounce.
func (s *Store) Typing() {
	s.mu.Lock()
	room := s.activeRoom
	s.mu.Unlock()
	if room == 0 {
		return
	}

	if err := s.transport.StartTyping(room); err != nil {
		s.log.Debug("start typing failed", "error", err)
	}
	// room is captured here, so a late fire cannot target a different room.
	s.debounce.Touch(func() {
		if err := s.transport.StopTyping(room); err != nil {
			s.log.Debug("stop typing failed", "error", err)
		}
	})
}

// SendMessage emits the content to the active room, fire-and-forget with an
// acknowledgment. Without an active room, or with blank content, the call is
// a silent no-op. No cache is touched on success: the echoed newMessage event
// is the sole path by which the sent message appears.
func (s *Store) SendMessage(content string) {
	s.mu.Lock()
	room := s.activeRoom
	if room == 0 || strings.TrimSpace(content) == "" {
		s.mu.Unlock()
		return
	}
	p := PendingSend{
		ID:      uuid.NewString(),
		Room:    room,
		Content: content,
		At:      time.Now(),
		State:   SendStateSending,
	}
	s.pending = append(s.pending, p)
	s.mu.Unlock()

	s.debounce.Cancel()
	if err := s.transport.StopTyping(room); err != nil {
		s.log.Debug("stop typing failed", "error", err)
	}

	s.emit(p)
}

// RetrySend re-emits a failed pending send under the same record.
func (s *Store) RetrySend(id string) error {
	s.mu.Lock()
	var found *PendingSend
	for i := range s.pending {
		if s.pending[i].ID == id && s.pending[i].State == SendStateFailed {
			s.pending[i].State = SendStateSending
			s.pending[i].Err = nil
			p := s.pending[i]
			found = &p
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return errs.ErrUnknownPending
	}
	s.emit(*found)
	return nil
}

func (s *Store) emit(p PendingSend) {
	err := s.transport.SendMessage(p.Room, p.Content, func(ackErr error) {
		s.resolve(p.ID, ackErr)
	})
	if err != nil {
		s.resolve(p.ID, err)
	}
}

func (s *Store) resolve(id string, err error) {
	s.mu.Lock()
	idx := -1
	for i := range s.pending {
		if s.pending[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	if err == nil {
		s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
		s.mu.Unlock()
		return
	}
	s.pending[idx].State = SendStateFailed
	s.pending[idx].Err = err
	room, content := s.pending[idx].Room, s.pending[idx].Content
	s.mu.Unlock()

	s.log.Error("message send failed", "room", int(room), "error", err)
	if s.onSendFailure != nil {
		s.onSendFailure(room, content, err)
	}
}

// LeaveRoom leaves the active room for good via the REST collaborator. On
// success the room vanishes from the summary and its cache is discarded; a
// rejoin starts over from an empty cache. On failure nothing changes locally.
func (s *Store) LeaveRoom(ctx context.Context) error {
	s.mu.Lock()
	room := s.activeRoom
	s.mu.Unlock()
	if room == 0 {
		return errs.ErrNoActiveRoom
	}

	if err := s.api.LeaveRoom(ctx, room); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}

	s.debounce.Cancel()

	s.mu.Lock()
	s.summary.Remove(room)
	s.history.Drop(room)
	if s.activeRoom == room {
		s.activeRoom = 0
		s.chatOpen = false
	}
	// Failed sends from other rooms stay retryable.
	s.pending = lo.Reject(s.pending, func(p PendingSend, _ int) bool {
		return p.Room == room
	})
	s.typingNickname = ""
	s.mu.Unlock()

	s.registry.ClearActive()
	s.registry.RemovePassive(room)
	if err := s.transport.LeaveRoom(room); err != nil {
		s.log.Warn("session leave failed", "room", int(room), "error", err)
	}
	return nil
}

// FetchOlderMessages loads the next history page of the active room, for
// scroll-back. A room with no further pages is a no-op.
func (s *Store) FetchOlderMessages(ctx context.Context) error {
	s.mu.Lock()
	room := s.activeRoom
	if room == 0 {
		s.mu.Unlock()
		return errs.ErrNoActiveRoom
	}
	if !s.history.HasMore(room) {
		s.mu.Unlock()
		return nil
	}
	next := s.history.PageCount(room) + 1
	s.mu.Unlock()

	page, err := s.api.GetMessages(ctx, room, next, s.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("history fetch: %w", err)
	}

	s.mu.Lock()
	s.history.AddPage(room, page)
	s.mu.Unlock()
	return nil
}

func (s *Store) Self() auth.Identity { return s.self }

func (s *Store) Rooms() []domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.Rooms()
}

func (s *Store) Room(id domain.RoomID) (domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.Room(id)
}

// Messages returns a room's cached history in display order.
func (s *Store) Messages(id domain.RoomID) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Flatten(id)
}

func (s *Store) ActiveRoom() domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoom
}

func (s *Store) IsChatOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatOpen
}

// TypingNickname returns who is typing in the active room, "" for nobody.
func (s *Store) TypingNickname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingNickname
}

func (s *Store) PendingSends() []PendingSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PendingSend(nil), s.pending...)
}
