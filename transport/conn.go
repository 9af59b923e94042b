// Package transport owns the single multiplexed bidirectional channel of a
// session: one websocket bound to the bearer credential, JSON frames in both
// directions, and per-send acknowledgment correlation. Inbound frames are
// decoded into the domain event union at this boundary.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"marketchat/auth"
	"marketchat/config"
	"marketchat/contract"
	"marketchat/domain"
	"marketchat/domain/event"
	errs "marketchat/errors"
)

type pendingAck struct {
	fn    contract.AckFunc
	timer *time.Timer
}

type Conn struct {
	log        *slog.Logger
	url        string
	dialer     *websocket.Dialer
	ackTimeout time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration

	events chan event.DomainEvent

	mu      sync.Mutex
	ws      *websocket.Conn
	running bool
	cancel  context.CancelFunc
	acks    map[string]pendingAck

	// gorilla allows one concurrent writer per connection
	wmu sync.Mutex
}

func New(log *slog.Logger, cfg config.Config) *Conn {
	return &Conn{
		log:        log,
		url:        cfg.SocketURL,
		dialer:     websocket.DefaultDialer,
		ackTimeout: cfg.AckTimeout,
		minBackoff: cfg.ReconnectMinBackoff,
		maxBackoff: cfg.ReconnectMaxBackoff,
		events:     make(chan event.DomainEvent, cfg.EventBufferSize),
		acks:       make(map[string]pendingAck),
	}
}

func (c *Conn) Events() <-chan event.DomainEvent { return c.events }

// Connect starts the connection loop for the credential. A second call while
// the loop runs is a no-op, as is a call without a credential. Dial failures
// are retried with backoff inside the loop; readiness is signaled by the
// server's connected frame on every successful (re)connect.
func (c *Conn) Connect(ctx context.Context, credential auth.Credential) error {
	if credential.Empty() {
		return errs.ErrNoCredential
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx, credential)
	return nil
}

// Disconnect tears the channel down and fails any in-flight acks. Idempotent.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close()
	}
	c.failAcks(errs.ErrNotConnected)
}

func (c *Conn) run(ctx context.Context, credential auth.Credential) {
	header := http.Header{"Authorization": []string{"Bearer " + string(credential)}}
	backoff := c.minBackoff

	for {
		ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("dial failed, retrying", "error", err, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = c.minBackoff

		c.mu.Lock()
		if !c.running {
			c.mu.Unlock()
			_ = ws.Close()
			return
		}
		c.ws = ws
		c.mu.Unlock()

		readErr := c.readLoop(ws)

		c.mu.Lock()
		c.ws = nil
		stopped := !c.running
		c.mu.Unlock()
		c.failAcks(errs.ErrNotConnected)

		if stopped || ctx.Err() != nil {
			return
		}
		c.deliver(event.Disconnected{Err: readErr})
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	for {
		var frame Frame
		if err := ws.ReadJSON(&frame); err != nil {
			return err
		}
		if frame.Event == evAck {
			c.resolveAck(frame)
			continue
		}
		evt, err := decode(frame)
		if err != nil {
			c.log.Warn("dropping frame", "event", frame.Event, "error", err)
			continue
		}
		c.deliver(evt)
	}
}

func (c *Conn) deliver(evt event.DomainEvent) {
	select {
	case c.events <- evt:
	default:
		c.log.Warn("event buffer full, dropping event", "room", int(evt.RoomID()))
	}
}

func (c *Conn) SubscribeToAllRooms(ids []domain.RoomID) error {
	return c.emit(evSubscribeToAllRooms, subscribePayload{
		RoomIDs: lo.Map(ids, func(id domain.RoomID, _ int) int { return int(id) }),
	})
}

func (c *Conn) JoinRoom(id domain.RoomID) error {
	return c.emit(evJoinRoom, roomScopedPayload{RoomID: int(id)})
}

func (c *Conn) LeaveRoom(id domain.RoomID) error {
	return c.emit(evLeaveRoom, roomScopedPayload{RoomID: int(id)})
}

func (c *Conn) StartTyping(id domain.RoomID) error {
	return c.emit(evStartTyping, roomScopedPayload{RoomID: int(id)})
}

func (c *Conn) StopTyping(id domain.RoomID) error {
	return c.emit(evStopTyping, roomScopedPayload{RoomID: int(id)})
}

// SendMessage emits the content with a correlation id and resolves the ack
// exactly once: with the server's answer, with ErrAckTimeout when none comes,
// or not at all when the write itself fails (the returned error covers it).
func (c *Conn) SendMessage(id domain.RoomID, content string, ack contract.AckFunc) error {
	payload, err := json.Marshal(sendPayload{RoomID: int(id), Content: content})
	if err != nil {
		return err
	}

	ackID := uuid.NewString()
	c.mu.Lock()
	c.acks[ackID] = pendingAck{
		fn: ack,
		timer: time.AfterFunc(c.ackTimeout, func() {
			if fn, ok := c.takeAck(ackID); ok {
				fn(errs.ErrAckTimeout)
			}
		}),
	}
	c.mu.Unlock()

	if err := c.send(Frame{Event: evSendMessage, AckID: ackID, Payload: payload}); err != nil {
		// The caller learns of the failure through the return value.
		c.takeAck(ackID)
		return err
	}
	return nil
}

func (c *Conn) emit(name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.send(Frame{Event: name, Payload: raw})
}

func (c *Conn) send(frame Frame) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return errs.ErrNotConnected
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return ws.WriteJSON(frame)
}

func (c *Conn) resolveAck(frame Frame) {
	fn, ok := c.takeAck(frame.AckID)
	if !ok {
		c.log.Debug("ack for unknown or expired send", "ack_id", frame.AckID)
		return
	}

	var p ackPayload
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			fn(errs.ErrInvalidPayload)
			return
		}
	}
	if p.Error != "" {
		fn(fmt.Errorf("send rejected: %s", p.Error))
		return
	}
	fn(nil)
}

// takeAck removes and returns a pending ack, stopping its timeout.
func (c *Conn) takeAck(id string) (contract.AckFunc, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.acks[id]
	if !ok {
		return nil, false
	}
	delete(c.acks, id)
	p.timer.Stop()
	return p.fn, true
}

func (c *Conn) failAcks(err error) {
	c.mu.Lock()
	pending := c.acks
	c.acks = make(map[string]pendingAck)
	c.mu.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		p.fn(err)
	}
}
