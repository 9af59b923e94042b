package store

import (
	"sync"

	"marketchat/domain"
	"marketchat/domain/event"
)

// Registry tracks which rooms this client receives push updates for, at two
// tiers. The passive tier is bulk and connection-scoped: it entitles the
// client to message and lifecycle events so summaries stay live without the
// room being open. The active tier is a single room, UI-scoped: it entitles
// the client to typing signals, which are too chatty to broadcast to rooms
// nobody is looking at.
type Registry struct {
	mu      sync.RWMutex
	passive map[domain.RoomID]struct{}
	active  domain.RoomID
}

func NewRegistry() *Registry {
	return &Registry{passive: make(map[domain.RoomID]struct{})}
}

// ReplacePassive swaps the passive set for the one issued with the latest
// bulk subscribe. Called on every (re)connect, so a stale pre-drop set never
// survives a reconnect.
func (r *Registry) ReplacePassive(ids []domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.passive = make(map[domain.RoomID]struct{}, len(ids))
	for _, id := range ids {
		r.passive[id] = struct{}{}
	}
}

func (r *Registry) AddPassive(id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passive[id] = struct{}{}
}

func (r *Registry) RemovePassive(id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.passive, id)
}

func (r *Registry) Passive(id domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.passive[id]
	return ok
}

func (r *Registry) SetActive(id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = id
}

func (r *Registry) ClearActive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = 0
}

func (r *Registry) Active() domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Expected reports whether an inbound event is one this client is entitled
// to. Room-scoped events require a passive subscription (or the active room);
// typing requires an active join; connection lifecycle and room announcements
// are always expected.
func (r *Registry) Expected(e event.DomainEvent) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch e.(type) {
	case event.NewMessage, event.UserLeft, event.UserRejoined:
		if _, ok := r.passive[e.RoomID()]; ok {
			return true
		}
		return e.RoomID() == r.active && r.active != 0
	case event.Typing:
		return r.active != 0
	default:
		return true
	}
}
