// Package projection builds the local view of the session from observed
// events: the room summary list and the per-room message history. It handles
// ordering and deduplication. Reducers here are deterministic merges of prior
// state plus one event; they never emit events or talk to the network.
package projection

import (
	"sort"

	"github.com/samber/lo"

	"marketchat/domain"
)

// Summary is the room list projection. The list is kept sorted descending by
// last-message time; rooms that never had a message sort to the end, stable
// among themselves.
type Summary struct {
	selfID int
	rooms  []domain.Room
}

func NewSummary(selfID int) *Summary {
	return &Summary{selfID: selfID}
}

// Replace swaps in a freshly fetched room list. Locally derived inactive
// flags survive the swap: the REST payload does not carry them.
func (s *Summary) Replace(rooms []domain.Room) {
	inactive := make(map[domain.RoomID]bool, len(s.rooms))
	for _, r := range s.rooms {
		if r.Inactive {
			inactive[r.ID] = true
		}
	}
	s.rooms = append([]domain.Room(nil), rooms...)
	for i := range s.rooms {
		if inactive[s.rooms[i].ID] {
			s.rooms[i].Inactive = true
		}
	}
	s.resort()
}

// Rooms returns the list in display order.
func (s *Summary) Rooms() []domain.Room {
	return append([]domain.Room(nil), s.rooms...)
}

func (s *Summary) Room(id domain.RoomID) (domain.Room, bool) {
	for _, r := range s.rooms {
		if r.ID == id {
			return r, true
		}
	}
	return domain.Room{}, false
}

func (s *Summary) RoomIDs() []domain.RoomID {
	return lo.Map(s.rooms, func(r domain.Room, _ int) domain.RoomID {
		return r.ID
	})
}

// Upsert adds a room announced by the server, or refreshes it if the
// announcement was already observed.
func (s *Summary) Upsert(room domain.Room) {
	for i := range s.rooms {
		if s.rooms[i].ID == room.ID {
			room.Inactive = s.rooms[i].Inactive
			s.rooms[i] = room
			s.resort()
			return
		}
	}
	s.rooms = append(s.rooms, room)
	s.resort()
}

// ApplyMessage merges one observed message into the summary: the room's last
// message is replaced and the unread counter increments iff the sender is not
// self and the room is not the one being viewed. Unknown rooms are ignored;
// the server announces rooms separately.
func (s *Summary) ApplyMessage(msg domain.Message, viewing bool) {
	for i := range s.rooms {
		if s.rooms[i].ID != msg.RoomID {
			continue
		}
		m := msg
		s.rooms[i].LastMessage = &m
		if msg.Sender.ID != s.selfID && !viewing {
			s.rooms[i].UnreadCount++
		}
		s.resort()
		return
	}
}

func (s *Summary) SetInactive(id domain.RoomID, inactive bool) {
	for i := range s.rooms {
		if s.rooms[i].ID == id {
			s.rooms[i].Inactive = inactive
			return
		}
	}
}

// MarkRead resets the unread counter to zero. This is the only path that
// ever decrements it.
func (s *Summary) MarkRead(id domain.RoomID) {
	for i := range s.rooms {
		if s.rooms[i].ID == id {
			s.rooms[i].UnreadCount = 0
			return
		}
	}
}

// Remove drops a room from the list. Only an explicit leave by the current
// user removes a room; a counterpart leaving merely flags it inactive.
func (s *Summary) Remove(id domain.RoomID) {
	s.rooms = lo.Reject(s.rooms, func(r domain.Room, _ int) bool {
		return r.ID == id
	})
}

func (s *Summary) resort() {
	sort.SliceStable(s.rooms, func(i, j int) bool {
		a, b := s.rooms[i].LastMessage, s.rooms[j].LastMessage
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
