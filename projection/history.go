package projection

import (
	"sort"

	"github.com/samber/lo"

	"marketchat/domain"
)

// History is the paginated message cache, one entry per room that has been
// opened at least once this session. Pages are held newest-page-first, each
// page newest-message-first as delivered; Flatten re-sorts ascending for
// display. Events for rooms never opened must not create an entry here.
//
// Messages are deduplicated by id when merging pages and live events, so a
// replayed event or an overlapping page fetch cannot double-append.
type History struct {
	pages map[domain.RoomID][]domain.MessagePage
	seen  map[domain.RoomID]map[int]struct{}
}

func NewHistory() *History {
	return &History{
		pages: make(map[domain.RoomID][]domain.MessagePage),
		seen:  make(map[domain.RoomID]map[int]struct{}),
	}
}

// Tracked reports whether a cache entry exists for the room.
func (h *History) Tracked(id domain.RoomID) bool {
	_, ok := h.pages[id]
	return ok
}

// Open lazily creates the cache entry for a room. Idempotent.
func (h *History) Open(id domain.RoomID) {
	if h.Tracked(id) {
		return
	}
	h.pages[id] = []domain.MessagePage{{}}
	h.seen[id] = make(map[int]struct{})
}

// Drop discards a room's cache entirely. A later rejoin starts from an empty
// cache and must re-fetch history.
func (h *History) Drop(id domain.RoomID) {
	delete(h.pages, id)
	delete(h.seen, id)
}

// AddPage appends an older page fetched from the history endpoint. Messages
// already present in the cache are skipped.
func (h *History) AddPage(id domain.RoomID, page domain.MessagePage) {
	if !h.Tracked(id) {
		return
	}
	page.Messages = lo.Filter(page.Messages, func(m domain.Message, _ int) bool {
		return h.mark(id, m.ID)
	})
	h.pages[id] = append(h.pages[id], page)
}

// Append merges one live message into the room's most recent page. It does
// nothing when the room has no cache entry, and reports whether the message
// was actually added (false for duplicates and untracked rooms).
func (h *History) Append(msg domain.Message) bool {
	pages, ok := h.pages[msg.RoomID]
	if !ok {
		return false
	}
	if !h.mark(msg.RoomID, msg.ID) {
		return false
	}
	latest := pages[0]
	latest.Messages = append([]domain.Message{msg}, latest.Messages...)
	pages[0] = latest
	h.pages[msg.RoomID] = pages
	return true
}

// HasMore reports whether the oldest fetched page said more history exists.
func (h *History) HasMore(id domain.RoomID) bool {
	pages := h.pages[id]
	if len(pages) == 0 {
		return false
	}
	return pages[len(pages)-1].HasMore
}

// PageCount returns the number of fetched pages, the live page excluded.
func (h *History) PageCount(id domain.RoomID) int {
	if !h.Tracked(id) {
		return 0
	}
	return len(h.pages[id]) - 1
}

// Flatten returns the room's messages in ascending creation order, id as the
// tiebreak for messages sharing a timestamp.
func (h *History) Flatten(id domain.RoomID) []domain.Message {
	messages := lo.FlatMap(h.pages[id], func(p domain.MessagePage, _ int) []domain.Message {
		return p.Messages
	})
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages
}

// mark records a message id and reports whether it was new.
func (h *History) mark(id domain.RoomID, msgID int) bool {
	ids, ok := h.seen[id]
	if !ok {
		return false
	}
	if _, dup := ids[msgID]; dup {
		return false
	}
	ids[msgID] = struct{}{}
	return true
}
