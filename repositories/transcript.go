//go:generate go run go.uber.org/mock/mockgen -source=transcript.go -destination=../mocks/mock_transcript_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
)

type ITranscriptRepository interface {
	Store(entry Entry) error
	Tail(room int, cursor *string) ([]Entry, *string, error)
	Search(ctx context.Context, room int, text string, limit int) ([]Entry, error)
}

// TranscriptRepository keeps a local archive of everything the session saw,
// so conversations survive past what the remote history endpoint returns.
// Badger holds the entries, Bluge makes their content searchable.
type TranscriptRepository struct {
	db           *badger.DB
	index        *bluge.Writer
	log          *slog.Logger
	limitEntries *int
}

func NewTranscriptRepository(db *badger.DB, index *bluge.Writer, log *slog.Logger, limitEntries *int) TranscriptRepository {
	return TranscriptRepository{db: db, index: index, log: log, limitEntries: limitEntries}
}

type Entry struct {
	MessageID int       `json:"messageId"`
	Room      int       `json:"room"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
	System    bool      `json:"system"`
}

// Store persists an entry under "msg:{room}:{timestamp_padded}:{message_id}".
// The 19-digit zero padding makes lexicographical key order chronological,
// and the message id disambiguates two entries landing on the same nanosecond.
// Storing the same message twice overwrites the identical key, so replays
// after a reconnect are harmless.
func (t TranscriptRepository) Store(entry Entry) error {
	key := fmt.Sprintf("msg:%d:%019d:%d", entry.Room, entry.At.UnixNano(), entry.MessageID)
	bytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	err = t.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
	if err != nil {
		return err
	}
	return t.indexEntry(key, entry)
}

func (t TranscriptRepository) indexEntry(key string, entry Entry) error {
	doc := bluge.NewDocument(key).
		AddField(bluge.NewKeywordField("room", strconv.Itoa(entry.Room))).
		AddField(bluge.NewTextField("content", entry.Content).StoreValue()).
		AddField(bluge.NewKeywordField("author", entry.Author).StoreValue())
	return t.index.Update(doc.ID(), doc)
}

// Tail walks a room's archive newest-first using a prefix scan. A nil cursor
// starts from the most recent entry; the returned cursor resumes past the
// last entry of the page.
func (t TranscriptRepository) Tail(room int, cursor *string) ([]Entry, *string, error) {
	var raw [][]byte
	var lastKey string
	err := t.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%d:", room)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Position past every possible timestamp, then walk backwards
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if t.limitEntries != nil && len(raw) == *t.limitEntries {
				t.log.Debug(fmt.Sprintf("Maximum of %d entries reached", *t.limitEntries))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var entries []Entry
	for _, b := range raw {
		var entry Entry
		if err = json.Unmarshal(b, &entry); err != nil {
			return nil, nil, err
		}
		entries = append(entries, entry)
	}
	return entries, &lastKey, nil
}

// Search runs a full-text match over a room's archived content.
func (t TranscriptRepository) Search(ctx context.Context, room int, text string, limit int) ([]Entry, error) {
	reader, err := t.index.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(strconv.Itoa(room)).SetField("room")).
		AddMust(bluge.NewMatchQuery(text).SetField("content"))

	iter, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var entries []Entry
	match, err := iter.Next()
	for err == nil && match != nil {
		var key string
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				key = string(value)
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		entry, found, lookupErr := t.lookup(key)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if found {
			entries = append(entries, entry)
		}
		match, err = iter.Next()
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (t TranscriptRepository) lookup(key string) (Entry, bool, error) {
	var entry Entry
	found := false
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &entry)
		})
	})
	return entry, found, err
}
