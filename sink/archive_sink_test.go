package sink

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketchat/domain"
	"marketchat/domain/event"
	"marketchat/repositories"
)

type recordingRepository struct {
	stored []repositories.Entry
}

func (r *recordingRepository) Store(entry repositories.Entry) error {
	r.stored = append(r.stored, entry)
	return nil
}

func (r *recordingRepository) Tail(int, *string) ([]repositories.Entry, *string, error) {
	return nil, nil, nil
}

func (r *recordingRepository) Search(context.Context, int, string, int) ([]repositories.Entry, error) {
	return nil, nil
}

func TestArchiveSink_StoresChatMessages(t *testing.T) {
	req := require.New(t)
	repo := &recordingRepository{}
	archive := NewArchiveSink(repo, slog.Default())
	at := time.Now().UTC()

	// Given a chat message flowing through the stream
	err := archive.Consume(context.Background(), event.NewMessage{Message: domain.Message{
		ID:        12,
		RoomID:    3,
		Sender:    domain.User{ID: 2, Nickname: "buyer"},
		Content:   "is it still available?",
		CreatedAt: at,
	}})

	// Then it lands in the archive as-is
	req.NoError(err)
	req.Len(repo.stored, 1)
	req.Equal(12, repo.stored[0].MessageID)
	req.Equal(3, repo.stored[0].Room)
	req.Equal("buyer", repo.stored[0].Author)
	req.False(repo.stored[0].System)
}

func TestArchiveSink_StoresLifecycleSystemMessages(t *testing.T) {
	req := require.New(t)
	repo := &recordingRepository{}
	archive := NewArchiveSink(repo, slog.Default())
	at := time.Now().UTC()

	err := archive.Consume(context.Background(), event.UserLeft{
		Room: 3,
		SystemMessage: domain.Message{
			ID: 13, RoomID: 3, Content: "buyer left the room",
			CreatedAt: at, System: true,
		},
	})

	req.NoError(err)
	req.Len(repo.stored, 1)
	req.True(repo.stored[0].System)
	req.Empty(repo.stored[0].Author)
}

func TestArchiveSink_IgnoresOtherEvents(t *testing.T) {
	req := require.New(t)
	repo := &recordingRepository{}
	archive := NewArchiveSink(repo, slog.Default())

	req.NoError(archive.Consume(context.Background(), event.Connected{}))
	req.NoError(archive.Consume(context.Background(), event.Typing{Nickname: "buyer", IsTyping: true}))
	req.Empty(repo.stored)
}
