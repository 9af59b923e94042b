// Package sink holds consumers fanned out after the cache has applied an
// event. Sinks observe the stream; they never feed state back into it.
package sink

import (
	"context"
	"fmt"
	"log/slog"

	"marketchat/domain"
	"marketchat/domain/event"
	"marketchat/repositories"
)

// ArchiveSink writes every message the session receives to the local
// transcript archive.
type ArchiveSink struct {
	repository repositories.ITranscriptRepository
	log        *slog.Logger
}

func NewArchiveSink(repository repositories.ITranscriptRepository, log *slog.Logger) ArchiveSink {
	return ArchiveSink{repository: repository, log: log}
}

func (a ArchiveSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.NewMessage:
		return a.repository.Store(toEntry(evt.Message))
	case event.UserLeft:
		return a.repository.Store(toEntry(evt.SystemMessage))
	case event.UserRejoined:
		return a.repository.Store(toEntry(evt.SystemMessage))
	default:
		a.log.Debug(fmt.Sprintf("Not archived event : %v", evt))
		return nil
	}
}

func toEntry(msg domain.Message) repositories.Entry {
	return repositories.Entry{
		MessageID: msg.ID,
		Room:      int(msg.RoomID),
		Author:    msg.Sender.Nickname,
		Content:   msg.Content,
		At:        msg.CreatedAt,
		System:    msg.System,
	}
}
