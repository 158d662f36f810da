package events

import (
	"context"

	"threatScope/internal/model"
	"threatScope/internal/storage"
)

// JournalSubscriber writes every event to a storage sink.
type JournalSubscriber struct {
	store storage.Storage
}

func NewJournalSubscriber(store storage.Storage) *JournalSubscriber {
	return &JournalSubscriber{store: store}
}

func (j *JournalSubscriber) Name() string {
	return "journal"
}

func (j *JournalSubscriber) Handle(_ context.Context, event model.ThreatEvent) error {
	return j.store.PutEventBatch([]model.ThreatEvent{event})
}

func (j *JournalSubscriber) Close() error {
	return nil
}
