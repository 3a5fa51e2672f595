package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"pdc/backend/internal/middleware"
)

// IndexConsumer consumes capture.created events and mirrors the committed
// item into the search index. Postgres stays the system of record; a
// mirror failure is retried by NSQ and never affects the capture outcome.
type IndexConsumer struct {
	store   IndexStore
	fetcher ContentFetcher
}

func NewIndexConsumer(store IndexStore, fetcher ContentFetcher) *IndexConsumer {
	return &IndexConsumer{store: store, fetcher: fetcher}
}

func (c *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var event CaptureCreatedEvent
	err := json.Unmarshal(m.Body, &event)

	correlationID := event.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "invalid capture.created message, dropping", "error", err)
		return nil // Don't retry invalid messages
	}
	if event.ContentItemID == "" {
		slog.ErrorContext(ctx, "capture.created missing content_item_id, dropping")
		return nil
	}

	indexed, err := c.fetcher.GetForIndex(ctx, event.ContentItemID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load content item for indexing", "error", err, "content_item_id", event.ContentItemID)
		return err
	}

	// Delete-then-store keeps redelivered messages idempotent.
	if err := c.store.DeleteByContentItemID(ctx, event.ContentItemID); err != nil {
		slog.ErrorContext(ctx, "failed to delete stale index entry", "error", err, "content_item_id", event.ContentItemID)
		return err
	}

	if err := c.store.StoreItem(ctx, indexed); err != nil {
		slog.ErrorContext(ctx, "failed to index content item", "error", err, "content_item_id", event.ContentItemID)
		return err
	}

	slog.InfoContext(ctx, "content item indexed", "content_item_id", event.ContentItemID)
	return nil
}
