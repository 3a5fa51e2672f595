package worker

import "context"

// IndexedItem is one capture as it lands in the search index.
type IndexedItem struct {
	ContentItemID string
	ContentHash   string
	Source        string
	Content       string
	ModelVersion  string
	Vector        []float32
}

type IndexStore interface {
	StoreItem(ctx context.Context, item IndexedItem) error
	DeleteByContentItemID(ctx context.Context, contentItemID string) error
}

type ContentFetcher interface {
	GetForIndex(ctx context.Context, contentItemID string) (IndexedItem, error)
}
