package capture

import (
	"context"
	"time"
)

// ContentItem is the durable record of one piece of captured text. Rows
// are immutable once created.
type ContentItem struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	ContentHash string         `json:"content_hash"`
	Source      string         `json:"source"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	CapturedAt  *time.Time     `json:"captured_at,omitempty"`
}

// Embedding is the vector representation attached 1:1 to a ContentItem.
// It is only ever written together with its owning item.
type Embedding struct {
	ID            string    `json:"id"`
	ContentItemID string    `json:"content_item_id"`
	Vector        []float32 `json:"-"`
	ModelVersion  string    `json:"model_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// TextCapture is a direct text ingestion request.
type TextCapture struct {
	Content    string
	Source     string
	Metadata   map[string]any
	CapturedAt *time.Time
}

// FileCapture is a file ingestion request. ContentType is whatever the
// caller declared; it is stored as metadata and never trusted for dispatch.
type FileCapture struct {
	Filename    string
	Data        []byte
	ContentType string
	Source      string
	Metadata    map[string]any
	CapturedAt  *time.Time
}

const (
	StatusCreated       = "created"
	StatusAlreadyExists = "already_exists"
)

// FileInfo describes the uploaded file on a successful file capture.
type FileInfo struct {
	Filename  string `json:"filename"`
	SizeBytes int    `json:"size_bytes"`
	Kind      string `json:"kind"`
}

// Result is the terminal outcome of a successful capture. Status
// distinguishes a fresh commit from a dedup hit; both are success.
type Result struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Preview   string    `json:"preview,omitempty"`
	File      *FileInfo `json:"file,omitempty"`
}

type Repository interface {
	GetByHash(ctx context.Context, hash string) (*ContentItem, error)
	CreateWithEmbedding(ctx context.Context, item *ContentItem, vector []float32, modelVersion string) error
	Get(ctx context.Context, id string) (*ContentItem, error)
	GetEmbedding(ctx context.Context, contentItemID string) (*Embedding, error)
	List(ctx context.Context, limit int) ([]ContentItem, error)
	Count(ctx context.Context) (int, error)
	CountEmbeddings(ctx context.Context) (int, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelVersion() string
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}
