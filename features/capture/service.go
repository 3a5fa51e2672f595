package capture

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pdc/backend/internal/adapter/gemini"
	"pdc/backend/internal/config"
	"pdc/backend/internal/extract"
	"pdc/backend/internal/middleware"
	"pdc/backend/internal/worker"
)

const (
	maxSourceLen = 100
	previewLen   = 200
)

// Service orchestrates one capture end to end: validate, hash, dedup
// lookup, extract (file path), embed, persist atomically, recover the
// insert race, announce the commit.
type Service struct {
	repo        Repository
	embedder    Embedder
	pub         EventPublisher
	maxFileSize int64
}

func NewService(repo Repository, embedder Embedder, pub EventPublisher, maxFileSize int64) *Service {
	return &Service{repo: repo, embedder: embedder, pub: pub, maxFileSize: maxFileSize}
}

func (s *Service) CaptureText(ctx context.Context, req TextCapture) (*Result, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, NewFault(FaultClient, "content cannot be empty or whitespace only", nil)
	}
	source, err := validateSource(req.Source)
	if err != nil {
		return nil, err
	}

	meta := req.Metadata
	if meta == nil {
		meta = map[string]any{}
	}

	return s.capture(ctx, content, source, meta, req.CapturedAt)
}

func (s *Service) CaptureFile(ctx context.Context, req FileCapture) (*Result, error) {
	source := req.Source
	if source == "" {
		source = "file_upload"
	}
	source, err := validateSource(source)
	if err != nil {
		return nil, err
	}

	// Cheap checks first: size before kind, kind before any byte is parsed.
	if int64(len(req.Data)) > s.maxFileSize {
		return nil, NewFault(FaultClient,
			fmt.Sprintf("file size %d bytes exceeds the %d byte limit", len(req.Data), s.maxFileSize), nil)
	}
	if !extract.IsSupported(req.Filename) {
		return nil, NewFault(FaultClient,
			(&extract.UnsupportedKindError{Ext: extract.Kind(req.Filename), Allowed: extract.Supported()}).Error(), nil)
	}

	text, err := extract.Extract(req.Filename, req.Data)
	if err != nil {
		var unsupported *extract.UnsupportedKindError
		if errors.As(err, &unsupported) {
			return nil, NewFault(FaultClient, unsupported.Error(), nil)
		}
		return nil, NewFault(FaultExtraction, "unable to extract text from file", err)
	}

	content := strings.TrimSpace(text)
	if content == "" {
		// Unusable input, not a system defect.
		return nil, NewFault(FaultClient, "extracted text is empty", nil)
	}

	meta := map[string]any{
		"filename":   req.Filename,
		"size_bytes": len(req.Data),
		"kind":       extract.Kind(req.Filename),
	}
	if req.ContentType != "" {
		meta["content_type"] = req.ContentType
	}
	for k, v := range req.Metadata {
		meta[k] = v
	}

	res, err := s.capture(ctx, content, source, meta, req.CapturedAt)
	if err != nil {
		return nil, err
	}

	res.Preview = preview(content)
	res.File = &FileInfo{
		Filename:  req.Filename,
		SizeBytes: len(req.Data),
		Kind:      extract.Kind(req.Filename),
	}
	return res, nil
}

// capture runs the shared tail of both paths over already-trimmed content.
func (s *Service) capture(ctx context.Context, content, source string, meta map[string]any, capturedAt *time.Time) (*Result, error) {
	hash := sha256.Sum256([]byte(content))
	contentHash := fmt.Sprintf("%x", hash)

	existing, err := s.repo.GetByHash(ctx, contentHash)
	if err != nil {
		return nil, NewFault(FaultStorage, "content lookup failed", err)
	}
	if existing != nil {
		slog.InfoContext(ctx, "duplicate content detected", "content_item_id", existing.ID, "hash", contentHash)
		return &Result{ID: existing.ID, Status: StatusAlreadyExists, CreatedAt: existing.CreatedAt}, nil
	}

	vector, err := s.embedder.Embed(ctx, content)
	if err != nil {
		var embErr *gemini.EmbeddingError
		if errors.As(err, &embErr) {
			return nil, NewFault(FaultEmbedding, "embedding generation failed", embErr)
		}
		return nil, NewFault(FaultConfiguration, "embedding provider is not usable", err)
	}

	item := &ContentItem{
		Content:     content,
		ContentHash: contentHash,
		Source:      source,
		Metadata:    meta,
		CapturedAt:  capturedAt,
	}

	err = s.repo.CreateWithEmbedding(ctx, item, vector, s.embedder.ModelVersion())
	if errors.Is(err, ErrDuplicateHash) {
		// Lost the insert race: a concurrent capture of the same content
		// committed between our lookup and our insert. The content is now
		// stored exactly once, so return the winner as success.
		winner, lookupErr := s.repo.GetByHash(ctx, contentHash)
		if lookupErr != nil {
			return nil, NewFault(FaultStorage, "conflict recovery lookup failed", lookupErr)
		}
		if winner == nil {
			return nil, NewFault(FaultStorage, "conflict reported but no row found for hash", nil)
		}
		slog.InfoContext(ctx, "recovered concurrent duplicate insert", "content_item_id", winner.ID, "hash", contentHash)
		return &Result{ID: winner.ID, Status: StatusAlreadyExists, CreatedAt: winner.CreatedAt}, nil
	}
	if err != nil {
		return nil, NewFault(FaultStorage, "persisting content failed", err)
	}

	s.publishCreated(ctx, item)

	return &Result{ID: item.ID, Status: StatusCreated, CreatedAt: item.CreatedAt}, nil
}

func (s *Service) publishCreated(ctx context.Context, item *ContentItem) {
	if s.pub == nil {
		return
	}
	payload, _ := json.Marshal(worker.CaptureCreatedEvent{
		ContentItemID: item.ID,
		ContentHash:   item.ContentHash,
		Source:        item.Source,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	// Best effort: the row is committed, the mirror catches up later.
	if err := s.pub.Publish(config.TopicCaptureCreated, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish capture.created event", "error", err, "content_item_id", item.ID)
	} else {
		slog.InfoContext(ctx, "published capture.created event", "content_item_id", item.ID)
	}
}

func (s *Service) Get(ctx context.Context, id string) (*ContentItem, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]ContentItem, error) {
	return s.repo.List(ctx, limit)
}

func validateSource(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", NewFault(FaultClient, "source is required", nil)
	}
	if len(source) > maxSourceLen {
		return "", NewFault(FaultClient, fmt.Sprintf("source exceeds %d characters", maxSourceLen), nil)
	}
	return source, nil
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLen {
		return content
	}
	return string(runes[:previewLen]) + "..."
}
