package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"pdc/backend/internal/middleware"
)

type ContentRepo interface {
	Count(ctx context.Context) (int, error)
	CountEmbeddings(ctx context.Context) (int, error)
}

type IndexStore interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	repo  ContentRepo
	index IndexStore
}

func NewHandler(repo ContentRepo, index IndexStore) *Handler {
	return &Handler{repo: repo, index: index}
}

type StatsResponse struct {
	ContentItems int `json:"content_items"`
	Embeddings   int `json:"embeddings"`
	Indexed      int `json:"indexed"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.repo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count content items", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count content items", http.StatusInternalServerError)
		return
	}

	embeddings, err := h.repo.CountEmbeddings(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count embeddings", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count embeddings", http.StatusInternalServerError)
		return
	}

	// The index mirror can lag the database; a count failure is not fatal.
	indexed, err := h.index.Count(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to count indexed items", "error", err)
		indexed = 0
	}

	resp := StatsResponse{ContentItems: items, Embeddings: embeddings, Indexed: indexed}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
