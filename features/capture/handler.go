package capture

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"pdc/backend/internal/middleware"
)

// maxListLimit bounds GET /items page size; out-of-range values fall back
// to the default rather than erroring.
const maxListLimit = 500

type Handler struct {
	service        *Service
	maxUploadBytes int64
}

func NewHandler(service *Service, maxUploadBytes int64) *Handler {
	return &Handler{service: service, maxUploadBytes: maxUploadBytes}
}

// Create handles POST /capture: direct text ingestion.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content    string         `json:"content"`
		Source     string         `json:"source"`
		Metadata   map[string]any `json:"metadata"`
		CapturedAt *time.Time     `json:"captured_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.service.CaptureText(r.Context(), TextCapture{
		Content:    req.Content,
		Source:     req.Source,
		Metadata:   req.Metadata,
		CapturedAt: req.CapturedAt,
	})
	if err != nil {
		h.writeFault(r.Context(), w, err)
		return
	}

	h.writeResult(w, res)
}

// Upload handles POST /capture/file: multipart file ingestion.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	// Headroom for the multipart envelope around the payload itself; the
	// precise content limit is enforced by the service.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)

	if err := r.ParseMultipartForm(h.maxUploadBytes + 1<<20); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "unable to parse multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "unable to read file", http.StatusBadRequest)
		return
	}

	var metadata map[string]any
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", "metadata must be a JSON object", http.StatusBadRequest)
			return
		}
	}

	var capturedAt *time.Time
	if raw := r.FormValue("captured_at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", "captured_at must be RFC3339", http.StatusBadRequest)
			return
		}
		capturedAt = &t
	}

	res, err := h.service.CaptureFile(r.Context(), FileCapture{
		Filename:    header.Filename,
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Source:      r.FormValue("source"),
		Metadata:    metadata,
		CapturedAt:  capturedAt,
	})
	if err != nil {
		h.writeFault(r.Context(), w, err)
		return
	}

	h.writeResult(w, res)
}

// Get handles GET /items/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "content item not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "failed to load content item", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": item}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// List handles GET /items.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxListLimit {
			limit = parsed
		}
	}

	items, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "failed to list content items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []ContentItem{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"data": items,
		"meta": map[string]int{"count": len(items)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeResult(w http.ResponseWriter, res *Result) {
	w.Header().Set("Content-Type", "application/json")
	if res.Status == StatusCreated {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(map[string]any{"data": res}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeFault(ctx context.Context, w http.ResponseWriter, err error) {
	var fault *Fault
	if !errors.As(err, &fault) {
		slog.ErrorContext(ctx, "unclassified capture failure", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	switch fault.Kind {
	case FaultClient:
		h.writeError(ctx, w, "VALIDATION_ERROR", fault.Message, http.StatusBadRequest)
	case FaultExtraction:
		slog.ErrorContext(ctx, "extraction failed", "error", fault)
		h.writeError(ctx, w, "EXTRACTION_FAILED", fault.Error(), http.StatusUnprocessableEntity)
	case FaultEmbedding:
		slog.ErrorContext(ctx, "embedding failed", "error", fault)
		h.writeError(ctx, w, "EMBEDDING_FAILED", "embedding generation failed", http.StatusBadGateway)
	case FaultConfiguration:
		slog.ErrorContext(ctx, "embedding provider misconfigured", "error", fault)
		h.writeError(ctx, w, "CONFIGURATION_ERROR", "embedding provider is not configured", http.StatusInternalServerError)
	default:
		slog.ErrorContext(ctx, "storage failure", "error", fault)
		h.writeError(ctx, w, "STORAGE_ERROR", "failed to persist content", http.StatusInternalServerError)
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
