package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance/internal/constants"
)

// Reindexer rebuilds the enrollment search index.
type Reindexer interface {
	Rebuild(ctx context.Context) (int, error)
}

// IndexHandler exposes manual index maintenance.
type IndexHandler struct {
	reindexer Reindexer
	logger    *slog.Logger
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(reindexer Reindexer, logger *slog.Logger) *IndexHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexHandler{reindexer: reindexer, logger: logger}
}

// ReindexResponse is the body of POST /api/reindex.
type ReindexResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Count      int    `json:"count"`
	DurationMs int64  `json:"duration_ms"`
}

// Reindex re-embeds every reference image and replaces the in-memory index.
func (h *IndexHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	count, err := h.reindexer.Rebuild(r.Context())
	if err != nil {
		h.logger.Error("failed to rebuild index", "error", err)
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to rebuild index: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, ReindexResponse{
		Status:     constants.StatusSuccess,
		Message:    fmt.Sprintf("Indexed %d reference images", count),
		Count:      count,
		DurationMs: time.Since(start).Milliseconds(),
	})
}
