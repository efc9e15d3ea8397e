package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

// catalogSyncer is the part of service.CatalogSyncService the handler uses.
type catalogSyncer interface {
	Sync(ctx context.Context, opts models.SyncOptions, events chan<- models.SyncEvent) (*models.SyncSummary, error)
	LastSummary(ctx context.Context, provider string) (*models.SyncSummary, error)
}

// CatalogSyncHandler triggers catalog sync runs.
type CatalogSyncHandler struct {
	svc catalogSyncer
}

// NewCatalogSyncHandler creates a new CatalogSyncHandler.
func NewCatalogSyncHandler(svc catalogSyncer) *CatalogSyncHandler {
	return &CatalogSyncHandler{svc: svc}
}

type syncRequest struct {
	Provider          string   `json:"provider"`
	DeactivateMissing *bool    `json:"deactivateMissing"`
	MarkupPercent     *float64 `json:"markupPercent"`
}

type syncResult struct {
	summary *models.SyncSummary
	err     error
}

// Sync handles POST /v1/admin/catalog/sync. With ?stream=1 progress is
// written as newline-delimited JSON while the run goes on; otherwise the
// final summary is returned once the run ends.
func (h *CatalogSyncHandler) Sync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	opts := models.SyncOptions{
		Provider:          req.Provider,
		DeactivateMissing: req.DeactivateMissing,
		MarkupPercent:     req.MarkupPercent,
	}

	if s := c.Query("stream"); s == "1" || s == "true" {
		h.stream(c, opts)
		return
	}

	summary, err := h.svc.Sync(c.Request.Context(), opts, nil)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Catalog sync completed", summary)
}

func (h *CatalogSyncHandler) stream(c *gin.Context, opts models.SyncOptions) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan models.SyncEvent, 16)
	done := make(chan syncResult, 1)
	go func() {
		summary, err := h.svc.Sync(ctx, opts, events)
		done <- syncResult{summary: summary, err: err}
	}()

	// Errors raised before the first event (unknown provider, run in
	// progress) still get a regular JSON error response.
	first, ok := <-events
	if !ok {
		res := <-done
		if res.err != nil {
			utils.HandleServiceError(c, res.err)
			return
		}
		utils.Success(c, http.StatusOK, "Catalog sync completed", res.summary)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering
	c.Status(http.StatusOK)

	pending := &first
	gone := c.Stream(func(w io.Writer) bool {
		ev := pending
		pending = nil
		if ev == nil {
			next, ok := <-events
			if !ok {
				return false
			}
			ev = &next
		}
		if err := json.NewEncoder(w).Encode(*ev); err != nil {
			return false
		}
		return true
	})

	if gone {
		log.Info().Msg("Catalog sync stream closed by client, cancelling run")
	}
	cancel()
	for range events {
	}
	<-done
}

// LastSummary handles GET /v1/admin/catalog/sync/last?provider=.
func (h *CatalogSyncHandler) LastSummary(c *gin.Context) {
	summary, err := h.svc.LastSummary(c.Request.Context(), c.Query("provider"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	if summary == nil {
		utils.Error(c, http.StatusNotFound, "NOT_FOUND", "No sync run recorded")
		return
	}
	utils.Success(c, http.StatusOK, "Last sync summary", summary)
}
