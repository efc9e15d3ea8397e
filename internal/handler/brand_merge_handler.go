package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

type brandMerger interface {
	Merge(ctx context.Context, mode models.MergeMode, opts models.MergeOptions) (*models.MergeResult, error)
}

type brandPurger interface {
	Purge(ctx context.Context, opts models.PurgeOptions) (*models.PurgeResult, error)
}

// BrandMergeHandler handles brand consolidation and cleanup endpoints.
type BrandMergeHandler struct {
	merger brandMerger
	purger brandPurger
}

// NewBrandMergeHandler creates a new BrandMergeHandler.
func NewBrandMergeHandler(merger brandMerger, purger brandPurger) *BrandMergeHandler {
	return &BrandMergeHandler{merger: merger, purger: purger}
}

type mergeRequest struct {
	Mode     string `json:"mode" binding:"required"`
	Provider string `json:"provider"`
	Limit    int    `json:"limit"`
	Dry      bool   `json:"dry"`
}

type purgeRequest struct {
	MergedOnly *bool `json:"mergedOnly"`
	Dry        bool  `json:"dry"`
}

// Merge handles POST /v1/admin/catalog/brands/merge.
func (h *BrandMergeHandler) Merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "mode is required")
		return
	}
	if req.Limit < 0 {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must not be negative")
		return
	}

	res, err := h.merger.Merge(c.Request.Context(), models.MergeMode(req.Mode), models.MergeOptions{
		Provider: req.Provider,
		Limit:    req.Limit,
		DryRun:   req.Dry,
	})
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Brand merge completed", res)
}

// Purge handles POST /v1/admin/catalog/brands/purge. Only merged brands are
// purged unless mergedOnly is explicitly false.
func (h *BrandMergeHandler) Purge(c *gin.Context) {
	var req purgeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	mergedOnly := true
	if req.MergedOnly != nil {
		mergedOnly = *req.MergedOnly
	}

	res, err := h.purger.Purge(c.Request.Context(), models.PurgeOptions{MergedOnly: mergedOnly, DryRun: req.Dry})
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Brand purge completed", res)
}
