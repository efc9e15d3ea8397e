package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

type brandAdmin interface {
	List(ctx context.Context, search string, activeOnly bool, page, limit int) ([]models.Brand, int, error)
	Get(ctx context.Context, code string) (*models.BrandWithProducts, error)
	Create(ctx context.Context, in models.BrandInput) (*models.Brand, error)
	Update(ctx context.Context, code string, in models.BrandInput) (*models.Brand, error)
}

// BrandHandler handles canonical brand admin endpoints.
type BrandHandler struct {
	brandService brandAdmin
}

// NewBrandHandler constructs a BrandHandler.
func NewBrandHandler(brandService brandAdmin) *BrandHandler {
	return &BrandHandler{brandService: brandService}
}

// ListBrands handles GET /v1/admin/catalog/brands.
func (h *BrandHandler) ListBrands(c *gin.Context) {
	search := c.Query("search")
	activeOnly := c.Query("active") != "false"

	page := 1
	limit := 50
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	brands, total, err := h.brandService.List(c.Request.Context(), search, activeOnly, page, limit)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	if brands == nil {
		brands = []models.Brand{}
	}

	utils.SuccessWithPagination(c, http.StatusOK, "Brands retrieved successfully", gin.H{
		"brands": brands,
	}, page, limit, total)
}

// GetBrand handles GET /v1/admin/catalog/brands/:code.
func (h *BrandHandler) GetBrand(c *gin.Context) {
	detail, err := h.brandService.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Brand retrieved successfully", detail)
}

// CreateBrand handles POST /v1/admin/catalog/brands.
func (h *BrandHandler) CreateBrand(c *gin.Context) {
	var req models.BrandInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	b, err := h.brandService.Create(c.Request.Context(), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, http.StatusCreated, "Brand created successfully", b)
}

// UpdateBrand handles PUT /v1/admin/catalog/brands/:code.
func (h *BrandHandler) UpdateBrand(c *gin.Context) {
	var req models.BrandInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	b, err := h.brandService.Update(c.Request.Context(), c.Param("code"), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Brand updated successfully", b)
}
