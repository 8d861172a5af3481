package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"bycarket/api/internal/services"
	"bycarket/api/internal/utils"
)

// RestCatalogHandler handles REST requests for the brand/model/version catalog.
type RestCatalogHandler struct {
	catalogService services.ICatalogService
}

// NewRestCatalogHandler creates a new RestCatalogHandler.
func NewRestCatalogHandler(catalogService services.ICatalogService) *RestCatalogHandler {
	return &RestCatalogHandler{catalogService: catalogService}
}

// ListBrands handles GET /v1/brands.
func (h *RestCatalogHandler) ListBrands(c *gin.Context) {
	brands, err := h.catalogService.ListBrands(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch brands"})
		return
	}
	c.JSON(http.StatusOK, brands)
}

// ListModels handles GET /v1/brands/:id/models.
func (h *RestCatalogHandler) ListModels(c *gin.Context) {
	brandID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid brand ID format"})
		return
	}

	vehicleModels, err := h.catalogService.ListModels(c.Request.Context(), brandID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch models"})
		return
	}
	c.JSON(http.StatusOK, vehicleModels)
}

// ListVersions handles GET /v1/models/:id/versions.
func (h *RestCatalogHandler) ListVersions(c *gin.Context) {
	modelID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid model ID format"})
		return
	}

	versions, err := h.catalogService.ListVersions(c.Request.Context(), modelID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch versions"})
		return
	}
	c.JSON(http.StatusOK, versions)
}

// NameRequest is the body for catalog creation endpoints.
type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateBrand handles POST /v1/admin/brands.
func (h *RestCatalogHandler) CreateBrand(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A name is required"})
		return
	}

	brand, err := h.catalogService.CreateBrand(c.Request.Context(), req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, brand)
}

// CreateModel handles POST /v1/admin/brands/:id/models.
func (h *RestCatalogHandler) CreateModel(c *gin.Context) {
	brandID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid brand ID format"})
		return
	}

	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A name is required"})
		return
	}

	vehicleModel, err := h.catalogService.CreateModel(c.Request.Context(), brandID, req.Name)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Brand not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, vehicleModel)
}

// CreateVersion handles POST /v1/admin/models/:id/versions.
func (h *RestCatalogHandler) CreateVersion(c *gin.Context) {
	modelID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid model ID format"})
		return
	}

	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A name is required"})
		return
	}

	version, err := h.catalogService.CreateVersion(c.Request.Context(), modelID, req.Name)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Model not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, version)
}
