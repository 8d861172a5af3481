package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bycarket/api/internal/services"
)

// RestConfigHandler handles requests for the /config REST endpoint.
type RestConfigHandler struct {
	configService services.IConfigService
}

// NewRestConfigHandler creates a new RestConfigHandler.
func NewRestConfigHandler(configService services.IConfigService) *RestConfigHandler {
	return &RestConfigHandler{configService: configService}
}

// GetPublicConfig returns the publicly accessible configuration parameters.
// Handles GET /v1/config
func (h *RestConfigHandler) GetPublicConfig(c *gin.Context) {
	publicConfig, err := h.configService.GetAllPublic(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve configuration"})
		return
	}
	c.JSON(http.StatusOK, publicConfig)
}

// SetConfigValueRequest is the body for PUT /v1/admin/config/:key.
type SetConfigValueRequest struct {
	Value  interface{} `json:"value" binding:"required"`
	Public bool        `json:"public"`
}

// SetConfigValue handles PUT /v1/admin/config/:key. The new value is stored in
// the configuration collection and broadcast to other instances.
func (h *RestConfigHandler) SetConfigValue(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A config key is required"})
		return
	}

	var req SetConfigValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.configService.SetConfigValue(c.Request.Context(), key, req.Value, req.Public); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update configuration"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "key": key})
}
