package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"

	"bycarket/api/internal/services"
	"bycarket/api/internal/storage"
	"bycarket/api/internal/tasks"
	"bycarket/api/internal/utils"
)

// RestVehicleHandler handles REST requests for vehicles and their images.
type RestVehicleHandler struct {
	vehicleService services.IVehicleService
	storageService storage.IS3Storage
	taskClient     *asynq.Client
}

// NewRestVehicleHandler creates a new RestVehicleHandler.
func NewRestVehicleHandler(vehicleService services.IVehicleService, storageService storage.IS3Storage, taskClient *asynq.Client) *RestVehicleHandler {
	return &RestVehicleHandler{
		vehicleService: vehicleService,
		storageService: storageService,
		taskClient:     taskClient,
	}
}

// CreateVehicle handles POST /v1/vehicles.
func (h *RestVehicleHandler) CreateVehicle(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input services.VehicleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	vehicle, err := h.vehicleService.CreateVehicle(c.Request.Context(), userID, input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, vehicle)
}

// GetMyVehicles handles GET /v1/me/vehicles.
func (h *RestVehicleHandler) GetMyVehicles(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	vehicles, err := h.vehicleService.FindVehiclesByUser(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch vehicles"})
		return
	}
	c.JSON(http.StatusOK, vehicles)
}

// GetVehicleByID handles GET /v1/vehicles/:id.
func (h *RestVehicleHandler) GetVehicleByID(c *gin.Context) {
	vehicleID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID format"})
		return
	}

	vehicle, err := h.vehicleService.FindVehicleByID(c.Request.Context(), vehicleID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vehicle"})
		}
		return
	}
	c.JSON(http.StatusOK, vehicle)
}

// UpdateVehicle handles PUT /v1/vehicles/:id.
func (h *RestVehicleHandler) UpdateVehicle(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	vehicleID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID format"})
		return
	}

	var input services.VehicleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	vehicle, err := h.vehicleService.UpdateVehicle(c.Request.Context(), vehicleID, userID, input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, vehicle)
}

// DeleteVehicle handles DELETE /v1/vehicles/:id.
func (h *RestVehicleHandler) DeleteVehicle(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	vehicleID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID format"})
		return
	}

	if err := h.vehicleService.DeleteVehicle(c.Request.Context(), vehicleID, userID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ImageUploadRequest is the body for requesting a presigned image upload.
type ImageUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

var allowedImageContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// RequestImageUpload handles POST /v1/vehicles/:id/images. It verifies
// ownership, then returns a presigned PUT URL the client uploads to directly.
func (h *RestVehicleHandler) RequestImageUpload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	vehicleID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID format"})
		return
	}

	var req ImageUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if !allowedImageContentTypes[req.ContentType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content type must be image/jpeg or image/png"})
		return
	}

	vehicle, err := h.vehicleService.FindVehicleByID(c.Request.Context(), vehicleID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return
	}
	if vehicle.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your vehicle"})
		return
	}

	filename := filepath.Base(strings.TrimSpace(req.Filename))
	uploadURL, objectKey, err := h.storageService.GeneratePresignedPutURL(
		c.Request.Context(), userID.String(), vehicleID.String(), filename, req.ContentType)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare upload"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"upload_url": uploadURL,
		"key":        objectKey,
	})
}

// ImageUploadedRequest is the body for confirming a finished upload.
type ImageUploadedRequest struct {
	Key string `json:"key" binding:"required"`
}

// ConfirmImageUpload handles POST /v1/vehicles/:id/images/complete. It
// enqueues the normalization task; the image becomes visible on the vehicle
// once the task finishes.
func (h *RestVehicleHandler) ConfirmImageUpload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	vehicleID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID format"})
		return
	}

	var req ImageUploadedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	// The key embeds the owner and vehicle; refuse mismatched confirmations.
	expectedPrefix := "uploads/" + userID.String() + "/" + vehicleID.String() + "/"
	if !strings.HasPrefix(req.Key, expectedPrefix) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Upload key does not match this vehicle"})
		return
	}

	err = tasks.EnqueueImageProcess(c.Request.Context(), h.taskClient, tasks.ImageTaskPayload{
		S3Key:     req.Key,
		VehicleID: vehicleID.String(),
	})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule image processing"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "processing"})
}
