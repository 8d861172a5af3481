package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"

	"bycarket/api/internal/auth"
	"bycarket/api/internal/config"
	"bycarket/api/internal/services"
	"bycarket/api/internal/tasks"
	"bycarket/api/internal/utils"
)

// RestUserHandler handles REST requests related to users and sessions.
type RestUserHandler struct {
	userService services.IUserService
	cfg         *config.Config
	taskClient  *asynq.Client
}

// NewRestUserHandler creates a new RestUserHandler.
func NewRestUserHandler(userService services.IUserService, cfg *config.Config, taskClient *asynq.Client) *RestUserHandler {
	return &RestUserHandler{
		userService: userService,
		cfg:         cfg,
		taskClient:  taskClient,
	}
}

// RegisterRequest is the body for POST /v1/register.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles POST /v1/register.
func (h *RestUserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.taskClient != nil {
		payload := tasks.EmailTaskPayload{
			To:         user.Email,
			TemplateID: "welcome",
			Data:       map[string]interface{}{"user_name": user.Name},
		}
		if err := tasks.EnqueueEmail(c.Request.Context(), h.taskClient, payload); err != nil {
			log.Printf("Warning: failed to enqueue welcome email for %s: %v", user.Email, err)
		}
	}

	c.JSON(http.StatusCreated, user)
}

// LoginRequest is the body for POST /v1/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /v1/login and returns a signed JWT.
func (h *RestUserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	user, err := h.userService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Role, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// GetMe handles GET /v1/me.
func (h *RestUserHandler) GetMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve profile"})
		}
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe handles PATCH /v1/me.
func (h *RestUserHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), userID, updates)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteMe handles DELETE /v1/me: soft deletes the account, its posts and
// vehicles.
func (h *RestUserHandler) DeleteMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.userService.DeleteUserAndPosts(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// PublicUser represents the data returned for a public user profile.
type PublicUser struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DateJoined string `json:"date_joined"`
	Country    string `json:"country,omitempty"`
	City       string `json:"city,omitempty"`
}

// GetUserByID handles GET /v1/users/:id.
func (h *RestUserHandler) GetUserByID(c *gin.Context) {
	userID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		}
		return
	}

	c.JSON(http.StatusOK, PublicUser{
		ID:         user.ID.String(),
		Name:       user.Name,
		DateJoined: user.CreatedAt.Format("2006-01-02"),
		Country:    user.Country,
		City:       user.City,
	})
}

// SuspendUser handles POST /v1/admin/users/:id/suspend.
func (h *RestUserHandler) SuspendUser(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	targetID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	if err := h.userService.SuspendUser(c.Request.Context(), targetID, adminID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "suspended"})
}

// UnsuspendUser handles POST /v1/admin/users/:id/unsuspend.
func (h *RestUserHandler) UnsuspendUser(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}
	targetID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	if err := h.userService.UnsuspendUser(c.Request.Context(), targetID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}
