package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"

	"bycarket/api/internal/api/middleware"
	"bycarket/api/internal/models"
	"bycarket/api/internal/services"
	"bycarket/api/internal/tasks"
	"bycarket/api/internal/utils"
)

// RestEnquiryHandler handles buyer enquiries about posts.
type RestEnquiryHandler struct {
	enquiryService services.IEnquiryService
	postService    services.IPostService
	userService    services.IUserService
	taskClient     *asynq.Client
}

// NewRestEnquiryHandler creates a new RestEnquiryHandler.
func NewRestEnquiryHandler(enquiryService services.IEnquiryService, postService services.IPostService, userService services.IUserService, taskClient *asynq.Client) *RestEnquiryHandler {
	return &RestEnquiryHandler{
		enquiryService: enquiryService,
		postService:    postService,
		userService:    userService,
		taskClient:     taskClient,
	}
}

// CreateEnquiryRequest is the body for POST /v1/posts/:id/enquiries.
type CreateEnquiryRequest struct {
	Email   string        `json:"email"`
	Message string        `json:"message"`
	Offer   *models.Offer `json:"offer"`
}

// CreateEnquiry handles POST /v1/posts/:id/enquiries. Works anonymously with
// an email, or authenticated (the account email is used when none is given).
func (h *RestEnquiryHandler) CreateEnquiry(c *gin.Context) {
	postID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID format"})
		return
	}

	var req CreateEnquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	var userIDPtr *utils.SixID
	email := req.Email
	if val, exists := c.Get(middleware.ContextKeyUserID); exists {
		if idStr, ok := val.(string); ok {
			if userID, perr := utils.ParseSixID(idStr); perr == nil {
				userIDPtr = &userID
				if email == "" {
					if user, uerr := h.userService.FindByID(c.Request.Context(), userID); uerr == nil {
						email = user.Email
					}
				}
			}
		}
	}

	enquiry, err := h.enquiryService.CreateEnquiry(c.Request.Context(), postID, userIDPtr, email, req.Message, req.Offer)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.notifySeller(c, postID, enquiry)

	c.JSON(http.StatusCreated, enquiry)
}

// notifySeller enqueues the seller notification email. Best effort; the
// enquiry is already stored and the Sent flag tracks delivery.
func (h *RestEnquiryHandler) notifySeller(c *gin.Context, postID utils.SixID, enquiry *models.PostEnquiry) {
	if h.taskClient == nil {
		return
	}

	post, err := h.postService.FindPostByID(c.Request.Context(), postID, models.Viewer{Role: models.RoleAdmin})
	if err != nil {
		log.Printf("Warning: failed to load post %s for enquiry notification: %v", postID.String(), err)
		return
	}
	seller, err := h.userService.FindByID(c.Request.Context(), post.UserID)
	if err != nil {
		log.Printf("Warning: failed to load seller for enquiry notification: %v", err)
		return
	}

	data := map[string]interface{}{
		"vehicle":     post.Vehicle.BrandName + " " + post.Vehicle.ModelName + " " + post.Vehicle.VersionName,
		"buyer_email": enquiry.UserEmail,
		"message":     enquiry.Message,
	}
	if enquiry.Offer != nil {
		data["offer"] = enquiry.Offer.Value
	}

	payload := tasks.EmailTaskPayload{
		To:         seller.Email,
		TemplateID: "enquiry_received",
		EnquiryID:  enquiry.ID.String(),
		Data:       data,
	}
	if err := tasks.EnqueueEmail(c.Request.Context(), h.taskClient, payload); err != nil {
		log.Printf("Warning: failed to enqueue enquiry email: %v", err)
	}
}

// ListEnquiries handles GET /v1/posts/:id/enquiries. Only the post owner (or
// an admin) may read them.
func (h *RestEnquiryHandler) ListEnquiries(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	postID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID format"})
		return
	}

	viewer := viewerFromContext(c)
	viewer.UserID = userID
	post, err := h.postService.FindPostByID(c.Request.Context(), postID, viewer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve post"})
		}
		return
	}
	if post.UserID != userID && !viewer.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the post owner can read enquiries"})
		return
	}

	enquiries, err := h.enquiryService.FindEnquiriesByPost(c.Request.Context(), postID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch enquiries"})
		return
	}
	c.JSON(http.StatusOK, enquiries)
}
