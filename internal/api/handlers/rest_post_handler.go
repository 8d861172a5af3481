package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"bycarket/api/internal/models"
	"bycarket/api/internal/services"
	"bycarket/api/internal/utils"
)

// RestPostHandler handles REST requests for posts.
type RestPostHandler struct {
	postService services.IPostService
}

// NewRestPostHandler creates a new RestPostHandler.
func NewRestPostHandler(postService services.IPostService) *RestPostHandler {
	return &RestPostHandler{postService: postService}
}

// parseIDList parses a comma-separated list of SixIDs from a query parameter.
// Malformed entries are reported, not silently dropped.
func parseIDList(value string) ([]utils.SixID, error) {
	if value == "" {
		return nil, nil
	}
	var ids []utils.SixID
	for _, raw := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		id, err := utils.ParseSixID(trimmed)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// criteriaFromQuery builds FilterCriteria from URL query parameters. Type and
// enum validity are left to FilterCriteria.Validate; this only deals with
// shape (numbers parse, IDs decode).
func criteriaFromQuery(c *gin.Context) (*models.FilterCriteria, error) {
	criteria := &models.FilterCriteria{}

	var err error
	if criteria.BrandIDs, err = parseIDList(c.Query("brand_ids")); err != nil {
		return nil, errors.New("brand_ids: malformed ID")
	}
	if criteria.ModelIDs, err = parseIDList(c.Query("model_ids")); err != nil {
		return nil, errors.New("model_ids: malformed ID")
	}
	if criteria.VersionIDs, err = parseIDList(c.Query("version_ids")); err != nil {
		return nil, errors.New("version_ids: malformed ID")
	}

	if typesStr := c.Query("type_of_vehicle"); typesStr != "" {
		for _, raw := range strings.Split(typesStr, ",") {
			if trimmed := strings.TrimSpace(raw); trimmed != "" {
				criteria.TypeOfVehicle = append(criteria.TypeOfVehicle, models.VehicleType(trimmed))
			}
		}
	}
	if condStr := c.Query("condition"); condStr != "" {
		cond := models.Condition(condStr)
		criteria.Condition = &cond
	}
	if currency := c.Query("currency_code"); currency != "" {
		criteria.CurrencyCode = &currency
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status := models.PostStatus(statusStr)
		criteria.Status = &status
	}

	intParam := func(name string) (*int, error) {
		raw := c.Query(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.New(name + ": must be an integer")
		}
		return &v, nil
	}
	floatParam := func(name string) (*float64, error) {
		raw := c.Query(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.New(name + ": must be a number")
		}
		return &v, nil
	}

	if criteria.MinYear, err = intParam("min_year"); err != nil {
		return nil, err
	}
	if criteria.MaxYear, err = intParam("max_year"); err != nil {
		return nil, err
	}
	if criteria.MinPrice, err = floatParam("min_price"); err != nil {
		return nil, err
	}
	if criteria.MaxPrice, err = floatParam("max_price"); err != nil {
		return nil, err
	}
	if criteria.MinMileage, err = intParam("min_mileage"); err != nil {
		return nil, err
	}
	if criteria.MaxMileage, err = intParam("max_mileage"); err != nil {
		return nil, err
	}

	criteria.Search = c.Query("search")
	criteria.OrderBy = models.SortField(c.Query("order_by"))
	criteria.Order = models.SortOrder(c.Query("order"))

	if pageStr := c.Query("page"); pageStr != "" {
		if criteria.Page, err = strconv.Atoi(pageStr); err != nil {
			return nil, errors.New("page: must be an integer")
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if criteria.Limit, err = strconv.Atoi(limitStr); err != nil {
			return nil, errors.New("limit: must be an integer")
		}
	}

	return criteria, nil
}

// searchWithViewer runs the shared search path for public, owner-scoped and
// admin listings.
func (h *RestPostHandler) searchWithViewer(c *gin.Context, viewer models.Viewer) {
	criteria, err := criteriaFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := h.postService.SearchPosts(c.Request.Context(), criteria, viewer)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filter criteria", "fields": verr.Fields})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search posts"})
		return
	}

	c.JSON(http.StatusOK, page)
}

// SearchPosts handles GET /v1/posts (public and authenticated browsing).
func (h *RestPostHandler) SearchPosts(c *gin.Context) {
	h.searchWithViewer(c, viewerFromContext(c))
}

// GetMyPosts handles GET /v1/me/posts: the caller's own posts in any status.
func (h *RestPostHandler) GetMyPosts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	viewer := viewerFromContext(c)
	viewer.UserID = userID
	viewer.OwnerScope = true
	h.searchWithViewer(c, viewer)
}

// GetPostByID handles GET /v1/posts/:id.
func (h *RestPostHandler) GetPostByID(c *gin.Context) {
	postID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID format"})
		return
	}

	post, err := h.postService.FindPostByID(c.Request.Context(), postID, viewerFromContext(c))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve post"})
		}
		return
	}

	c.JSON(http.StatusOK, post)
}

// CreatePostRequest is the body for POST /v1/posts.
type CreatePostRequest struct {
	VehicleID    string   `json:"vehicle_id" binding:"required"`
	Description  *string  `json:"description"`
	Price        *float64 `json:"price"`
	IsNegotiable bool     `json:"is_negotiable"`
}

// CreatePost handles POST /v1/posts. New posts start in pending status.
func (h *RestPostHandler) CreatePost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	vehicleID, err := utils.ParseSixID(req.VehicleID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID format"})
		return
	}
	if req.Price != nil && *req.Price < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Price must not be negative"})
		return
	}

	post, err := h.postService.CreatePost(c.Request.Context(), userID, vehicleID, req.Description, req.Price, req.IsNegotiable)
	if err != nil {
		var qerr *services.QuotaDeniedError
		if errors.As(err, &qerr) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":  "Post quota exceeded",
				"reason": qerr.Decision.Reason,
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, post)
}

// GetPostQuota handles GET /v1/me/quota: an advisory check for the UI.
func (h *RestPostHandler) GetPostQuota(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	decision, err := h.postService.CheckPostQuota(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check quota"})
		return
	}

	c.JSON(http.StatusOK, decision)
}

// statusAction runs an owner-gated post status transition.
func (h *RestPostHandler) statusAction(c *gin.Context, action func(postID, userID utils.SixID) error) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	postID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID format"})
		return
	}

	if err := action(postID, userID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ActivatePost handles POST /v1/posts/:id/activate (owner re-lists an
// inactive post).
func (h *RestPostHandler) ActivatePost(c *gin.Context) {
	h.statusAction(c, func(postID, userID utils.SixID) error {
		return h.postService.ActivatePost(c.Request.Context(), postID, userID)
	})
}

// DeactivatePost handles POST /v1/posts/:id/deactivate.
func (h *RestPostHandler) DeactivatePost(c *gin.Context) {
	h.statusAction(c, func(postID, userID utils.SixID) error {
		return h.postService.DeactivatePost(c.Request.Context(), postID, userID)
	})
}

// MarkPostSold handles POST /v1/posts/:id/sold.
func (h *RestPostHandler) MarkPostSold(c *gin.Context) {
	h.statusAction(c, func(postID, userID utils.SixID) error {
		return h.postService.MarkPostSold(c.Request.Context(), postID, userID)
	})
}

// DeletePost handles DELETE /v1/posts/:id. Admins may delete any post.
func (h *RestPostHandler) DeletePost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	postID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID format"})
		return
	}

	isAdmin := viewerFromContext(c).IsAdmin()
	if err := h.postService.DeletePost(c.Request.Context(), postID, userID, isAdmin); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ApprovePost handles POST /v1/admin/posts/:id/approve.
func (h *RestPostHandler) ApprovePost(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	postID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID format"})
		return
	}

	post, err := h.postService.ApprovePost(c.Request.Context(), postID, adminID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, post)
}

// RejectPostRequest is the body for POST /v1/admin/posts/:id/reject.
type RejectPostRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectPost handles POST /v1/admin/posts/:id/reject.
func (h *RestPostHandler) RejectPost(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	postID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID format"})
		return
	}

	var req RejectPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A rejection reason is required"})
		return
	}

	post, err := h.postService.RejectPost(c.Request.Context(), postID, adminID, req.Reason)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, post)
}
