package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"

	"bycarket/api/internal/api/handlers"
	"bycarket/api/internal/api/middleware"
	"bycarket/api/internal/models"
	"bycarket/api/internal/services"
	"bycarket/api/internal/utils"
)

// authAs injects the identity the auth middleware would normally set.
func authAs(userID utils.SixID, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID.String())
		c.Set(middleware.ContextKeyRole, role)
		c.Next()
	}
}

func TestRestPostHandler_GetPostByID_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPostSvc := new(MockPostService)
	handler := handlers.NewRestPostHandler(mockPostSvc)

	r := gin.New()
	r.GET("/v1/posts/:id", handler.GetPostByID)

	postID := utils.NewSixID()
	expectedPost := &models.Post{
		Status: models.PostStatusActive,
		Vehicle: models.VehicleSnapshot{
			BrandName: "Toyota",
			ModelName: "Corolla",
			Year:      2019,
		},
	}
	expectedPost.SetID(postID)
	mockPostSvc.On("FindPostByID", mock.Anything, postID, models.Viewer{Role: models.RoleUser}).Return(expectedPost, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/posts/"+postID.String(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody models.Post
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Equal(t, expectedPost.ID, respBody.ID)
	assert.Equal(t, "Toyota", respBody.Vehicle.BrandName)
	mockPostSvc.AssertExpectations(t)
}

func TestRestPostHandler_GetPostByID_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPostSvc := new(MockPostService)
	handler := handlers.NewRestPostHandler(mockPostSvc)

	r := gin.New()
	r.GET("/v1/posts/:id", handler.GetPostByID)

	postID := utils.NewSixID()
	mockPostSvc.On("FindPostByID", mock.Anything, postID, models.Viewer{Role: models.RoleUser}).Return(nil, mongo.ErrNoDocuments)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/posts/"+postID.String(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var respBody map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Contains(t, respBody["error"], "Post not found")
	mockPostSvc.AssertExpectations(t)
}

func TestRestPostHandler_SearchPosts_FiltersParsed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPostSvc := new(MockPostService)
	handler := handlers.NewRestPostHandler(mockPostSvc)

	r := gin.New()
	r.GET("/v1/posts", handler.SearchPosts)

	brandID := utils.NewSixID()
	expectedPage := &models.PostPage{Data: []models.Post{}, Total: 0, Page: 2, Limit: 5}

	mockPostSvc.On("SearchPosts", mock.Anything, mock.MatchedBy(func(c *models.FilterCriteria) bool {
		return len(c.BrandIDs) == 1 && c.BrandIDs[0] == brandID &&
			c.MinYear != nil && *c.MinYear == 2015 &&
			c.MaxYear != nil && *c.MaxYear == 2020 &&
			c.OrderBy == models.SortByPrice && c.Order == models.OrderAsc &&
			c.Page == 2 && c.Limit == 5
	}), models.Viewer{Role: models.RoleUser}).Return(expectedPage, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/posts?brand_ids="+brandID.String()+"&min_year=2015&max_year=2020&order_by=price&order=asc&page=2&limit=5", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockPostSvc.AssertExpectations(t)
}

func TestRestPostHandler_SearchPosts_MalformedBrandID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPostSvc := new(MockPostService)
	handler := handlers.NewRestPostHandler(mockPostSvc)

	r := gin.New()
	r.GET("/v1/posts", handler.SearchPosts)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/posts?brand_ids=notanid", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockPostSvc.AssertNotCalled(t, "SearchPosts")
}

func TestRestPostHandler_SearchPosts_ValidationError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPostSvc := new(MockPostService)
	handler := handlers.NewRestPostHandler(mockPostSvc)

	r := gin.New()
	r.GET("/v1/posts", handler.SearchPosts)

	verr := &models.ValidationError{}
	verr.Fields = append(verr.Fields, models.FieldError{Field: "order_by", Reason: `"banana" is not a sortable field`})
	mockPostSvc.On("SearchPosts", mock.Anything, mock.Anything, models.Viewer{Role: models.RoleUser}).Return(nil, verr)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/posts?order_by=banana", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var respBody map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	fields, ok := respBody["fields"].([]interface{})
	assert.True(t, ok)
	assert.Len(t, fields, 1)
	mockPostSvc.AssertExpectations(t)
}

func TestRestPostHandler_GetMyPosts_OwnerScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPostSvc := new(MockPostService)
	handler := handlers.NewRestPostHandler(mockPostSvc)

	userID := utils.NewSixID()
	r := gin.New()
	r.GET("/v1/me/posts", authAs(userID, models.RoleUser), handler.GetMyPosts)

	expectedViewer := models.Viewer{Role: models.RoleUser, UserID: userID, OwnerScope: true}
	expectedPage := &models.PostPage{Data: []models.Post{}, Page: 1, Limit: 10}
	mockPostSvc.On("SearchPosts", mock.Anything, mock.Anything, expectedViewer).Return(expectedPage, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/me/posts", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockPostSvc.AssertExpectations(t)
}

func TestRestPostHandler_CreatePost_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPostSvc := new(MockPostService)
	handler := handlers.NewRestPostHandler(mockPostSvc)

	userID := utils.NewSixID()
	vehicleID := utils.NewSixID()
	r := gin.New()
	r.POST("/v1/posts", authAs(userID, models.RoleUser), handler.CreatePost)

	createdPost := &models.Post{UserID: userID, VehicleID: vehicleID, Status: models.PostStatusPending}
	createdPost.SetID(utils.NewSixID())
	mockPostSvc.On("CreatePost", mock.Anything, userID, vehicleID, (*string)(nil), (*float64)(nil), false).Return(createdPost, nil)

	body, _ := json.Marshal(map[string]interface{}{"vehicle_id": vehicleID.String()})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/posts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var respBody models.Post
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Equal(t, models.PostStatusPending, respBody.Status)
	mockPostSvc.AssertExpectations(t)
}

func TestRestPostHandler_CreatePost_QuotaDenied(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPostSvc := new(MockPostService)
	handler := handlers.NewRestPostHandler(mockPostSvc)

	userID := utils.NewSixID()
	vehicleID := utils.NewSixID()
	r := gin.New()
	r.POST("/v1/posts", authAs(userID, models.RoleUser), handler.CreatePost)

	qerr := &services.QuotaDeniedError{
		Decision: services.QuotaDecision{CanCreate: false, Reason: services.QuotaReasonExceeded},
	}
	mockPostSvc.On("CreatePost", mock.Anything, userID, vehicleID, (*string)(nil), (*float64)(nil), false).Return(nil, qerr)

	body, _ := json.Marshal(map[string]interface{}{"vehicle_id": vehicleID.String()})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/posts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	var respBody map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Equal(t, "quota_exceeded", respBody["reason"])
	mockPostSvc.AssertExpectations(t)
}

func TestRestPostHandler_CreatePost_Unauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPostSvc := new(MockPostService)
	handler := handlers.NewRestPostHandler(mockPostSvc)

	r := gin.New()
	r.POST("/v1/posts", handler.CreatePost)

	body, _ := json.Marshal(map[string]interface{}{"vehicle_id": utils.NewSixID().String()})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/posts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockPostSvc.AssertNotCalled(t, "CreatePost")
}

func TestRestPostHandler_GetPostQuota_Unbounded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPostSvc := new(MockPostService)
	handler := handlers.NewRestPostHandler(mockPostSvc)

	userID := utils.NewSixID()
	r := gin.New()
	r.GET("/v1/me/quota", authAs(userID, models.RolePremium), handler.GetPostQuota)

	decision := services.QuotaDecision{CanCreate: true, Unbounded: true}
	mockPostSvc.On("CheckPostQuota", mock.Anything, userID).Return(decision, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/me/quota", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Equal(t, true, respBody["can_create_post"])
	assert.Equal(t, "unbounded", respBody["remaining_posts"])
	mockPostSvc.AssertExpectations(t)
}

func TestRestPostHandler_RejectPost_MissingReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockPostSvc := new(MockPostService)
	handler := handlers.NewRestPostHandler(mockPostSvc)

	adminID := utils.NewSixID()
	r := gin.New()
	r.POST("/v1/admin/posts/:id/reject", authAs(adminID, models.RoleAdmin), handler.RejectPost)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/admin/posts/"+utils.NewSixID().String()+"/reject", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockPostSvc.AssertNotCalled(t, "RejectPost")
}
