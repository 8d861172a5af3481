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

	"bycarket/api/internal/api/handlers"
)

func TestRestConfigHandler_GetPublicConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockConfigSvc := new(MockConfigService)
	handler := handlers.NewRestConfigHandler(mockConfigSvc)

	r := gin.New()
	r.GET("/v1/config", handler.GetPublicConfig)

	publicConfig := map[string]interface{}{
		"APP_NAME":        "ByCarket",
		"FREE_POST_LIMIT": 3,
	}
	mockConfigSvc.On("GetAllPublic", mock.Anything).Return(publicConfig, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/config", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Equal(t, "ByCarket", respBody["APP_NAME"])
	assert.Equal(t, float64(3), respBody["FREE_POST_LIMIT"])
	mockConfigSvc.AssertExpectations(t)
}

func TestRestConfigHandler_SetConfigValue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockConfigSvc := new(MockConfigService)
	handler := handlers.NewRestConfigHandler(mockConfigSvc)

	r := gin.New()
	r.PUT("/v1/admin/config/:key", handler.SetConfigValue)

	mockConfigSvc.On("SetConfigValue", mock.Anything, "FREE_POST_LIMIT", float64(5), true).Return(nil)

	body, _ := json.Marshal(map[string]interface{}{"value": 5, "public": true})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/v1/admin/config/FREE_POST_LIMIT", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockConfigSvc.AssertExpectations(t)
}
