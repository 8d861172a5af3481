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
	"bycarket/api/internal/models"
	"bycarket/api/internal/utils"
)

func TestRestVehicleHandler_RequestImageUpload_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockVehicleSvc := new(MockVehicleService)
	mockStorage := new(MockS3Storage)
	handler := handlers.NewRestVehicleHandler(mockVehicleSvc, mockStorage, nil)

	userID := utils.NewSixID()
	vehicleID := utils.NewSixID()
	r := gin.New()
	r.POST("/v1/vehicles/:id/images", authAs(userID, models.RoleUser), handler.RequestImageUpload)

	vehicle := &models.Vehicle{UserID: userID}
	vehicle.SetID(vehicleID)
	mockVehicleSvc.On("FindVehicleByID", mock.Anything, vehicleID).Return(vehicle, nil)
	mockStorage.On("GeneratePresignedPutURL", mock.Anything, userID.String(), vehicleID.String(), "car.jpg", "image/jpeg").
		Return("https://s3.example.com/presigned", "uploads/"+userID.String()+"/"+vehicleID.String()+"/abc_car.jpg", nil)

	body, _ := json.Marshal(map[string]string{"filename": "car.jpg", "content_type": "image/jpeg"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/vehicles/"+vehicleID.String()+"/images", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Equal(t, "https://s3.example.com/presigned", respBody["upload_url"])
	assert.NotEmpty(t, respBody["key"])
	mockVehicleSvc.AssertExpectations(t)
	mockStorage.AssertExpectations(t)
}

func TestRestVehicleHandler_RequestImageUpload_NotOwner(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockVehicleSvc := new(MockVehicleService)
	mockStorage := new(MockS3Storage)
	handler := handlers.NewRestVehicleHandler(mockVehicleSvc, mockStorage, nil)

	userID := utils.NewSixID()
	ownerID := utils.NewSixID()
	vehicleID := utils.NewSixID()
	r := gin.New()
	r.POST("/v1/vehicles/:id/images", authAs(userID, models.RoleUser), handler.RequestImageUpload)

	vehicle := &models.Vehicle{UserID: ownerID}
	vehicle.SetID(vehicleID)
	mockVehicleSvc.On("FindVehicleByID", mock.Anything, vehicleID).Return(vehicle, nil)

	body, _ := json.Marshal(map[string]string{"filename": "car.jpg", "content_type": "image/jpeg"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/vehicles/"+vehicleID.String()+"/images", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	mockStorage.AssertNotCalled(t, "GeneratePresignedPutURL")
}

func TestRestVehicleHandler_RequestImageUpload_BadContentType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockVehicleSvc := new(MockVehicleService)
	mockStorage := new(MockS3Storage)
	handler := handlers.NewRestVehicleHandler(mockVehicleSvc, mockStorage, nil)

	userID := utils.NewSixID()
	vehicleID := utils.NewSixID()
	r := gin.New()
	r.POST("/v1/vehicles/:id/images", authAs(userID, models.RoleUser), handler.RequestImageUpload)

	body, _ := json.Marshal(map[string]string{"filename": "car.gif", "content_type": "image/gif"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/vehicles/"+vehicleID.String()+"/images", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockVehicleSvc.AssertNotCalled(t, "FindVehicleByID")
}

func TestRestVehicleHandler_ConfirmImageUpload_KeyMismatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockVehicleSvc := new(MockVehicleService)
	mockStorage := new(MockS3Storage)
	handler := handlers.NewRestVehicleHandler(mockVehicleSvc, mockStorage, nil)

	userID := utils.NewSixID()
	vehicleID := utils.NewSixID()
	r := gin.New()
	r.POST("/v1/vehicles/:id/images/complete", authAs(userID, models.RoleUser), handler.ConfirmImageUpload)

	// A key minted for a different user must not be confirmable here.
	body, _ := json.Marshal(map[string]string{
		"key": "uploads/" + utils.NewSixID().String() + "/" + vehicleID.String() + "/abc_car.jpg",
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/vehicles/"+vehicleID.String()+"/images/complete", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRestVehicleHandler_GetVehicleByID_InvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockVehicleSvc := new(MockVehicleService)
	handler := handlers.NewRestVehicleHandler(mockVehicleSvc, nil, nil)

	r := gin.New()
	r.GET("/v1/vehicles/:id", handler.GetVehicleByID)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/vehicles/notanid", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockVehicleSvc.AssertNotCalled(t, "FindVehicleByID")
}
