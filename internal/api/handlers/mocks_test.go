package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"bycarket/api/internal/models"
	"bycarket/api/internal/services"
	"bycarket/api/internal/utils"
)

// --- Mocks ---

// MockPostService implements services.IPostService
type MockPostService struct {
	mock.Mock
}

func (m *MockPostService) CreatePost(ctx context.Context, userID, vehicleID utils.SixID, description *string, price *float64, isNegotiable bool) (*models.Post, error) {
	args := m.Called(ctx, userID, vehicleID, description, price, isNegotiable)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostService) FindPostByID(ctx context.Context, postID utils.SixID, viewer models.Viewer) (*models.Post, error) {
	args := m.Called(ctx, postID, viewer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostService) SearchPosts(ctx context.Context, criteria *models.FilterCriteria, viewer models.Viewer) (*models.PostPage, error) {
	args := m.Called(ctx, criteria, viewer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PostPage), args.Error(1)
}

func (m *MockPostService) CheckPostQuota(ctx context.Context, userID utils.SixID) (services.QuotaDecision, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(services.QuotaDecision), args.Error(1)
}

func (m *MockPostService) CountOwnedPosts(ctx context.Context, userID utils.SixID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPostService) ApprovePost(ctx context.Context, postID, adminUserID utils.SixID) (*models.Post, error) {
	args := m.Called(ctx, postID, adminUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostService) RejectPost(ctx context.Context, postID, adminUserID utils.SixID, reason string) (*models.Post, error) {
	args := m.Called(ctx, postID, adminUserID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostService) ActivatePost(ctx context.Context, postID, userID utils.SixID) error {
	args := m.Called(ctx, postID, userID)
	return args.Error(0)
}

func (m *MockPostService) DeactivatePost(ctx context.Context, postID, userID utils.SixID) error {
	args := m.Called(ctx, postID, userID)
	return args.Error(0)
}

func (m *MockPostService) MarkPostSold(ctx context.Context, postID, userID utils.SixID) error {
	args := m.Called(ctx, postID, userID)
	return args.Error(0)
}

func (m *MockPostService) DeletePost(ctx context.Context, postID, callerID utils.SixID, callerIsAdmin bool) error {
	args := m.Called(ctx, postID, callerID, callerIsAdmin)
	return args.Error(0)
}

func (m *MockPostService) RefreshVehicleSnapshots(ctx context.Context, vehicle *models.Vehicle) error {
	args := m.Called(ctx, vehicle)
	return args.Error(0)
}

// MockUserService implements services.IUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	args := m.Called(ctx, name, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) UpdateProfile(ctx context.Context, userID utils.SixID, updates map[string]interface{}) (*models.User, error) {
	args := m.Called(ctx, userID, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) UpgradeToPremium(ctx context.Context, userID utils.SixID, until time.Time) error {
	args := m.Called(ctx, userID, until)
	return args.Error(0)
}

func (m *MockUserService) DowngradeToFree(ctx context.Context, userID utils.SixID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockUserService) SuspendUser(ctx context.Context, userIDToSuspend, adminUserID utils.SixID) error {
	args := m.Called(ctx, userIDToSuspend, adminUserID)
	return args.Error(0)
}

func (m *MockUserService) UnsuspendUser(ctx context.Context, userIDToUnsuspend utils.SixID) error {
	args := m.Called(ctx, userIDToUnsuspend)
	return args.Error(0)
}

func (m *MockUserService) DeleteUserAndPosts(ctx context.Context, userID utils.SixID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockVehicleService implements services.IVehicleService
type MockVehicleService struct {
	mock.Mock
}

func (m *MockVehicleService) CreateVehicle(ctx context.Context, userID utils.SixID, input services.VehicleInput) (*models.Vehicle, error) {
	args := m.Called(ctx, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

func (m *MockVehicleService) FindVehicleByID(ctx context.Context, vehicleID utils.SixID) (*models.Vehicle, error) {
	args := m.Called(ctx, vehicleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

func (m *MockVehicleService) FindVehiclesByUser(ctx context.Context, userID utils.SixID) ([]models.Vehicle, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Vehicle), args.Error(1)
}

func (m *MockVehicleService) UpdateVehicle(ctx context.Context, vehicleID, userID utils.SixID, input services.VehicleInput) (*models.Vehicle, error) {
	args := m.Called(ctx, vehicleID, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

func (m *MockVehicleService) DeleteVehicle(ctx context.Context, vehicleID, userID utils.SixID) error {
	args := m.Called(ctx, vehicleID, userID)
	return args.Error(0)
}

func (m *MockVehicleService) AddImageToVehicle(ctx context.Context, vehicleID utils.SixID, imageKey string) error {
	args := m.Called(ctx, vehicleID, imageKey)
	return args.Error(0)
}

// MockCatalogService implements services.ICatalogService
type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) ListBrands(ctx context.Context) ([]models.Brand, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Brand), args.Error(1)
}

func (m *MockCatalogService) ListModels(ctx context.Context, brandID utils.SixID) ([]models.VehicleModel, error) {
	args := m.Called(ctx, brandID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.VehicleModel), args.Error(1)
}

func (m *MockCatalogService) ListVersions(ctx context.Context, modelID utils.SixID) ([]models.Version, error) {
	args := m.Called(ctx, modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Version), args.Error(1)
}

func (m *MockCatalogService) FindBrandByID(ctx context.Context, brandID utils.SixID) (*models.Brand, error) {
	args := m.Called(ctx, brandID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Brand), args.Error(1)
}

func (m *MockCatalogService) FindModelByID(ctx context.Context, modelID utils.SixID) (*models.VehicleModel, error) {
	args := m.Called(ctx, modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VehicleModel), args.Error(1)
}

func (m *MockCatalogService) FindVersionByID(ctx context.Context, versionID utils.SixID) (*models.Version, error) {
	args := m.Called(ctx, versionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Version), args.Error(1)
}

func (m *MockCatalogService) CreateBrand(ctx context.Context, name string) (*models.Brand, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Brand), args.Error(1)
}

func (m *MockCatalogService) CreateModel(ctx context.Context, brandID utils.SixID, name string) (*models.VehicleModel, error) {
	args := m.Called(ctx, brandID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VehicleModel), args.Error(1)
}

func (m *MockCatalogService) CreateVersion(ctx context.Context, modelID utils.SixID, name string) (*models.Version, error) {
	args := m.Called(ctx, modelID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Version), args.Error(1)
}

// MockBillingService implements services.IBillingService
type MockBillingService struct {
	mock.Mock
}

func (m *MockBillingService) GeneratePremiumInvoice(ctx context.Context, userID utils.SixID) (*models.Invoice, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockBillingService) MarkInvoicePaid(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockBillingService) FindInvoiceByID(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockBillingService) FindInvoicesByUser(ctx context.Context, userID utils.SixID) ([]models.Invoice, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Invoice), args.Error(1)
}

func (m *MockBillingService) FindOverdueInvoices(ctx context.Context) ([]models.Invoice, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Invoice), args.Error(1)
}

func (m *MockBillingService) MarkInvoiceOverdueNotified(ctx context.Context, invoiceID utils.SixID) error {
	args := m.Called(ctx, invoiceID)
	return args.Error(0)
}

func (m *MockBillingService) MarkInvoiceSent(ctx context.Context, invoiceID utils.SixID) error {
	args := m.Called(ctx, invoiceID)
	return args.Error(0)
}

func (m *MockBillingService) DowngradeExpiredPremiums(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockEnquiryService implements services.IEnquiryService
type MockEnquiryService struct {
	mock.Mock
}

func (m *MockEnquiryService) CreateEnquiry(ctx context.Context, postID utils.SixID, userID *utils.SixID, userEmail, message string, offer *models.Offer) (*models.PostEnquiry, error) {
	args := m.Called(ctx, postID, userID, userEmail, message, offer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PostEnquiry), args.Error(1)
}

func (m *MockEnquiryService) FindEnquiriesByPost(ctx context.Context, postID utils.SixID) ([]models.PostEnquiry, error) {
	args := m.Called(ctx, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PostEnquiry), args.Error(1)
}

func (m *MockEnquiryService) MarkEnquirySent(ctx context.Context, enquiryID utils.SixID) error {
	args := m.Called(ctx, enquiryID)
	return args.Error(0)
}

// MockChatService implements services.IChatService
type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) SendMessage(ctx context.Context, userID utils.SixID, conversationID *utils.SixID, content string) (*models.Conversation, error) {
	args := m.Called(ctx, userID, conversationID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockChatService) FindConversationByID(ctx context.Context, conversationID, userID utils.SixID) (*models.Conversation, error) {
	args := m.Called(ctx, conversationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockChatService) ListConversations(ctx context.Context, userID utils.SixID) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockChatService) DeleteConversation(ctx context.Context, conversationID, userID utils.SixID) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

// MockConfigService implements services.IConfigService
type MockConfigService struct {
	mock.Mock
}

func (m *MockConfigService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockConfigService) Get(ctx context.Context, key string) (interface{}, error) {
	args := m.Called(ctx, key)
	return args.Get(0), args.Error(1)
}

func (m *MockConfigService) GetInt(ctx context.Context, key string, defaultValue int) int {
	args := m.Called(ctx, key, defaultValue)
	return args.Int(0)
}

func (m *MockConfigService) GetString(ctx context.Context, key string, defaultValue string) string {
	args := m.Called(ctx, key, defaultValue)
	return args.String(0)
}

func (m *MockConfigService) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	args := m.Called(ctx, key, defaultValue)
	return args.Bool(0)
}

func (m *MockConfigService) GetFloat64(ctx context.Context, key string, defaultValue float64) float64 {
	args := m.Called(ctx, key, defaultValue)
	if fVal, ok := args.Get(0).(float64); ok {
		return fVal
	}
	return float64(args.Int(0))
}

func (m *MockConfigService) GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	args := m.Called(ctx, key, defaultValue)
	return args.Get(0).(time.Duration)
}

func (m *MockConfigService) Load(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockConfigService) SubscribeToChanges(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockConfigService) SetConfigValue(ctx context.Context, key string, value interface{}, isPublic bool) error {
	args := m.Called(ctx, key, value, isPublic)
	return args.Error(0)
}

// MockS3Storage implements storage.IS3Storage
type MockS3Storage struct {
	mock.Mock
}

func (m *MockS3Storage) GeneratePresignedPutURL(ctx context.Context, userID, vehicleID, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, userID, vehicleID, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockS3Storage) DownloadObject(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockS3Storage) UploadObject(ctx context.Context, key, contentType string, data []byte) error {
	args := m.Called(ctx, key, contentType, data)
	return args.Error(0)
}

func (m *MockS3Storage) DeleteObject(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
