package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"bycarket/api/internal/config"
	"bycarket/api/internal/models"
	"bycarket/api/internal/utils"
)

func setupTestDBPosts(t *testing.T, dbName string) *mongo.Database {
	return utils.SetupTestDB(t, dbName, "posts", "users", "vehicles")
}

func newPostServiceForTest(db *mongo.Database) IPostService {
	cfg := &config.Config{FreePostLimit: 3}
	return NewPostService(db, cfg, nil, nil)
}

func createTestUser(t *testing.T, db *mongo.Database, role models.Role) utils.SixID {
	t.Helper()
	user := models.User{
		Base:      models.Base{ID: utils.NewSixID()},
		Name:      "Test User",
		Email:     "test@example.com",
		Role:      role,
		Activated: true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := db.Collection("users").InsertOne(context.Background(), user)
	require.NoError(t, err)
	return user.ID
}

func createTestVehicle(t *testing.T, db *mongo.Database, userID utils.SixID, price float64, year int) *models.Vehicle {
	t.Helper()
	vehicle := &models.Vehicle{
		Base:          models.Base{ID: utils.NewSixID()},
		UserID:        userID,
		BrandID:       utils.NewSixID(),
		ModelID:       utils.NewSixID(),
		VersionID:     utils.NewSixID(),
		BrandName:     "Toyota",
		ModelName:     "Corolla",
		VersionName:   "XEi",
		TypeOfVehicle: models.VehicleTypeSedan,
		Year:          year,
		Condition:     models.ConditionUsed,
		CurrencyCode:  "USD",
		Price:         price,
		Mileage:       50000,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	_, err := db.Collection("vehicles").InsertOne(context.Background(), vehicle)
	require.NoError(t, err)
	return vehicle
}

// seedPost inserts a post directly, bypassing the service, so tests can shape
// status and snapshot fields freely.
func seedPost(t *testing.T, db *mongo.Database, userID utils.SixID, status models.PostStatus, snap models.VehicleSnapshot) *models.Post {
	t.Helper()
	now := time.Now().UTC()
	post := &models.Post{
		Base:      models.Base{ID: utils.NewSixID()},
		VehicleID: utils.NewSixID(),
		UserID:    userID,
		Status:    status,
		PostDate:  now,
		Vehicle:   snap,
		UpdatedAt: now,
	}
	_, err := db.Collection("posts").InsertOne(context.Background(), post)
	require.NoError(t, err)
	return post
}

func snapshotFor(brandID utils.SixID, price float64, year int) models.VehicleSnapshot {
	return models.VehicleSnapshot{
		BrandID:       brandID,
		ModelID:       utils.NewSixID(),
		VersionID:     utils.NewSixID(),
		BrandName:     "Toyota",
		ModelName:     "Corolla",
		VersionName:   "XEi",
		TypeOfVehicle: models.VehicleTypeSedan,
		Year:          year,
		Condition:     models.ConditionUsed,
		CurrencyCode:  "USD",
		Price:         price,
		Mileage:       50000,
	}
}

func TestPostService_CreatePost_QuotaEnforced(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_quota")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	userID := createTestUser(t, db, models.RoleUser)

	// The free tier allows three posts; each needs its own vehicle.
	for i := 0; i < 3; i++ {
		vehicle := createTestVehicle(t, db, userID, 10000, 2018)
		post, err := svc.CreatePost(ctx, userID, vehicle.ID, nil, nil, false)
		require.NoError(t, err)
		assert.Equal(t, models.PostStatusPending, post.Status)
		assert.Equal(t, vehicle.Price, post.Vehicle.Price)
	}

	decision, err := svc.CheckPostQuota(ctx, userID)
	require.NoError(t, err)
	assert.False(t, decision.CanCreate)
	assert.Equal(t, 0, decision.Remaining)
	assert.Equal(t, QuotaReasonExceeded, decision.Reason)

	vehicle := createTestVehicle(t, db, userID, 10000, 2018)
	_, err = svc.CreatePost(ctx, userID, vehicle.ID, nil, nil, false)
	var quotaErr *QuotaDeniedError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, QuotaReasonExceeded, quotaErr.Decision.Reason)

	// Deleting a post frees a slot.
	var existing models.Post
	require.NoError(t, db.Collection("posts").FindOne(ctx, bson.M{"user_id": userID}).Decode(&existing))
	require.NoError(t, svc.DeletePost(ctx, existing.ID, userID, false))

	post, err := svc.CreatePost(ctx, userID, vehicle.ID, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPending, post.Status)
}

func TestPostService_CreatePost_PremiumUnbounded(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_premium")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	userID := createTestUser(t, db, models.RolePremium)

	for i := 0; i < 5; i++ {
		vehicle := createTestVehicle(t, db, userID, 20000, 2020)
		_, err := svc.CreatePost(ctx, userID, vehicle.ID, nil, nil, false)
		require.NoError(t, err)
	}

	decision, err := svc.CheckPostQuota(ctx, userID)
	require.NoError(t, err)
	assert.True(t, decision.CanCreate)
	assert.True(t, decision.Unbounded)
}

func TestPostService_CreatePost_PerUserLimitOverride(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_override")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	userID := createTestUser(t, db, models.RoleUser)
	override := 1
	_, err := db.Collection("users").UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"free_post_limit": override}})
	require.NoError(t, err)

	vehicle := createTestVehicle(t, db, userID, 10000, 2018)
	_, err = svc.CreatePost(ctx, userID, vehicle.ID, nil, nil, false)
	require.NoError(t, err)

	vehicle2 := createTestVehicle(t, db, userID, 10000, 2018)
	_, err = svc.CreatePost(ctx, userID, vehicle2.ID, nil, nil, false)
	var quotaErr *QuotaDeniedError
	assert.ErrorAs(t, err, &quotaErr)
}

func TestPostService_CreatePost_OneLivePostPerVehicle(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_onepervehicle")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	userID := createTestUser(t, db, models.RoleUser)
	vehicle := createTestVehicle(t, db, userID, 10000, 2018)

	_, err := svc.CreatePost(ctx, userID, vehicle.ID, nil, nil, false)
	require.NoError(t, err)

	_, err = svc.CreatePost(ctx, userID, vehicle.ID, nil, nil, false)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already has a post")
}

func TestPostService_CreatePost_VehicleOwnership(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_ownership")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, models.RoleUser)
	otherID := createTestUser(t, db, models.RoleUser)
	vehicle := createTestVehicle(t, db, ownerID, 10000, 2018)

	_, err := svc.CreatePost(ctx, otherID, vehicle.ID, nil, nil, false)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found or not owned")
}

func TestPostService_FindPostByID_Visibility(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_visibility")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, models.RoleUser)
	brandID := utils.NewSixID()
	pending := seedPost(t, db, ownerID, models.PostStatusPending, snapshotFor(brandID, 10000, 2018))

	// Anonymous viewers never see a pending post.
	_, err := svc.FindPostByID(ctx, pending.ID, models.Viewer{})
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)

	// The owner does.
	found, err := svc.FindPostByID(ctx, pending.ID, models.Viewer{Role: models.RoleUser, UserID: ownerID})
	require.NoError(t, err)
	assert.Equal(t, pending.ID, found.ID)

	// So do admins.
	found, err = svc.FindPostByID(ctx, pending.ID, models.Viewer{Role: models.RoleAdmin, UserID: utils.NewSixID()})
	require.NoError(t, err)
	assert.Equal(t, pending.ID, found.ID)

	active := seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandID, 12000, 2019))
	found, err = svc.FindPostByID(ctx, active.ID, models.Viewer{})
	require.NoError(t, err)
	assert.Equal(t, active.ID, found.ID)
}

func TestPostService_SearchPosts_FilterAndPagination(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_search")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, models.RoleUser)
	brandA := utils.NewSixID()
	brandB := utils.NewSixID()

	// Three brandA posts fall inside the 2015-2020 year range; one is outside
	// it, and one belongs to another brand.
	seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandA, 9000, 2016))
	seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandA, 11000, 2021))
	seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandA, 8000, 2015))
	seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandB, 15000, 2018))
	seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandA, 9500, 2020))

	minYear, maxYear := 2015, 2020
	criteria := &models.FilterCriteria{
		BrandIDs: []utils.SixID{brandA},
		MinYear:  &minYear,
		MaxYear:  &maxYear,
		OrderBy:  models.SortByPrice,
		Order:    models.OrderAsc,
		Page:     1,
		Limit:    2,
	}

	page1, err := svc.SearchPosts(ctx, criteria, models.Viewer{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page1.Total)
	assert.Equal(t, 2, page1.TotalPages)
	require.Len(t, page1.Data, 2)
	assert.Equal(t, 8000.0, page1.Data[0].Vehicle.Price)
	assert.Equal(t, 9000.0, page1.Data[1].Vehicle.Price)

	criteria.Page = 2
	page2, err := svc.SearchPosts(ctx, criteria, models.Viewer{})
	require.NoError(t, err)
	require.Len(t, page2.Data, 1)
	assert.Equal(t, 9500.0, page2.Data[0].Vehicle.Price)

	// Descending order is the exact mirror.
	criteria.Page = 1
	criteria.Order = models.OrderDesc
	desc, err := svc.SearchPosts(ctx, criteria, models.Viewer{})
	require.NoError(t, err)
	require.Len(t, desc.Data, 2)
	assert.Equal(t, 9500.0, desc.Data[0].Vehicle.Price)
	assert.Equal(t, 9000.0, desc.Data[1].Vehicle.Price)

	// An empty criteria set matches every active post.
	all, err := svc.SearchPosts(ctx, &models.FilterCriteria{}, models.Viewer{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), all.Total)
}

func TestPostService_SearchPosts_InclusiveRangeBounds(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_ranges")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, models.RoleUser)
	brandID := utils.NewSixID()
	seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandID, 10000, 2015))
	seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandID, 10000, 2020))
	seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandID, 10000, 2014))

	minYear, maxYear := 2015, 2020
	page, err := svc.SearchPosts(ctx, &models.FilterCriteria{MinYear: &minYear, MaxYear: &maxYear}, models.Viewer{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	// A bound alone is a half-open constraint.
	page, err = svc.SearchPosts(ctx, &models.FilterCriteria{MinYear: &minYear}, models.Viewer{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	maxOnly := 2014
	page, err = svc.SearchPosts(ctx, &models.FilterCriteria{MaxYear: &maxOnly}, models.Viewer{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestPostService_SearchPosts_StatusVisibility(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_statusvis")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, models.RoleUser)
	brandID := utils.NewSixID()
	seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandID, 9000, 2018))
	seedPost(t, db, ownerID, models.PostStatusPending, snapshotFor(brandID, 9100, 2018))
	seedPost(t, db, ownerID, models.PostStatusRejected, snapshotFor(brandID, 9200, 2018))
	seedPost(t, db, ownerID, models.PostStatusSold, snapshotFor(brandID, 9300, 2018))

	// Public viewers get active posts only, even when they ask for a status.
	pendingStatus := models.PostStatusPending
	public, err := svc.SearchPosts(ctx, &models.FilterCriteria{Status: &pendingStatus}, models.Viewer{Role: models.RoleUser, UserID: utils.NewSixID()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), public.Total)
	assert.Equal(t, models.PostStatusActive, public.Data[0].Status)

	// The owner scope returns every status.
	mine, err := svc.SearchPosts(ctx, &models.FilterCriteria{}, models.Viewer{Role: models.RoleUser, UserID: ownerID, OwnerScope: true})
	require.NoError(t, err)
	assert.Equal(t, int64(4), mine.Total)

	// Admins may filter by an explicit status.
	admin, err := svc.SearchPosts(ctx, &models.FilterCriteria{Status: &pendingStatus}, models.Viewer{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, int64(1), admin.Total)
	assert.Equal(t, models.PostStatusPending, admin.Data[0].Status)

	// Without one they see everything non-deleted.
	adminAll, err := svc.SearchPosts(ctx, &models.FilterCriteria{}, models.Viewer{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, int64(4), adminAll.Total)
}

func TestPostService_SearchPosts_CaseInsensitiveSearch(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_textsearch")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, models.RoleUser)
	snap := snapshotFor(utils.NewSixID(), 9000, 2018)
	snap.BrandName = "Toyota"
	seedPost(t, db, ownerID, models.PostStatusActive, snap)

	other := snapshotFor(utils.NewSixID(), 9500, 2018)
	other.BrandName = "Ford"
	other.ModelName = "Fiesta"
	seedPost(t, db, ownerID, models.PostStatusActive, other)

	page, err := svc.SearchPosts(ctx, &models.FilterCriteria{Search: "toyo"}, models.Viewer{})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, "Toyota", page.Data[0].Vehicle.BrandName)

	page, err = svc.SearchPosts(ctx, &models.FilterCriteria{Search: "FIESTA"}, models.Viewer{})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, "Ford", page.Data[0].Vehicle.BrandName)

	page, err = svc.SearchPosts(ctx, &models.FilterCriteria{Search: "nomatch"}, models.Viewer{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
	assert.NotNil(t, page.Data)
}

func TestPostService_SearchPosts_ValidationError(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_validation")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	_, err := svc.SearchPosts(ctx, &models.FilterCriteria{OrderBy: "color"}, models.Viewer{})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "order_by", verr.Fields[0].Field)

	_, err = svc.SearchPosts(ctx, &models.FilterCriteria{OrderBy: "color", Order: "sideways", Page: -1}, models.Viewer{})
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
}

func TestPostService_StatusTransitions(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_transitions")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, models.RoleUser)
	adminID := createTestUser(t, db, models.RoleAdmin)
	vehicle := createTestVehicle(t, db, ownerID, 10000, 2018)

	post, err := svc.CreatePost(ctx, ownerID, vehicle.ID, nil, nil, false)
	require.NoError(t, err)

	// Owner cannot activate a pending post; only moderation moves it.
	err = svc.ActivatePost(ctx, post.ID, ownerID)
	assert.Error(t, err)

	approved, err := svc.ApprovePost(ctx, post.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusActive, approved.Status)

	// Approving twice fails: the post is no longer pending.
	_, err = svc.ApprovePost(ctx, post.ID, adminID)
	assert.Error(t, err)

	require.NoError(t, svc.DeactivatePost(ctx, post.ID, ownerID))
	require.NoError(t, svc.ActivatePost(ctx, post.ID, ownerID))
	require.NoError(t, svc.MarkPostSold(ctx, post.ID, ownerID))

	// Sold is terminal.
	assert.Error(t, svc.ActivatePost(ctx, post.ID, ownerID))
	assert.Error(t, svc.DeactivatePost(ctx, post.ID, ownerID))
}

func TestPostService_RejectPost(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_reject")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, models.RoleUser)
	adminID := createTestUser(t, db, models.RoleAdmin)
	vehicle := createTestVehicle(t, db, ownerID, 10000, 2018)

	post, err := svc.CreatePost(ctx, ownerID, vehicle.ID, nil, nil, false)
	require.NoError(t, err)

	rejected, err := svc.RejectPost(ctx, post.ID, adminID, "incomplete photos")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusRejected, rejected.Status)
	assert.Equal(t, "incomplete photos", rejected.RejectReason)

	// Rejected posts never come back.
	assert.Error(t, svc.ActivatePost(ctx, post.ID, ownerID))
	_, err = svc.ApprovePost(ctx, post.ID, adminID)
	assert.Error(t, err)
}

func TestPostService_TransitionOwnership(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_owneraction")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, models.RoleUser)
	strangerID := createTestUser(t, db, models.RoleUser)
	brandID := utils.NewSixID()
	post := seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandID, 10000, 2018))

	err := svc.DeactivatePost(ctx, post.ID, strangerID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not belong")

	require.NoError(t, svc.DeactivatePost(ctx, post.ID, ownerID))
}

func TestPostService_DeletePost(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_delete")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, models.RoleUser)
	strangerID := createTestUser(t, db, models.RoleUser)
	adminID := createTestUser(t, db, models.RoleAdmin)
	brandID := utils.NewSixID()

	post := seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandID, 10000, 2018))

	assert.Error(t, svc.DeletePost(ctx, post.ID, strangerID, false))

	require.NoError(t, svc.DeletePost(ctx, post.ID, ownerID, false))
	_, err := svc.FindPostByID(ctx, post.ID, models.Viewer{Role: models.RoleUser, UserID: ownerID})
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)

	// Deleting twice fails.
	assert.Error(t, svc.DeletePost(ctx, post.ID, ownerID, false))

	// Admins can delete anyone's post.
	other := seedPost(t, db, ownerID, models.PostStatusActive, snapshotFor(brandID, 12000, 2019))
	require.NoError(t, svc.DeletePost(ctx, other.ID, adminID, true))

	missing := utils.NewSixID()
	err = svc.DeletePost(ctx, missing, adminID, true)
	assert.True(t, errors.Is(err, mongo.ErrNoDocuments))
}

func TestPostService_RefreshVehicleSnapshots(t *testing.T) {
	db := setupTestDBPosts(t, "testdb_post_service_snapshots")
	svc := newPostServiceForTest(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, models.RoleUser)
	vehicle := createTestVehicle(t, db, ownerID, 10000, 2018)

	post, err := svc.CreatePost(ctx, ownerID, vehicle.ID, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, post.Vehicle.Price)

	vehicle.Price = 12500
	vehicle.Description = "Price dropped"
	require.NoError(t, svc.RefreshVehicleSnapshots(ctx, vehicle))

	refreshed, err := svc.FindPostByID(ctx, post.ID, models.Viewer{Role: models.RoleUser, UserID: ownerID})
	require.NoError(t, err)
	assert.Equal(t, 12500.0, refreshed.Vehicle.Price)
	assert.Equal(t, "Price dropped", refreshed.Vehicle.Description)
}
