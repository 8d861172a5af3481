package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bycarket/api/internal/cache"
	"bycarket/api/internal/config"
	"bycarket/api/internal/db"
	"bycarket/api/internal/models"
	"bycarket/api/internal/utils"
)

// IPostService defines the interface for post-related operations.
type IPostService interface {
	CreatePost(ctx context.Context, userID, vehicleID utils.SixID, description *string, price *float64, isNegotiable bool) (*models.Post, error)
	FindPostByID(ctx context.Context, postID utils.SixID, viewer models.Viewer) (*models.Post, error)
	SearchPosts(ctx context.Context, criteria *models.FilterCriteria, viewer models.Viewer) (*models.PostPage, error)
	CheckPostQuota(ctx context.Context, userID utils.SixID) (QuotaDecision, error)
	CountOwnedPosts(ctx context.Context, userID utils.SixID) (int64, error)
	ApprovePost(ctx context.Context, postID, adminUserID utils.SixID) (*models.Post, error)
	RejectPost(ctx context.Context, postID, adminUserID utils.SixID, reason string) (*models.Post, error)
	ActivatePost(ctx context.Context, postID, userID utils.SixID) error
	DeactivatePost(ctx context.Context, postID, userID utils.SixID) error
	MarkPostSold(ctx context.Context, postID, userID utils.SixID) error
	DeletePost(ctx context.Context, postID, callerID utils.SixID, callerIsAdmin bool) error
	RefreshVehicleSnapshots(ctx context.Context, vehicle *models.Vehicle) error
}

const (
	postsCollection    = "posts"
	usersCollection    = "users"
	vehiclesCollection = "vehicles"
)

// postService implements IPostService.
type postService struct {
	db            *mongo.Database
	cfg           *config.Config
	configService IConfigService
	searchCache   *cache.SearchCache // nil disables caching
}

// NewPostService creates a new PostService. searchCache may be nil (e.g. in
// tests) to bypass Redis caching of public search results.
func NewPostService(db *mongo.Database, cfg *config.Config, configService IConfigService, searchCache *cache.SearchCache) IPostService {
	return &postService{db: db, cfg: cfg, configService: configService, searchCache: searchCache}
}

// freePostLimitFor resolves the free-tier post limit for a user: runtime
// config first, then the env default, then the per-user override.
func (s *postService) freePostLimitFor(ctx context.Context, user *models.User) int {
	limit := s.cfg.FreePostLimit
	if s.configService != nil {
		limit = s.configService.GetInt(ctx, "FREE_POST_LIMIT", limit)
	}
	if user.FreePostLimit != nil {
		limit = *user.FreePostLimit
	}
	if limit < 0 {
		limit = 0
	}
	return limit
}

// CountOwnedPosts counts the user's non-deleted posts across all statuses.
func (s *postService) CountOwnedPosts(ctx context.Context, userID utils.SixID) (int64, error) {
	count, err := s.db.Collection(postsCollection).CountDocuments(ctx, bson.M{
		"user_id": userID,
		"deleted": false,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count posts for user %s: %w", userID.String(), err)
	}
	return count, nil
}

// CheckPostQuota evaluates the posting quota against a freshly read post
// count. The decision is advisory for the UI; CreatePost re-evaluates it at
// creation time.
func (s *postService) CheckPostQuota(ctx context.Context, userID utils.SixID) (QuotaDecision, error) {
	var user models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID, "deleted": false}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return QuotaDecision{}, mongo.ErrNoDocuments
		}
		return QuotaDecision{}, fmt.Errorf("failed to find user %s for quota check: %w", userID.String(), err)
	}

	count, err := s.CountOwnedPosts(ctx, userID)
	if err != nil {
		return QuotaDecision{}, err
	}

	return EvaluatePostQuota(user.Role, count, s.freePostLimitFor(ctx, &user)), nil
}

// CreatePost creates a new post in pending status, referencing one of the
// user's vehicles. The quota is re-checked here against a fresh count; two
// concurrent requests near the boundary can still both pass (see DESIGN.md),
// the limit is a soft one.
func (s *postService) CreatePost(ctx context.Context, userID, vehicleID utils.SixID, description *string, price *float64, isNegotiable bool) (*models.Post, error) {
	decision, err := s.CheckPostQuota(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !decision.CanCreate {
		return nil, &QuotaDeniedError{Decision: decision}
	}

	var vehicle models.Vehicle
	err = s.db.Collection(vehiclesCollection).FindOne(ctx, bson.M{
		"_id":     vehicleID,
		"user_id": userID,
		"deleted": false,
	}).Decode(&vehicle)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("vehicle %s not found or not owned by user %s", vehicleID.String(), userID.String())
		}
		return nil, fmt.Errorf("failed to find vehicle %s: %w", vehicleID.String(), err)
	}

	// A vehicle is referenced by at most one live post.
	existing, err := s.db.Collection(postsCollection).CountDocuments(ctx, bson.M{
		"vehicle_id": vehicleID,
		"deleted":    false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing post of vehicle %s: %w", vehicleID.String(), err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("vehicle %s already has a post", vehicleID.String())
	}

	now := time.Now().UTC()
	doc, err := db.InsertOne(ctx, s.db.Collection(postsCollection), &models.Post{
		VehicleID:    vehicleID,
		UserID:       userID,
		Status:       models.PostStatusPending,
		PostDate:     now,
		Description:  description,
		Price:        price,
		IsNegotiable: isNegotiable,
		Vehicle:      vehicle.Snapshot(),
		UpdatedAt:    now,
		Deleted:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert post for user %s: %w", userID.String(), err)
	}
	return doc.(*models.Post), nil
}

// QuotaDeniedError is returned by CreatePost when the authoritative quota
// re-check fails. The advisory CheckPostQuota path never errors on denial.
type QuotaDeniedError struct {
	Decision QuotaDecision
}

func (e *QuotaDeniedError) Error() string {
	return fmt.Sprintf("post creation denied: %s", e.Decision.Reason)
}

// FindPostByID finds a non-deleted post, applying the viewer's visibility
// rules: the owner and admins see any status, everyone else only active.
func (s *postService) FindPostByID(ctx context.Context, postID utils.SixID, viewer models.Viewer) (*models.Post, error) {
	var post models.Post
	err := s.db.Collection(postsCollection).FindOne(ctx, bson.M{"_id": postID, "deleted": false}).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding post by ID %s: %w", postID.String(), err)
	}
	if post.Status != models.PostStatusActive && !viewer.IsAdmin() && post.UserID != viewer.UserID {
		return nil, mongo.ErrNoDocuments
	}
	return &post, nil
}

// sortFieldPath maps an enumerated sort field to its bson path.
func sortFieldPath(f models.SortField) string {
	switch f {
	case models.SortByBrand:
		return "vehicle.brand_name"
	case models.SortByModel:
		return "vehicle.model_name"
	case models.SortByVersion:
		return "vehicle.version_name"
	case models.SortByYear:
		return "vehicle.year"
	case models.SortByPrice:
		return "vehicle.price"
	case models.SortByMileage:
		return "vehicle.mileage"
	default:
		return "post_date"
	}
}

// buildSearchFilter translates criteria plus viewer visibility into a bson
// filter. Criteria must be validated and defaulted by the caller.
func buildSearchFilter(criteria *models.FilterCriteria, viewer models.Viewer) bson.M {
	filter := bson.M{"deleted": false}

	// Status visibility. Owner scope returns the caller's own posts in every
	// status; admins may filter by an explicit status; everyone else only
	// ever sees active posts.
	if viewer.OwnerScope {
		filter["user_id"] = viewer.UserID
	} else if viewer.IsAdmin() {
		if criteria.Status != nil {
			filter["status"] = *criteria.Status
		}
	} else {
		filter["status"] = models.PostStatusActive
	}

	if len(criteria.BrandIDs) > 0 {
		filter["vehicle.brand_id"] = bson.M{"$in": criteria.BrandIDs}
	}
	if len(criteria.ModelIDs) > 0 {
		filter["vehicle.model_id"] = bson.M{"$in": criteria.ModelIDs}
	}
	if len(criteria.VersionIDs) > 0 {
		filter["vehicle.version_id"] = bson.M{"$in": criteria.VersionIDs}
	}
	if len(criteria.TypeOfVehicle) > 0 {
		filter["vehicle.type_of_vehicle"] = bson.M{"$in": criteria.TypeOfVehicle}
	}
	if criteria.Condition != nil {
		filter["vehicle.condition"] = *criteria.Condition
	}
	if criteria.CurrencyCode != nil {
		filter["vehicle.currency_code"] = *criteria.CurrencyCode
	}

	addRange := func(field string, min, max interface{}) {
		bounds := bson.M{}
		if min != nil {
			bounds["$gte"] = min
		}
		if max != nil {
			bounds["$lte"] = max
		}
		if len(bounds) > 0 {
			filter[field] = bounds
		}
	}
	if criteria.MinYear != nil || criteria.MaxYear != nil {
		var lo, hi interface{}
		if criteria.MinYear != nil {
			lo = *criteria.MinYear
		}
		if criteria.MaxYear != nil {
			hi = *criteria.MaxYear
		}
		addRange("vehicle.year", lo, hi)
	}
	if criteria.MinPrice != nil || criteria.MaxPrice != nil {
		var lo, hi interface{}
		if criteria.MinPrice != nil {
			lo = *criteria.MinPrice
		}
		if criteria.MaxPrice != nil {
			hi = *criteria.MaxPrice
		}
		addRange("vehicle.price", lo, hi)
	}
	if criteria.MinMileage != nil || criteria.MaxMileage != nil {
		var lo, hi interface{}
		if criteria.MinMileage != nil {
			lo = *criteria.MinMileage
		}
		if criteria.MaxMileage != nil {
			hi = *criteria.MaxMileage
		}
		addRange("vehicle.mileage", lo, hi)
	}

	if criteria.Search != "" {
		pattern := regexp.QuoteMeta(criteria.Search)
		re := bson.M{"$regex": pattern, "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"vehicle.brand_name": re},
			bson.M{"vehicle.model_name": re},
			bson.M{"vehicle.description": re},
			bson.M{"description": re},
		}
	}

	return filter
}

// SearchPosts resolves filter criteria into one page of posts plus the total
// count and page count. Read-only; results are stable across identical
// requests (ties broken by _id) so pagination is reproducible.
func (s *postService) SearchPosts(ctx context.Context, criteria *models.FilterCriteria, viewer models.Viewer) (*models.PostPage, error) {
	if verr := criteria.Validate(); verr != nil {
		return nil, verr
	}
	criteria.ApplyDefaults()

	// Only the anonymous/general listing is cacheable.
	cacheable := s.searchCache != nil && !viewer.OwnerScope && !viewer.IsAdmin()
	var cacheKey string
	if cacheable {
		key, err := s.searchCache.Key(criteria)
		if err == nil {
			cacheKey = key
			if page, err := s.searchCache.Get(ctx, cacheKey); err == nil && page != nil {
				return page, nil
			}
		}
	}

	filter := buildSearchFilter(criteria, viewer)
	collection := s.db.Collection(postsCollection)

	total, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count posts for search: %w", err)
	}

	dir := 1
	if criteria.Order == models.OrderDesc {
		dir = -1
	}
	sort := bson.D{
		{Key: sortFieldPath(criteria.OrderBy), Value: dir},
		{Key: "_id", Value: dir}, // Stable tiebreak; same direction so asc/desc are exact mirrors
	}

	opts := options.Find().
		SetSort(sort).
		SetSkip(int64((criteria.Page - 1) * criteria.Limit)).
		SetLimit(int64(criteria.Limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to execute post search query: %w", err)
	}
	defer cursor.Close(ctx)

	results := []models.Post{}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode post search results: %w", err)
	}

	page := &models.PostPage{
		Data:       results,
		Total:      total,
		Page:       criteria.Page,
		Limit:      criteria.Limit,
		TotalPages: int(math.Ceil(float64(total) / float64(criteria.Limit))),
	}

	if cacheable && cacheKey != "" {
		if err := s.searchCache.Set(ctx, cacheKey, page); err != nil {
			log.Printf("WARN: failed to cache search page: %v", err)
		}
	}

	return page, nil
}

// invalidateSearchCache drops cached public pages after a visibility-changing
// mutation. Best effort.
func (s *postService) invalidateSearchCache(ctx context.Context) {
	if s.searchCache == nil {
		return
	}
	if err := s.searchCache.Invalidate(ctx); err != nil {
		log.Printf("WARN: failed to invalidate search cache: %v", err)
	}
}

// transitionStatus moves a post between statuses, constraining the update to
// legal source statuses. When nothing matches it re-reads the post to return
// a specific error.
func (s *postService) transitionStatus(ctx context.Context, postID utils.SixID, from []models.PostStatus, to models.PostStatus, extra bson.M, owner *utils.SixID) error {
	collection := s.db.Collection(postsCollection)

	filter := bson.M{
		"_id":     postID,
		"deleted": false,
		"status":  bson.M{"$in": from},
	}
	if owner != nil {
		filter["user_id"] = *owner
	}

	set := bson.M{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		set[k] = v
	}

	result, err := collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("db error transitioning post %s to %s: %w", postID.String(), to, err)
	}
	if result.MatchedCount == 0 {
		var post models.Post
		checkErr := collection.FindOne(ctx, bson.M{"_id": postID}).Decode(&post)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return fmt.Errorf("post %s: %w", postID.String(), mongo.ErrNoDocuments)
		}
		if post.Deleted {
			return fmt.Errorf("post %s is deleted", postID.String())
		}
		if owner != nil && post.UserID != *owner {
			return fmt.Errorf("post %s does not belong to user %s", postID.String(), owner.String())
		}
		return fmt.Errorf("post %s cannot move from %s to %s", postID.String(), post.Status, to)
	}

	s.invalidateSearchCache(ctx)
	return nil
}

// ApprovePost transitions a pending post to active. Admin action; the role
// gate lives in the routing layer.
func (s *postService) ApprovePost(ctx context.Context, postID, adminUserID utils.SixID) (*models.Post, error) {
	err := s.transitionStatus(ctx, postID, []models.PostStatus{models.PostStatusPending}, models.PostStatusActive, nil, nil)
	if err != nil {
		return nil, err
	}
	log.Printf("Post %s approved by admin %s.", postID.String(), adminUserID.String())
	return s.reload(ctx, postID)
}

// RejectPost transitions a pending post to rejected, recording the reason.
func (s *postService) RejectPost(ctx context.Context, postID, adminUserID utils.SixID, reason string) (*models.Post, error) {
	err := s.transitionStatus(ctx, postID, []models.PostStatus{models.PostStatusPending}, models.PostStatusRejected,
		bson.M{"reject_reason": reason}, nil)
	if err != nil {
		return nil, err
	}
	log.Printf("Post %s rejected by admin %s.", postID.String(), adminUserID.String())
	return s.reload(ctx, postID)
}

// ActivatePost brings an inactive post back to active. Owner action.
func (s *postService) ActivatePost(ctx context.Context, postID, userID utils.SixID) error {
	return s.transitionStatus(ctx, postID, []models.PostStatus{models.PostStatusInactive}, models.PostStatusActive, nil, &userID)
}

// DeactivatePost hides an active post from the public listing. Owner action.
func (s *postService) DeactivatePost(ctx context.Context, postID, userID utils.SixID) error {
	return s.transitionStatus(ctx, postID, []models.PostStatus{models.PostStatusActive}, models.PostStatusInactive, nil, &userID)
}

// MarkPostSold finalizes an active or inactive post as sold. Owner action;
// sold is terminal.
func (s *postService) MarkPostSold(ctx context.Context, postID, userID utils.SixID) error {
	return s.transitionStatus(ctx, postID,
		[]models.PostStatus{models.PostStatusActive, models.PostStatusInactive}, models.PostStatusSold, nil, &userID)
}

// DeletePost performs a soft delete. Owners may delete their own posts;
// admins may delete any post.
func (s *postService) DeletePost(ctx context.Context, postID, callerID utils.SixID, callerIsAdmin bool) error {
	collection := s.db.Collection(postsCollection)

	filter := bson.M{"_id": postID, "deleted": false}
	if !callerIsAdmin {
		filter["user_id"] = callerID
	}

	now := time.Now().UTC()
	result, err := collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"deleted":    true,
		"deleted_at": now,
		"updated_at": now,
	}})
	if err != nil {
		return fmt.Errorf("db error deleting post %s: %w", postID.String(), err)
	}
	if result.MatchedCount == 0 {
		var post models.Post
		checkErr := collection.FindOne(ctx, bson.M{"_id": postID}).Decode(&post)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return fmt.Errorf("post %s: %w", postID.String(), mongo.ErrNoDocuments)
		}
		if post.UserID != callerID {
			return fmt.Errorf("post %s does not belong to user %s", postID.String(), callerID.String())
		}
		return fmt.Errorf("post %s is already deleted", postID.String())
	}

	s.invalidateSearchCache(ctx)
	return nil
}

// RefreshVehicleSnapshots propagates a vehicle update into the denormalized
// snapshot of every live post referencing it.
func (s *postService) RefreshVehicleSnapshots(ctx context.Context, vehicle *models.Vehicle) error {
	_, err := s.db.Collection(postsCollection).UpdateMany(ctx,
		bson.M{"vehicle_id": vehicle.ID, "deleted": false},
		bson.M{"$set": bson.M{
			"vehicle":    vehicle.Snapshot(),
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to refresh post snapshots for vehicle %s: %w", vehicle.ID.String(), err)
	}
	s.invalidateSearchCache(ctx)
	return nil
}

// reload fetches a post without visibility checks, for returning the updated
// document after a moderation action.
func (s *postService) reload(ctx context.Context, postID utils.SixID) (*models.Post, error) {
	var post models.Post
	err := s.db.Collection(postsCollection).FindOne(ctx, bson.M{"_id": postID}).Decode(&post)
	if err != nil {
		return nil, fmt.Errorf("failed to reload post %s: %w", postID.String(), err)
	}
	return &post, nil
}
