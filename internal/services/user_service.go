package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"bycarket/api/internal/auth"
	"bycarket/api/internal/config"
	"bycarket/api/internal/db"
	"bycarket/api/internal/models"
	"bycarket/api/internal/utils"
)

// IUserService defines the interface for user-related operations.
type IUserService interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
	UpdateProfile(ctx context.Context, userID utils.SixID, updates map[string]interface{}) (*models.User, error)
	UpgradeToPremium(ctx context.Context, userID utils.SixID, until time.Time) error
	DowngradeToFree(ctx context.Context, userID utils.SixID) error
	SuspendUser(ctx context.Context, userIDToSuspend, adminUserID utils.SixID) error
	UnsuspendUser(ctx context.Context, userIDToUnsuspend utils.SixID) error
	DeleteUserAndPosts(ctx context.Context, userID utils.SixID) error
}

// userService implements IUserService.
type userService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewUserService creates a new UserService.
func NewUserService(db *mongo.Database, cfg *config.Config) IUserService {
	return &userService{db: db, cfg: cfg}
}

var emailRegexp = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Register creates a new free-tier user with a bcrypt password hash.
func (s *userService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRegexp.MatchString(email) {
		return nil, fmt.Errorf("invalid email address")
	}
	if passRe, err := regexp.Compile(s.cfg.PasswordRegexp); err == nil && !passRe.MatchString(password) {
		return nil, fmt.Errorf("password does not meet requirements")
	}

	if existing, err := s.FindByEmail(ctx, email); err == nil && existing != nil {
		return nil, fmt.Errorf("email %s is already registered", email)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc, err := db.InsertOne(ctx, s.db.Collection(usersCollection), &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		Activated:    true,
		Suspended:    false,
		CreatedAt:    now,
		UpdatedAt:    now,
		Deleted:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert new user %s: %w", email, err)
	}
	return doc.(*models.User), nil
}

// Authenticate verifies credentials and returns the user. Suspended and
// deleted accounts cannot log in.
func (s *userService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	if user.Suspended {
		return nil, fmt.Errorf("account is suspended")
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, fmt.Errorf("invalid credentials")
	}
	return user, nil
}

// FindByEmail finds a non-deleted user by email (case-insensitive).
func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email)), "deleted": false}
	err := s.db.Collection(usersCollection).FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by email %s: %w", email, err)
	}
	return &user, nil
}

// FindByID finds a non-deleted user by ID.
func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID, "deleted": false}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by ID %s: %w", userID.String(), err)
	}
	return &user, nil
}

// UpdateProfile updates mutable profile fields. Role, email and password are
// not updatable here; they have dedicated flows.
func (s *userService) UpdateProfile(ctx context.Context, userID utils.SixID, updates map[string]interface{}) (*models.User, error) {
	allowed := bson.M{}
	for key, value := range updates {
		switch key {
		case "name", "country", "city", "phone", "notification_preferences":
			allowed[key] = value
		default:
			return nil, fmt.Errorf("field '%s' cannot be updated via UpdateProfile", key)
		}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("no valid fields provided for update")
	}
	allowed["updated_at"] = time.Now().UTC()

	result, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID, "deleted": false},
		bson.M{"$set": allowed},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile for user %s: %w", userID.String(), err)
	}
	if result.MatchedCount == 0 {
		return nil, mongo.ErrNoDocuments
	}
	return s.FindByID(ctx, userID)
}

// UpgradeToPremium switches a free-tier user to the premium role until the
// given date. Admins keep their role.
func (s *userService) UpgradeToPremium(ctx context.Context, userID utils.SixID, until time.Time) error {
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID, "deleted": false, "role": models.RoleUser},
		bson.M{"$set": bson.M{
			"role":          models.RolePremium,
			"premium_until": until,
			"updated_at":    time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("db error upgrading user %s to premium: %w", userID.String(), err)
	}
	if result.MatchedCount == 0 {
		user, checkErr := s.FindByID(ctx, userID)
		if checkErr != nil {
			return fmt.Errorf("user %s not found", userID.String())
		}
		return fmt.Errorf("user %s has role %s and cannot be upgraded", userID.String(), user.Role)
	}
	log.Printf("User %s upgraded to premium until %s.", userID.String(), until.Format(time.RFC3339))
	return nil
}

// DowngradeToFree reverts an expired or unpaid premium user to the free tier.
func (s *userService) DowngradeToFree(ctx context.Context, userID utils.SixID) error {
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID, "deleted": false, "role": models.RolePremium},
		bson.M{
			"$set":   bson.M{"role": models.RoleUser, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"premium_until": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("db error downgrading user %s: %w", userID.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s is not premium", userID.String())
	}
	log.Printf("User %s downgraded to free tier.", userID.String())
	return nil
}

// SuspendUser marks a user as suspended. Admin action.
func (s *userService) SuspendUser(ctx context.Context, userIDToSuspend, adminUserID utils.SixID) error {
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userIDToSuspend, "deleted": false, "suspended": false},
		bson.M{"$set": bson.M{"suspended": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("db error suspending user %s: %w", userIDToSuspend.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s not found or already suspended", userIDToSuspend.String())
	}
	log.Printf("User %s suspended by admin %s.", userIDToSuspend.String(), adminUserID.String())
	return nil
}

// UnsuspendUser lifts a suspension.
func (s *userService) UnsuspendUser(ctx context.Context, userIDToUnsuspend utils.SixID) error {
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userIDToUnsuspend, "deleted": false, "suspended": true},
		bson.M{"$set": bson.M{"suspended": false, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("db error unsuspending user %s: %w", userIDToUnsuspend.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s not found or not suspended", userIDToUnsuspend.String())
	}
	return nil
}

// DeleteUserAndPosts soft deletes a user together with their posts and
// vehicles. Not transactional; a failure between steps leaves orphaned
// posts, which stay invisible anyway since post queries re-check deletion.
func (s *userService) DeleteUserAndPosts(ctx context.Context, userID utils.SixID) error {
	now := time.Now().UTC()

	result, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID, "deleted": false},
		bson.M{"$set": bson.M{"deleted": true, "deleted_at": now, "updated_at": now}},
	)
	if err != nil {
		return fmt.Errorf("db error deleting user %s: %w", userID.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s not found or already deleted", userID.String())
	}

	if _, err := s.db.Collection(postsCollection).UpdateMany(ctx,
		bson.M{"user_id": userID, "deleted": false},
		bson.M{"$set": bson.M{"deleted": true, "deleted_at": now, "updated_at": now}},
	); err != nil {
		return fmt.Errorf("failed to delete posts for user %s: %w", userID.String(), err)
	}

	if _, err := s.db.Collection(vehiclesCollection).UpdateMany(ctx,
		bson.M{"user_id": userID, "deleted": false},
		bson.M{"$set": bson.M{"deleted": true, "deleted_at": now, "updated_at": now}},
	); err != nil {
		return fmt.Errorf("failed to delete vehicles for user %s: %w", userID.String(), err)
	}

	return nil
}
