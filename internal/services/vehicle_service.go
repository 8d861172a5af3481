package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bycarket/api/internal/db"
	"bycarket/api/internal/models"
	"bycarket/api/internal/utils"
)

// VehicleInput carries the caller-supplied fields for creating or replacing
// a vehicle record.
type VehicleInput struct {
	BrandID       utils.SixID        `json:"brand_id"`
	ModelID       utils.SixID        `json:"model_id"`
	VersionID     utils.SixID        `json:"version_id"`
	TypeOfVehicle models.VehicleType `json:"type_of_vehicle"`
	Year          int                `json:"year"`
	Condition     models.Condition   `json:"condition"`
	CurrencyCode  string             `json:"currency_code"`
	Price         float64            `json:"price"`
	Mileage       int                `json:"mileage"`
	Description   string             `json:"description"`
}

// IVehicleService defines the interface for vehicle-related operations.
type IVehicleService interface {
	CreateVehicle(ctx context.Context, userID utils.SixID, input VehicleInput) (*models.Vehicle, error)
	FindVehicleByID(ctx context.Context, vehicleID utils.SixID) (*models.Vehicle, error)
	FindVehiclesByUser(ctx context.Context, userID utils.SixID) ([]models.Vehicle, error)
	UpdateVehicle(ctx context.Context, vehicleID, userID utils.SixID, input VehicleInput) (*models.Vehicle, error)
	DeleteVehicle(ctx context.Context, vehicleID, userID utils.SixID) error
	AddImageToVehicle(ctx context.Context, vehicleID utils.SixID, imageKey string) error
}

// vehicleService implements IVehicleService.
type vehicleService struct {
	db          *mongo.Database
	catalog     ICatalogService
	postService IPostService // For refreshing denormalized snapshots on update
}

// NewVehicleService creates a new VehicleService.
func NewVehicleService(db *mongo.Database, catalog ICatalogService, postService IPostService) IVehicleService {
	return &vehicleService{db: db, catalog: catalog, postService: postService}
}

// resolveCatalog validates the brand→model→version chain and returns the
// display names to denormalize. Unlike search filters, creating a vehicle
// against a stale catalog id is a hard error.
func (s *vehicleService) resolveCatalog(ctx context.Context, input VehicleInput) (brand, model, version string, err error) {
	b, err := s.catalog.FindBrandByID(ctx, input.BrandID)
	if err != nil {
		return "", "", "", fmt.Errorf("brand %s not found", input.BrandID.String())
	}
	m, err := s.catalog.FindModelByID(ctx, input.ModelID)
	if err != nil {
		return "", "", "", fmt.Errorf("model %s not found", input.ModelID.String())
	}
	if m.BrandID != b.ID {
		return "", "", "", fmt.Errorf("model %s does not belong to brand %s", m.ID.String(), b.ID.String())
	}
	v, err := s.catalog.FindVersionByID(ctx, input.VersionID)
	if err != nil {
		return "", "", "", fmt.Errorf("version %s not found", input.VersionID.String())
	}
	if v.ModelID != m.ID {
		return "", "", "", fmt.Errorf("version %s does not belong to model %s", v.ID.String(), m.ID.String())
	}
	return b.Name, m.Name, v.Name, nil
}

func validateVehicleInput(input VehicleInput) error {
	if !input.TypeOfVehicle.IsValid() {
		return fmt.Errorf("%q is not a vehicle type", string(input.TypeOfVehicle))
	}
	if !input.Condition.IsValid() {
		return fmt.Errorf("%q is not a condition", string(input.Condition))
	}
	if input.Year < 1900 || input.Year > time.Now().Year()+1 {
		return fmt.Errorf("year %d is out of range", input.Year)
	}
	if input.Price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	if input.Mileage < 0 {
		return fmt.Errorf("mileage must not be negative")
	}
	return nil
}

// CreateVehicle creates a vehicle owned by the user, denormalizing the
// catalog names for listing queries.
func (s *vehicleService) CreateVehicle(ctx context.Context, userID utils.SixID, input VehicleInput) (*models.Vehicle, error) {
	if err := validateVehicleInput(input); err != nil {
		return nil, err
	}
	brandName, modelName, versionName, err := s.resolveCatalog(ctx, input)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc, err := db.InsertOne(ctx, s.db.Collection(vehiclesCollection), &models.Vehicle{
		UserID:        userID,
		BrandID:       input.BrandID,
		ModelID:       input.ModelID,
		VersionID:     input.VersionID,
		BrandName:     brandName,
		ModelName:     modelName,
		VersionName:   versionName,
		TypeOfVehicle: input.TypeOfVehicle,
		Year:          input.Year,
		Condition:     input.Condition,
		CurrencyCode:  input.CurrencyCode,
		Price:         input.Price,
		Mileage:       input.Mileage,
		Description:   input.Description,
		Images:        []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
		Deleted:       false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert vehicle for user %s: %w", userID.String(), err)
	}
	return doc.(*models.Vehicle), nil
}

// FindVehicleByID finds a non-deleted vehicle by its ID. It does NOT check
// ownership.
func (s *vehicleService) FindVehicleByID(ctx context.Context, vehicleID utils.SixID) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := s.db.Collection(vehiclesCollection).FindOne(ctx, bson.M{"_id": vehicleID, "deleted": false}).Decode(&vehicle)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding vehicle by ID %s: %w", vehicleID.String(), err)
	}
	return &vehicle, nil
}

// FindVehiclesByUser returns all non-deleted vehicles owned by the user,
// newest first.
func (s *vehicleService) FindVehiclesByUser(ctx context.Context, userID utils.SixID) ([]models.Vehicle, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.db.Collection(vehiclesCollection).Find(ctx, bson.M{"user_id": userID, "deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles for user %s: %w", userID.String(), err)
	}
	defer cursor.Close(ctx)

	var vehicles []models.Vehicle
	if err = cursor.All(ctx, &vehicles); err != nil {
		return nil, fmt.Errorf("failed to decode vehicles: %w", err)
	}
	return vehicles, nil
}

// UpdateVehicle replaces the mutable fields of a vehicle owned by the user
// and propagates the change into any live post snapshot.
func (s *vehicleService) UpdateVehicle(ctx context.Context, vehicleID, userID utils.SixID, input VehicleInput) (*models.Vehicle, error) {
	if err := validateVehicleInput(input); err != nil {
		return nil, err
	}
	brandName, modelName, versionName, err := s.resolveCatalog(ctx, input)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"_id": vehicleID, "user_id": userID, "deleted": false}
	update := bson.M{"$set": bson.M{
		"brand_id":        input.BrandID,
		"model_id":        input.ModelID,
		"version_id":      input.VersionID,
		"brand_name":      brandName,
		"model_name":      modelName,
		"version_name":    versionName,
		"type_of_vehicle": input.TypeOfVehicle,
		"year":            input.Year,
		"condition":       input.Condition,
		"currency_code":   input.CurrencyCode,
		"price":           input.Price,
		"mileage":         input.Mileage,
		"description":     input.Description,
		"updated_at":      time.Now().UTC(),
	}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Vehicle
	err = s.db.Collection(vehiclesCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("vehicle not found, not owned by user, or cannot be updated")
		}
		return nil, fmt.Errorf("failed to update vehicle %s: %w", vehicleID.String(), err)
	}

	if err := s.postService.RefreshVehicleSnapshots(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteVehicle soft deletes a vehicle. A vehicle with a live post cannot be
// deleted; the post must go first.
func (s *vehicleService) DeleteVehicle(ctx context.Context, vehicleID, userID utils.SixID) error {
	livePosts, err := s.db.Collection(postsCollection).CountDocuments(ctx, bson.M{
		"vehicle_id": vehicleID,
		"deleted":    false,
	})
	if err != nil {
		return fmt.Errorf("failed to check posts for vehicle %s: %w", vehicleID.String(), err)
	}
	if livePosts > 0 {
		return fmt.Errorf("vehicle %s still has a post; delete the post first", vehicleID.String())
	}

	now := time.Now().UTC()
	result, err := s.db.Collection(vehiclesCollection).UpdateOne(ctx,
		bson.M{"_id": vehicleID, "user_id": userID, "deleted": false},
		bson.M{"$set": bson.M{"deleted": true, "deleted_at": now, "updated_at": now}},
	)
	if err != nil {
		return fmt.Errorf("db error deleting vehicle %s: %w", vehicleID.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("vehicle %s not found or not owned by user %s", vehicleID.String(), userID.String())
	}
	return nil
}

// AddImageToVehicle adds a processed image key to a vehicle's image array.
// Called after the image processing task completes.
func (s *vehicleService) AddImageToVehicle(ctx context.Context, vehicleID utils.SixID, imageKey string) error {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Vehicle
	err := s.db.Collection(vehiclesCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": vehicleID, "deleted": false},
		bson.M{
			"$addToSet": bson.M{"images": imageKey}, // Add key if not already present
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		},
		opts,
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("vehicle %s not found or cannot be updated when adding image", vehicleID.String())
		}
		return fmt.Errorf("db error adding image %s to vehicle %s: %w", imageKey, vehicleID.String(), err)
	}

	return s.postService.RefreshVehicleSnapshots(ctx, &updated)
}
