package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bycarket/api/internal/db"
	"bycarket/api/internal/models"
	"bycarket/api/internal/utils"
)

// ICatalogService defines the interface for brand/model/version lookups.
type ICatalogService interface {
	ListBrands(ctx context.Context) ([]models.Brand, error)
	ListModels(ctx context.Context, brandID utils.SixID) ([]models.VehicleModel, error)
	ListVersions(ctx context.Context, modelID utils.SixID) ([]models.Version, error)
	FindBrandByID(ctx context.Context, brandID utils.SixID) (*models.Brand, error)
	FindModelByID(ctx context.Context, modelID utils.SixID) (*models.VehicleModel, error)
	FindVersionByID(ctx context.Context, versionID utils.SixID) (*models.Version, error)
	CreateBrand(ctx context.Context, name string) (*models.Brand, error)
	CreateModel(ctx context.Context, brandID utils.SixID, name string) (*models.VehicleModel, error)
	CreateVersion(ctx context.Context, modelID utils.SixID, name string) (*models.Version, error)
}

const (
	brandsCollection   = "brands"
	modelsCollection   = "vehicle_models"
	versionsCollection = "versions"
)

// catalogService implements ICatalogService.
type catalogService struct {
	db *mongo.Database
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(db *mongo.Database) ICatalogService {
	return &catalogService{db: db}
}

func (s *catalogService) ListBrands(ctx context.Context) ([]models.Brand, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.db.Collection(brandsCollection).Find(ctx, bson.M{"deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query brands: %w", err)
	}
	defer cursor.Close(ctx)

	var brands []models.Brand
	if err = cursor.All(ctx, &brands); err != nil {
		return nil, fmt.Errorf("failed to decode brands: %w", err)
	}
	return brands, nil
}

func (s *catalogService) ListModels(ctx context.Context, brandID utils.SixID) ([]models.VehicleModel, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.db.Collection(modelsCollection).Find(ctx, bson.M{"brand_id": brandID, "deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query models for brand %s: %w", brandID.String(), err)
	}
	defer cursor.Close(ctx)

	var vehicleModels []models.VehicleModel
	if err = cursor.All(ctx, &vehicleModels); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}
	return vehicleModels, nil
}

func (s *catalogService) ListVersions(ctx context.Context, modelID utils.SixID) ([]models.Version, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.db.Collection(versionsCollection).Find(ctx, bson.M{"model_id": modelID, "deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions for model %s: %w", modelID.String(), err)
	}
	defer cursor.Close(ctx)

	var versions []models.Version
	if err = cursor.All(ctx, &versions); err != nil {
		return nil, fmt.Errorf("failed to decode versions: %w", err)
	}
	return versions, nil
}

func (s *catalogService) FindBrandByID(ctx context.Context, brandID utils.SixID) (*models.Brand, error) {
	var brand models.Brand
	err := s.db.Collection(brandsCollection).FindOne(ctx, bson.M{"_id": brandID, "deleted": false}).Decode(&brand)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding brand %s: %w", brandID.String(), err)
	}
	return &brand, nil
}

func (s *catalogService) FindModelByID(ctx context.Context, modelID utils.SixID) (*models.VehicleModel, error) {
	var vehicleModel models.VehicleModel
	err := s.db.Collection(modelsCollection).FindOne(ctx, bson.M{"_id": modelID, "deleted": false}).Decode(&vehicleModel)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding model %s: %w", modelID.String(), err)
	}
	return &vehicleModel, nil
}

func (s *catalogService) FindVersionByID(ctx context.Context, versionID utils.SixID) (*models.Version, error) {
	var version models.Version
	err := s.db.Collection(versionsCollection).FindOne(ctx, bson.M{"_id": versionID, "deleted": false}).Decode(&version)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding version %s: %w", versionID.String(), err)
	}
	return &version, nil
}

func (s *catalogService) CreateBrand(ctx context.Context, name string) (*models.Brand, error) {
	if name == "" {
		return nil, fmt.Errorf("brand name must not be empty")
	}
	doc, err := db.InsertOne(ctx, s.db.Collection(brandsCollection), &models.Brand{Name: name})
	if err != nil {
		return nil, err
	}
	return doc.(*models.Brand), nil
}

func (s *catalogService) CreateModel(ctx context.Context, brandID utils.SixID, name string) (*models.VehicleModel, error) {
	if name == "" {
		return nil, fmt.Errorf("model name must not be empty")
	}
	if _, err := s.FindBrandByID(ctx, brandID); err != nil {
		return nil, fmt.Errorf("cannot create model under brand %s: %w", brandID.String(), err)
	}
	doc, err := db.InsertOne(ctx, s.db.Collection(modelsCollection), &models.VehicleModel{BrandID: brandID, Name: name})
	if err != nil {
		return nil, err
	}
	return doc.(*models.VehicleModel), nil
}

func (s *catalogService) CreateVersion(ctx context.Context, modelID utils.SixID, name string) (*models.Version, error) {
	if name == "" {
		return nil, fmt.Errorf("version name must not be empty")
	}
	if _, err := s.FindModelByID(ctx, modelID); err != nil {
		return nil, fmt.Errorf("cannot create version under model %s: %w", modelID.String(), err)
	}
	doc, err := db.InsertOne(ctx, s.db.Collection(versionsCollection), &models.Version{ModelID: modelID, Name: name})
	if err != nil {
		return nil, err
	}
	return doc.(*models.Version), nil
}
