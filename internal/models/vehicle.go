package models

import (
	"time"

	"bycarket/api/internal/utils"
)

// VehicleType enumerates the supported body/vehicle categories.
type VehicleType string

const (
	VehicleTypeSedan     VehicleType = "sedan"
	VehicleTypeHatchback VehicleType = "hatchback"
	VehicleTypeSUV       VehicleType = "suv"
	VehicleTypeCoupe     VehicleType = "coupe"
	VehicleTypePickup    VehicleType = "pickup"
	VehicleTypeMinivan   VehicleType = "minivan"
	VehicleTypeVan       VehicleType = "van"
	VehicleTypeTruck     VehicleType = "truck"
)

// IsValid reports whether the vehicle type is a recognized category.
func (t VehicleType) IsValid() bool {
	switch t {
	case VehicleTypeSedan, VehicleTypeHatchback, VehicleTypeSUV, VehicleTypeCoupe,
		VehicleTypePickup, VehicleTypeMinivan, VehicleTypeVan, VehicleTypeTruck:
		return true
	}
	return false
}

// Condition distinguishes new from used vehicles.
type Condition string

const (
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
)

func (c Condition) IsValid() bool {
	return c == ConditionNew || c == ConditionUsed
}

// Vehicle is the underlying car record a post advertises.
// Brand/model/version names are denormalized from the catalog at write time
// so listing queries never need a join for free-text search or sorting.
type Vehicle struct {
	Base          `bson:",inline"`
	UserID        utils.SixID `bson:"user_id" json:"user_id"`
	BrandID       utils.SixID `bson:"brand_id" json:"brand_id"`
	ModelID       utils.SixID `bson:"model_id" json:"model_id"`
	VersionID     utils.SixID `bson:"version_id" json:"version_id"`
	BrandName     string      `bson:"brand_name" json:"brand_name"`
	ModelName     string      `bson:"model_name" json:"model_name"`
	VersionName   string      `bson:"version_name" json:"version_name"`
	TypeOfVehicle VehicleType `bson:"type_of_vehicle" json:"type_of_vehicle"`
	Year          int         `bson:"year" json:"year"`
	Condition     Condition   `bson:"condition" json:"condition"`
	CurrencyCode  string      `bson:"currency_code" json:"currency_code"`
	Price         float64     `bson:"price" json:"price"`
	Mileage       int         `bson:"mileage" json:"mileage"`
	Description   string      `bson:"description" json:"description"`
	Images        []string    `bson:"images" json:"images"` // S3 keys
	UpdatedAt     time.Time   `bson:"updated_at" json:"updated_at"`
	CreatedAt     time.Time   `bson:"created_at" json:"created_at"`
	Deleted       bool        `bson:"deleted" json:"-"` // Soft delete flag
}
