package models

import (
	"bycarket/api/internal/utils"
)

// Brand is a vehicle make lookup document (e.g. Toyota).
type Brand struct {
	Base    `bson:",inline"`
	Name    string `bson:"name" json:"name"`
	Deleted bool   `bson:"deleted" json:"-"`
}

// VehicleModel is a model lookup document belonging to a brand (e.g. Corolla).
type VehicleModel struct {
	Base    `bson:",inline"`
	BrandID utils.SixID `bson:"brand_id" json:"brand_id"`
	Name    string      `bson:"name" json:"name"`
	Deleted bool        `bson:"deleted" json:"-"`
}

// Version is a trim/version lookup document belonging to a model (e.g. XEI 2.0).
type Version struct {
	Base    `bson:",inline"`
	ModelID utils.SixID `bson:"model_id" json:"model_id"`
	Name    string      `bson:"name" json:"name"`
	Deleted bool        `bson:"deleted" json:"-"`
}
