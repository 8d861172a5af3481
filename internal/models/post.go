package models

import (
	"time"

	"bycarket/api/internal/utils"
)

// PostStatus is the moderation/lifecycle state of a post.
// Exactly one status applies at a time. Transitions are one-directional
// except active⇄inactive.
type PostStatus string

const (
	PostStatusPending  PostStatus = "pending"
	PostStatusActive   PostStatus = "active"
	PostStatusRejected PostStatus = "rejected"
	PostStatusInactive PostStatus = "inactive"
	PostStatusSold     PostStatus = "sold"
)

// IsValid reports whether the status is a recognized lifecycle state.
func (s PostStatus) IsValid() bool {
	switch s {
	case PostStatusPending, PostStatusActive, PostStatusRejected, PostStatusInactive, PostStatusSold:
		return true
	}
	return false
}

// CanTransitionTo reports whether a status change is a legal lifecycle move.
// Moderation (pending→active|rejected) is admin-only; that check belongs to
// the caller, this only encodes the graph.
func (s PostStatus) CanTransitionTo(next PostStatus) bool {
	switch s {
	case PostStatusPending:
		return next == PostStatusActive || next == PostStatusRejected
	case PostStatusActive:
		return next == PostStatusInactive || next == PostStatusSold
	case PostStatusInactive:
		return next == PostStatusActive || next == PostStatusSold
	default:
		return false
	}
}

// Post is a published (or pending) listing referencing a vehicle.
// The embedded vehicle snapshot carries the denormalized fields the listing
// query filters and sorts on; the vehicles collection stays the source of
// truth and the snapshot is refreshed on vehicle update.
type Post struct {
	Base         `bson:",inline"`
	VehicleID    utils.SixID     `bson:"vehicle_id" json:"vehicle_id"`
	UserID       utils.SixID     `bson:"user_id" json:"user_id"`
	Status       PostStatus      `bson:"status" json:"status"`
	PostDate     time.Time       `bson:"post_date" json:"post_date"`
	Description  *string         `bson:"description,omitempty" json:"description,omitempty"` // Optional override text
	Price        *float64        `bson:"price,omitempty" json:"price,omitempty"`             // Optional override numeric
	IsNegotiable bool            `bson:"is_negotiable" json:"is_negotiable"`
	RejectReason string          `bson:"reject_reason,omitempty" json:"reject_reason,omitempty"`
	Vehicle      VehicleSnapshot `bson:"vehicle" json:"vehicle"`
	UpdatedAt    time.Time       `bson:"updated_at" json:"updated_at"`
	Deleted      bool            `bson:"deleted" json:"-"` // Soft delete flag
}

// VehicleSnapshot is the subset of vehicle fields denormalized into a post
// for filtering, sorting and free-text search.
type VehicleSnapshot struct {
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
	Images        []string    `bson:"images" json:"images"`
}

// Snapshot builds the denormalized post-side view of a vehicle.
func (v *Vehicle) Snapshot() VehicleSnapshot {
	return VehicleSnapshot{
		BrandID:       v.BrandID,
		ModelID:       v.ModelID,
		VersionID:     v.VersionID,
		BrandName:     v.BrandName,
		ModelName:     v.ModelName,
		VersionName:   v.VersionName,
		TypeOfVehicle: v.TypeOfVehicle,
		Year:          v.Year,
		Condition:     v.Condition,
		CurrencyCode:  v.CurrencyCode,
		Price:         v.Price,
		Mileage:       v.Mileage,
		Description:   v.Description,
		Images:        v.Images,
	}
}
