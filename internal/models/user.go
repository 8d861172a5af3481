package models

import (
	"time"
)

// Role defines the access tier of a user. It is the sole authorization
// discriminant in the system.
type Role string

const (
	RoleUser    Role = "user"
	RolePremium Role = "premium"
	RoleAdmin   Role = "admin"
)

// IsValid reports whether the role is one of the recognized tiers.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RolePremium, RoleAdmin:
		return true
	}
	return false
}

// NotificationPreferences allows users to control email notifications.
type NotificationPreferences struct {
	PostApproved   bool `bson:"post_approved" json:"post_approved"`
	PostRejected   bool `bson:"post_rejected" json:"post_rejected"`
	Enquiry        bool `bson:"enquiry" json:"enquiry"`
	InvoiceIssued  bool `bson:"invoice_issued" json:"invoice_issued"`
	InvoiceOverdue bool `bson:"invoice_overdue" json:"invoice_overdue"`
}

// User represents a user in the system.
type User struct {
	Base                    `bson:",inline"`
	Name                    string                   `bson:"name" json:"name"`
	Email                   string                   `bson:"email" json:"email"`
	PasswordHash            string                   `bson:"password" json:"-"` // Store hash, not plaintext
	Role                    Role                     `bson:"role" json:"role"`
	Country                 string                   `bson:"country,omitempty" json:"country,omitempty"`
	City                    string                   `bson:"city,omitempty" json:"city,omitempty"`
	Phone                   string                   `bson:"phone,omitempty" json:"phone,omitempty"`
	Activated               bool                     `bson:"activated" json:"activated"`
	Suspended               bool                     `bson:"suspended" json:"suspended"`
	UpdatedAt               time.Time                `bson:"updated_at" json:"updated_at"`
	CreatedAt               time.Time                `bson:"created_at" json:"created_at"`
	NotificationPreferences *NotificationPreferences `bson:"notification_preferences,omitempty" json:"notification_preferences,omitempty"`
	FreePostLimit           *int                     `bson:"free_post_limit,omitempty" json:"free_post_limit,omitempty"` // User-specific override
	PremiumUntil            *time.Time               `bson:"premium_until,omitempty" json:"premium_until,omitempty"`
	Deleted                 bool                     `bson:"deleted" json:"-"` // Soft delete flag
}
