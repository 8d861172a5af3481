package models

import (
	"time"

	"bycarket/api/internal/utils"
)

// Offer is an amount a prospective buyer attaches to an enquiry.
type Offer struct {
	Value        float64 `bson:"value" json:"value"`
	CurrencyCode string  `bson:"currency_code" json:"currency_code"`
}

// PostEnquiry represents a buyer's message about a post.
type PostEnquiry struct {
	Base      `bson:",inline"`
	PostID    utils.SixID `bson:"post_id" json:"post_id"`
	UserID    utils.SixID `bson:"user_id,omitempty" json:"user_id,omitempty"` // ID of user making the enquiry (if logged in)
	UserEmail string      `bson:"user_email" json:"user_email"`               // Reply-to email provided
	Offer     *Offer      `bson:"offer,omitempty" json:"offer,omitempty"`     // Optional offer
	Message   string      `bson:"message" json:"message"`                     // Required if no offer
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
	Sent      bool        `bson:"sent" json:"sent"` // False initially, true after background task emails the seller
	Deleted   bool        `bson:"deleted" json:"-"` // Soft delete flag
}
