package models

import (
	"time"

	"bycarket/api/internal/utils"
)

// InvoiceLineItem represents a single line item within an invoice.
type InvoiceLineItem struct {
	Description string    `bson:"description" json:"description"`
	PeriodStart time.Time `bson:"period_start" json:"period_start"`
	PeriodEnd   time.Time `bson:"period_end" json:"period_end"`
	Amount      float64   `bson:"amount" json:"amount"`
}

// Invoice represents a premium subscription bill issued to a user.
type Invoice struct {
	Base            `bson:",inline"`
	UserID          utils.SixID       `bson:"user_id" json:"user_id"`
	InvoiceNumber   string            `bson:"invoice_number" json:"invoice_number"` // Unique readable number
	Items           []InvoiceLineItem `bson:"items" json:"items"`
	CurrencyCode    string            `bson:"currency_code" json:"currency_code"`
	Subtotal        float64           `bson:"subtotal" json:"subtotal"`
	Tax             float64           `bson:"tax" json:"tax"`
	Total           float64           `bson:"total" json:"total"`
	IssuedAt        time.Time         `bson:"issued_at" json:"issued_at"`
	DueAt           time.Time         `bson:"due" json:"due"`
	Sent            bool              `bson:"sent" json:"sent"`                           // False initially, true after email task
	PaidAt          *time.Time        `bson:"paid_at,omitempty" json:"paid_at,omitempty"` // Null until paid
	OverdueNotified bool              `bson:"overdue_notified" json:"overdue_notified"`   // Flag to prevent multiple overdue emails
	Deleted         bool              `bson:"deleted" json:"-"`                           // Soft delete flag
}
