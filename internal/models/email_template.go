package models

// EmailTemplate defines the structure for email templates stored in the database.
// The `_id` is the action type string (e.g. "post_approved", "enquiry_received").
type EmailTemplate struct {
	ID      string `bson:"_id" json:"id"` // Action type identifier
	Subject string `bson:"subject" json:"subject"`
	Body    string `bson:"body" json:"body"` // text/template body
}
