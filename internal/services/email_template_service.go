package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bycarket/api/internal/models"
)

// Default email templates used as fallback when not found in database.
var defaultEmailTemplates = map[string]models.EmailTemplate{
	"welcome": {
		ID:      "welcome",
		Subject: "Welcome to {{.app_name}}",
		Body:    "Hi {{.user_name}}, your account is ready. List your first vehicle whenever you like.",
	},
	"post_approved": {
		ID:      "post_approved",
		Subject: "Your listing is live",
		Body:    "Hi {{.user_name}}, your listing for {{.vehicle}} was approved and is now visible to buyers.",
	},
	"post_rejected": {
		ID:      "post_rejected",
		Subject: "Your listing was not approved",
		Body:    "Hi {{.user_name}}, your listing for {{.vehicle}} was rejected. Reason: {{.reason}}",
	},
	"enquiry_received": {
		ID:      "enquiry_received",
		Subject: "New enquiry about your {{.vehicle}}",
		Body:    "You received an enquiry from {{.buyer_email}}:\n\n{{.message}}{{if .offer}}\n\nOffer: {{.offer}}{{end}}",
	},
	"invoice_issued": {
		ID:      "invoice_issued",
		Subject: "Invoice {{.invoice_number}} from {{.app_name}}",
		Body:    "Your premium subscription invoice {{.invoice_number}} for {{.total}} {{.currency}} is due by {{.due}}.",
	},
	"invoice_overdue": {
		ID:      "invoice_overdue",
		Subject: "Invoice {{.invoice_number}} is overdue",
		Body:    "Invoice {{.invoice_number}} was due on {{.due}} and remains unpaid. Your premium benefits will lapse.",
	},
	"premium_activated": {
		ID:      "premium_activated",
		Subject: "Premium activated",
		Body:    "Hi {{.user_name}}, your premium subscription is active until {{.until}}. Unlimited listings are enabled.",
	},
	"moderation_pending": {
		ID:      "moderation_pending",
		Subject: "Listings waiting for review",
		Body:    "There are {{.count}} listings pending moderation.",
	},
}

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID string) (*models.EmailTemplate, error)
	Render(ctx context.Context, templateID string, data map[string]interface{}) (subject, body string, err error)
	SaveTemplate(ctx context.Context, tpl *models.EmailTemplate) error
	DeleteTemplate(ctx context.Context, templateID string) error
}

const emailTemplatesCollection = "email_templates"

// EmailTemplateService handles operations related to email templates.
type EmailTemplateService struct {
	db *mongo.Database
}

// NewEmailTemplateService creates a new instance of EmailTemplateService.
func NewEmailTemplateService(db *mongo.Database) *EmailTemplateService {
	return &EmailTemplateService{db: db}
}

// GetTemplate retrieves an email template by ID, falling back to the built-in
// defaults when the database has no override.
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID string) (*models.EmailTemplate, error) {
	var tpl models.EmailTemplate
	err := s.db.Collection(emailTemplatesCollection).FindOne(ctx, bson.M{"_id": templateID}).Decode(&tpl)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if defaultTemplate, ok := defaultEmailTemplates[templateID]; ok {
				return &defaultTemplate, nil
			}
			return nil, fmt.Errorf("template not found: %s", templateID)
		}
		return nil, fmt.Errorf("error retrieving template %s: %w", templateID, err)
	}
	return &tpl, nil
}

// Render executes the template's subject and body against the given data.
func (s *EmailTemplateService) Render(ctx context.Context, templateID string, data map[string]interface{}) (string, string, error) {
	tpl, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return "", "", err
	}

	render := func(name, text string) (string, error) {
		t, err := template.New(name).Parse(text)
		if err != nil {
			return "", fmt.Errorf("template %s (%s) is invalid: %w", templateID, name, err)
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("failed to render template %s (%s): %w", templateID, name, err)
		}
		return buf.String(), nil
	}

	subject, err := render("subject", tpl.Subject)
	if err != nil {
		return "", "", err
	}
	body, err := render("body", tpl.Body)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

// SaveTemplate upserts an email template override into the database.
func (s *EmailTemplateService) SaveTemplate(ctx context.Context, tpl *models.EmailTemplate) error {
	if tpl.ID == "" {
		return fmt.Errorf("template ID must not be empty")
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(emailTemplatesCollection).UpdateOne(ctx,
		bson.M{"_id": tpl.ID},
		bson.M{"$set": bson.M{"subject": tpl.Subject, "body": tpl.Body}},
		opts,
	)
	if err != nil {
		return fmt.Errorf("error saving template %s: %w", tpl.ID, err)
	}
	return nil
}

// DeleteTemplate removes an override, restoring the built-in default.
func (s *EmailTemplateService) DeleteTemplate(ctx context.Context, templateID string) error {
	_, err := s.db.Collection(emailTemplatesCollection).DeleteOne(ctx, bson.M{"_id": templateID})
	if err != nil {
		return fmt.Errorf("error deleting template %s: %w", templateID, err)
	}
	return nil
}
