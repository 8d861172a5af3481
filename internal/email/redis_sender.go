package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"bycarket/api/internal/config"
)

// RedisSender implements the Sender interface by storing emails in Redis.
// Integration tests read the mock keys back to assert on delivery.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender.
func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{
		client: client,
		cfg:    cfg,
	}
}

// categorize maps a subject line to a coarse category used in the mock key.
func categorize(subject string) string {
	switch {
	case strings.Contains(subject, "Welcome"):
		return "welcome"
	case strings.Contains(subject, "is live"):
		return "post_approved"
	case strings.Contains(subject, "not approved"):
		return "post_rejected"
	case strings.Contains(subject, "enquiry"):
		return "enquiry_received"
	case strings.Contains(subject, "overdue"):
		return "invoice_overdue"
	case strings.Contains(subject, "Invoice"):
		return "invoice_issued"
	case strings.Contains(subject, "Premium"):
		return "premium_activated"
	default:
		return "other"
	}
}

// Send stores a representation of the email in Redis instead of sending it.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	category := categorize(subject)

	// Key on the first recipient; broadcast emails are rare here.
	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	emailData := map[string]interface{}{
		"to":       strings.Join(to, ", "),
		"from":     s.cfg.SmtpFromAddress,
		"subject":  subject,
		"body":     string(rawMessage),
		"sent_at":  time.Now().UTC().Format(time.RFC3339Nano),
		"category": category,
	}

	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := fmt.Sprintf("mockemail:%s:%s", primaryTo, category)
	ttl := 5 * time.Minute

	if err := s.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}

	log.Printf("Mock email stored in Redis key '%s' (TTL: %v, To: %s, Subject: %s)", key, ttl, strings.Join(to, ", "), subject)
	return nil
}
