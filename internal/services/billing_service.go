package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bycarket/api/internal/config"
	"bycarket/api/internal/db"
	"bycarket/api/internal/models"
	"bycarket/api/internal/utils"
)

// IBillingService defines the interface for premium subscription billing.
type IBillingService interface {
	GeneratePremiumInvoice(ctx context.Context, userID utils.SixID) (*models.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error)
	FindInvoiceByID(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error)
	FindInvoicesByUser(ctx context.Context, userID utils.SixID) ([]models.Invoice, error)
	FindOverdueInvoices(ctx context.Context) ([]models.Invoice, error)
	MarkInvoiceOverdueNotified(ctx context.Context, invoiceID utils.SixID) error
	MarkInvoiceSent(ctx context.Context, invoiceID utils.SixID) error
	DowngradeExpiredPremiums(ctx context.Context) (int64, error)
}

const invoicesCollection = "invoices"

// billingService implements IBillingService.
type billingService struct {
	db            *mongo.Database
	cfg           *config.Config
	configService IConfigService // Billing params (PREMIUM_RATE, PREMIUM_PERIOD_DAYS) can be overridden at runtime
	userService   IUserService
}

// NewBillingService creates a new BillingService.
func NewBillingService(db *mongo.Database, cfg *config.Config, configService IConfigService, userService IUserService) IBillingService {
	return &billingService{
		db:            db,
		cfg:           cfg,
		configService: configService,
		userService:   userService,
	}
}

// GeneratePremiumInvoice creates an unpaid invoice covering one premium
// subscription period for the user. Premium activates when the invoice is
// marked paid, not when it is generated.
func (s *billingService) GeneratePremiumInvoice(ctx context.Context, userID utils.SixID) (*models.Invoice, error) {
	user, err := s.userService.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s for invoicing: %w", userID.String(), err)
	}
	if user.Role == models.RoleAdmin {
		return nil, fmt.Errorf("admin accounts do not need a premium subscription")
	}

	rate := s.cfg.PremiumRate
	if s.configService != nil {
		rate = s.configService.GetFloat64(ctx, "PREMIUM_RATE", rate)
	}
	periodDays := s.cfg.PremiumPeriodDays
	if s.configService != nil {
		periodDays = s.configService.GetInt(ctx, "PREMIUM_PERIOD_DAYS", periodDays)
	}
	if periodDays <= 0 {
		return nil, fmt.Errorf("invalid PREMIUM_PERIOD_DAYS configuration")
	}

	// A renewal extends from the current expiry, a fresh subscription starts now.
	now := time.Now().UTC()
	periodStart := now
	if user.PremiumUntil != nil && user.PremiumUntil.After(now) {
		periodStart = *user.PremiumUntil
	}
	periodEnd := periodStart.Add(time.Duration(periodDays*24) * time.Hour)

	dueAt := now.Add(time.Duration(s.cfg.InvoicePaymentWaitTimeDays*24) * time.Hour)
	invoiceNumber := fmt.Sprintf("INV-%s-%d", userID.String()[len(userID.String())-4:], now.Unix())

	doc, err := db.InsertOne(ctx, s.db.Collection(invoicesCollection), &models.Invoice{
		UserID:        userID,
		InvoiceNumber: invoiceNumber,
		Items: []models.InvoiceLineItem{{
			Description: fmt.Sprintf("Premium subscription, %d days", periodDays),
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			Amount:      rate,
		}},
		CurrencyCode:    s.cfg.BillingCurrency,
		Subtotal:        rate,
		Tax:             0,
		Total:           rate,
		IssuedAt:        now,
		DueAt:           dueAt,
		Sent:            false,
		PaidAt:          nil,
		OverdueNotified: false,
		Deleted:         false,
	})
	if err != nil {
		return nil, err
	}
	return doc.(*models.Invoice), nil
}

// MarkInvoicePaid records the payment and activates (or extends) the user's
// premium role up to the end of the invoiced period.
func (s *billingService) MarkInvoicePaid(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error) {
	now := time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var invoice models.Invoice
	err := s.db.Collection(invoicesCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": invoiceID, "paid_at": nil, "deleted": false},
		bson.M{"$set": bson.M{"paid_at": now}},
		opts,
	).Decode(&invoice)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("invoice %s not found or already paid", invoiceID.String())
		}
		return nil, fmt.Errorf("db error marking invoice %s paid: %w", invoiceID.String(), err)
	}

	if len(invoice.Items) == 0 {
		return nil, fmt.Errorf("invoice %s has no line items", invoiceID.String())
	}
	until := invoice.Items[len(invoice.Items)-1].PeriodEnd

	if err := s.userService.UpgradeToPremium(ctx, invoice.UserID, until); err != nil {
		// Renewals hit this path: the user is already premium, so only the
		// expiry needs pushing out.
		if extendErr := s.extendPremium(ctx, invoice.UserID, until); extendErr != nil {
			return nil, fmt.Errorf("invoice %s paid but premium activation failed: %w", invoiceID.String(), err)
		}
	}
	return &invoice, nil
}

func (s *billingService) extendPremium(ctx context.Context, userID utils.SixID, until time.Time) error {
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID, "deleted": false, "role": models.RolePremium},
		bson.M{"$set": bson.M{"premium_until": until, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("db error extending premium for user %s: %w", userID.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s is not premium", userID.String())
	}
	return nil
}

// FindInvoiceByID finds a non-deleted invoice.
func (s *billingService) FindInvoiceByID(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.Collection(invoicesCollection).FindOne(ctx, bson.M{"_id": invoiceID, "deleted": false}).Decode(&invoice)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding invoice %s: %w", invoiceID.String(), err)
	}
	return &invoice, nil
}

// FindInvoicesByUser returns the user's invoices, newest first.
func (s *billingService) FindInvoicesByUser(ctx context.Context, userID utils.SixID) ([]models.Invoice, error) {
	opts := options.Find().SetSort(bson.D{{Key: "issued_at", Value: -1}})
	cursor, err := s.db.Collection(invoicesCollection).Find(ctx, bson.M{"user_id": userID, "deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices for user %s: %w", userID.String(), err)
	}
	defer cursor.Close(ctx)

	var invoices []models.Invoice
	if err = cursor.All(ctx, &invoices); err != nil {
		return nil, fmt.Errorf("failed to decode invoices: %w", err)
	}
	return invoices, nil
}

// FindOverdueInvoices retrieves all invoices past their due date, unpaid and
// not yet flagged as notified.
func (s *billingService) FindOverdueInvoices(ctx context.Context) ([]models.Invoice, error) {
	filter := bson.M{
		"due":              bson.M{"$lt": time.Now().UTC()},
		"paid_at":          nil,
		"overdue_notified": false,
		"deleted":          false,
	}
	cursor, err := s.db.Collection(invoicesCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue invoices: %w", err)
	}
	defer cursor.Close(ctx)

	var invoices []models.Invoice
	if err = cursor.All(ctx, &invoices); err != nil {
		return nil, fmt.Errorf("failed to decode overdue invoices: %w", err)
	}
	return invoices, nil
}

// MarkInvoiceOverdueNotified sets the OverdueNotified flag on an invoice.
func (s *billingService) MarkInvoiceOverdueNotified(ctx context.Context, invoiceID utils.SixID) error {
	result, err := s.db.Collection(invoicesCollection).UpdateOne(ctx,
		bson.M{"_id": invoiceID},
		bson.M{"$set": bson.M{"overdue_notified": true}},
	)
	if err != nil {
		return fmt.Errorf("db error marking invoice %s overdue notified: %w", invoiceID.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// MarkInvoiceSent sets the Sent flag once the invoice email has gone out.
func (s *billingService) MarkInvoiceSent(ctx context.Context, invoiceID utils.SixID) error {
	result, err := s.db.Collection(invoicesCollection).UpdateOne(ctx,
		bson.M{"_id": invoiceID},
		bson.M{"$set": bson.M{"sent": true}},
	)
	if err != nil {
		return fmt.Errorf("db error marking invoice %s sent: %w", invoiceID.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// DowngradeExpiredPremiums reverts every premium user whose paid-up period has
// lapsed back to the free tier. Called from the background scheduler.
func (s *billingService) DowngradeExpiredPremiums(ctx context.Context) (int64, error) {
	result, err := s.db.Collection(usersCollection).UpdateMany(ctx,
		bson.M{
			"role":          models.RolePremium,
			"deleted":       false,
			"premium_until": bson.M{"$lt": time.Now().UTC()},
		},
		bson.M{
			"$set":   bson.M{"role": models.RoleUser, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"premium_until": ""},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("db error downgrading expired premium users: %w", err)
	}
	if result.ModifiedCount > 0 {
		log.Printf("Downgraded %d expired premium users to free tier.", result.ModifiedCount)
	}
	return result.ModifiedCount, nil
}
