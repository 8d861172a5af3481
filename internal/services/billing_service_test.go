package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"bycarket/api/internal/config"
	"bycarket/api/internal/models"
	"bycarket/api/internal/utils"
)

func setupTestDBBilling(t *testing.T, dbName string) (*mongo.Database, IBillingService, IUserService) {
	db := utils.SetupTestDB(t, dbName, "invoices", "users", "posts", "vehicles")
	cfg := &config.Config{
		PremiumRate:                9.99,
		PremiumPeriodDays:          30,
		BillingCurrency:            "USD",
		InvoicePaymentWaitTimeDays: 14,
	}
	userSvc := NewUserService(db, cfg)
	return db, NewBillingService(db, cfg, nil, userSvc), userSvc
}

func TestBillingService_GenerateAndPayInvoice(t *testing.T) {
	_, svc, userSvc := setupTestDBBilling(t, "testdb_billing_service_pay")
	ctx := context.Background()

	user, err := userSvc.Register(ctx, "Subscriber", "subscriber@example.com", "correct-horse-battery")
	require.NoError(t, err)

	invoice, err := svc.GeneratePremiumInvoice(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 9.99, invoice.Total)
	assert.Equal(t, "USD", invoice.CurrencyCode)
	assert.NotEmpty(t, invoice.InvoiceNumber)
	assert.Nil(t, invoice.PaidAt)
	require.Len(t, invoice.Items, 1)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 30), invoice.Items[0].PeriodEnd, time.Minute)

	// Paying flips the invoice and activates premium.
	paid, err := svc.MarkInvoicePaid(ctx, invoice.ID)
	require.NoError(t, err)
	assert.NotNil(t, paid.PaidAt)

	upgraded, err := userSvc.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RolePremium, upgraded.Role)
	require.NotNil(t, upgraded.PremiumUntil)
	assert.WithinDuration(t, invoice.Items[0].PeriodEnd, *upgraded.PremiumUntil, time.Second)

	// Paying twice fails.
	_, err = svc.MarkInvoicePaid(ctx, invoice.ID)
	assert.Error(t, err)
}

func TestBillingService_RenewalExtendsFromExpiry(t *testing.T) {
	_, svc, userSvc := setupTestDBBilling(t, "testdb_billing_service_renewal")
	ctx := context.Background()

	user, err := userSvc.Register(ctx, "Renewer", "renewer@example.com", "correct-horse-battery")
	require.NoError(t, err)

	first, err := svc.GeneratePremiumInvoice(ctx, user.ID)
	require.NoError(t, err)
	_, err = svc.MarkInvoicePaid(ctx, first.ID)
	require.NoError(t, err)

	// The second period starts where the first one ends, not at payment time.
	second, err := svc.GeneratePremiumInvoice(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.WithinDuration(t, first.Items[0].PeriodEnd, second.Items[0].PeriodStart, time.Second)

	_, err = svc.MarkInvoicePaid(ctx, second.ID)
	require.NoError(t, err)

	renewed, err := userSvc.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, renewed.PremiumUntil)
	assert.WithinDuration(t, second.Items[0].PeriodEnd, *renewed.PremiumUntil, time.Second)
}

func TestBillingService_AdminCannotSubscribe(t *testing.T) {
	db, svc, _ := setupTestDBBilling(t, "testdb_billing_service_admin")
	ctx := context.Background()

	adminID := createTestUser(t, db, models.RoleAdmin)
	_, err := svc.GeneratePremiumInvoice(ctx, adminID)
	assert.Error(t, err)
}

func TestBillingService_FindInvoicesByUser(t *testing.T) {
	_, svc, userSvc := setupTestDBBilling(t, "testdb_billing_service_list")
	ctx := context.Background()

	user, err := userSvc.Register(ctx, "Lister", "lister@example.com", "correct-horse-battery")
	require.NoError(t, err)

	_, err = svc.GeneratePremiumInvoice(ctx, user.ID)
	require.NoError(t, err)
	_, err = svc.GeneratePremiumInvoice(ctx, user.ID)
	require.NoError(t, err)

	invoices, err := svc.FindInvoicesByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, invoices, 2)

	other, err := svc.FindInvoicesByUser(ctx, utils.NewSixID())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestBillingService_OverdueFlow(t *testing.T) {
	db, svc, userSvc := setupTestDBBilling(t, "testdb_billing_service_overdue")
	ctx := context.Background()

	user, err := userSvc.Register(ctx, "Latecomer", "latecomer@example.com", "correct-horse-battery")
	require.NoError(t, err)

	invoice, err := svc.GeneratePremiumInvoice(ctx, user.ID)
	require.NoError(t, err)

	// Not overdue yet.
	overdue, err := svc.FindOverdueInvoices(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	// Backdate the due date.
	_, err = db.Collection("invoices").UpdateOne(ctx,
		bson.M{"_id": invoice.ID},
		bson.M{"$set": bson.M{"due": time.Now().UTC().Add(-48 * time.Hour)}})
	require.NoError(t, err)

	overdue, err = svc.FindOverdueInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, invoice.ID, overdue[0].ID)

	// Once notified it drops out of the sweep.
	require.NoError(t, svc.MarkInvoiceOverdueNotified(ctx, invoice.ID))
	overdue, err = svc.FindOverdueInvoices(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	// Paid invoices are never overdue.
	_, err = svc.MarkInvoicePaid(ctx, invoice.ID)
	require.NoError(t, err)
}

func TestBillingService_DowngradeExpiredPremiums(t *testing.T) {
	_, svc, userSvc := setupTestDBBilling(t, "testdb_billing_service_downgrade")
	ctx := context.Background()

	expired, err := userSvc.Register(ctx, "Expired", "expired@example.com", "correct-horse-battery")
	require.NoError(t, err)
	current, err := userSvc.Register(ctx, "Current", "current@example.com", "correct-horse-battery")
	require.NoError(t, err)

	require.NoError(t, userSvc.UpgradeToPremium(ctx, expired.ID, time.Now().UTC().Add(-time.Hour)))
	require.NoError(t, userSvc.UpgradeToPremium(ctx, current.ID, time.Now().UTC().Add(720*time.Hour)))

	count, err := svc.DowngradeExpiredPremiums(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	u, err := userSvc.FindByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role)

	u, err = userSvc.FindByID(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RolePremium, u.Role)
}
