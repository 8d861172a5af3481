package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"

	"bycarket/api/internal/services"
	"bycarket/api/internal/tasks"
	"bycarket/api/internal/utils"
)

// RestBillingHandler handles premium subscription and invoice endpoints.
type RestBillingHandler struct {
	billingService services.IBillingService
	userService    services.IUserService
	taskClient     *asynq.Client
}

// NewRestBillingHandler creates a new RestBillingHandler.
func NewRestBillingHandler(billingService services.IBillingService, userService services.IUserService, taskClient *asynq.Client) *RestBillingHandler {
	return &RestBillingHandler{
		billingService: billingService,
		userService:    userService,
		taskClient:     taskClient,
	}
}

// SubscribePremium handles POST /v1/me/premium. It issues an invoice for one
// subscription period; premium activates once the invoice is paid.
func (h *RestBillingHandler) SubscribePremium(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	invoice, err := h.billingService.GeneratePremiumInvoice(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.taskClient != nil {
		user, uerr := h.userService.FindByID(c.Request.Context(), userID)
		if uerr == nil {
			payload := tasks.EmailTaskPayload{
				To:         user.Email,
				TemplateID: "invoice_issued",
				InvoiceID:  invoice.ID.String(),
				Data: map[string]interface{}{
					"user_name":      user.Name,
					"invoice_number": invoice.InvoiceNumber,
					"total":          invoice.Total,
					"currency":       invoice.CurrencyCode,
					"due":            invoice.DueAt.Format("2 Jan 2006"),
				},
			}
			if err := tasks.EnqueueEmail(c.Request.Context(), h.taskClient, payload); err != nil {
				log.Printf("Warning: failed to enqueue invoice email for %s: %v", user.Email, err)
			}
		}
	}

	c.JSON(http.StatusCreated, invoice)
}

// GetMyInvoices handles GET /v1/me/invoices.
func (h *RestBillingHandler) GetMyInvoices(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	invoices, err := h.billingService.FindInvoicesByUser(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invoices"})
		return
	}
	c.JSON(http.StatusOK, invoices)
}

// MarkInvoicePaid handles POST /v1/admin/invoices/:id/paid. Payment capture
// happens out of band; this records it and activates the premium role.
func (h *RestBillingHandler) MarkInvoicePaid(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}
	invoiceID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID format"})
		return
	}

	invoice, err := h.billingService.MarkInvoicePaid(c.Request.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	if h.taskClient != nil && len(invoice.Items) > 0 {
		user, uerr := h.userService.FindByID(c.Request.Context(), invoice.UserID)
		if uerr == nil {
			payload := tasks.EmailTaskPayload{
				To:         user.Email,
				TemplateID: "premium_activated",
				Data: map[string]interface{}{
					"user_name": user.Name,
					"until":     invoice.Items[len(invoice.Items)-1].PeriodEnd.Format("2 Jan 2006"),
				},
			}
			if err := tasks.EnqueueEmail(c.Request.Context(), h.taskClient, payload); err != nil {
				log.Printf("Warning: failed to enqueue premium activation email for %s: %v", user.Email, err)
			}
		}
	}

	c.JSON(http.StatusOK, invoice)
}
