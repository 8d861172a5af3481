package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Register PNG decoder for image.Decode
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"

	"bycarket/api/internal/config"
	"bycarket/api/internal/email"
	"bycarket/api/internal/models"
	"bycarket/api/internal/services"
	"bycarket/api/internal/storage"
	"bycarket/api/internal/utils"
)

// Task types.
const (
	TypeEmailDelivery       = "email:deliver"
	TypeImageProcess        = "image:process"
	TypeInvoiceCheckOverdue = "billing:invoice:check_overdue"
	TypePremiumExpiry       = "billing:premium:expire"
	TypeModerationReminder  = "moderation:pending:remind"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// EnqueueEmail is a convenience wrapper for enqueueing an email delivery task.
func EnqueueEmail(ctx context.Context, client *asynq.Client, payload EmailTaskPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}
	_, err = client.EnqueueContext(ctx, asynq.NewTask(TypeEmailDelivery, data))
	return err
}

// EnqueueImageProcess schedules normalization of a freshly uploaded image.
func EnqueueImageProcess(ctx context.Context, client *asynq.Client, payload ImageTaskPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal image payload: %w", err)
	}
	_, err = client.EnqueueContext(ctx, asynq.NewTask(TypeImageProcess, data), asynq.Queue("images"))
	return err
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg                  *config.Config
	emailSender          email.Sender
	storageService       storage.IS3Storage
	postService          services.IPostService
	vehicleService       services.IVehicleService
	billingService       services.IBillingService
	configService        services.IConfigService
	userService          services.IUserService
	enquiryService       services.IEnquiryService
	emailTemplateService services.IEmailTemplateService
	taskClient           *asynq.Client
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	storageService storage.IS3Storage,
	postService services.IPostService,
	vehicleService services.IVehicleService,
	billingService services.IBillingService,
	configService services.IConfigService,
	userService services.IUserService,
	enquiryService services.IEnquiryService,
	emailTemplateService services.IEmailTemplateService,
	taskClient *asynq.Client,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:                  cfg,
		emailSender:          emailSender,
		storageService:       storageService,
		postService:          postService,
		vehicleService:       vehicleService,
		billingService:       billingService,
		configService:        configService,
		userService:          userService,
		enquiryService:       enquiryService,
		emailTemplateService: emailTemplateService,
		taskClient:           taskClient,
	}
}

// SetupServer configures an Asynq server and its handler mux. The caller runs
// the server; returns nil, nil when no worker role was requested.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isImageWorker bool, isBgWorker bool) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
				"images":   5, // Separate queue for images
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	if isBgWorker {
		mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
		mux.HandleFunc(TypeInvoiceCheckOverdue, processor.HandleInvoiceCheckOverdueTask)
		mux.HandleFunc(TypePremiumExpiry, processor.HandlePremiumExpiryTask)
		mux.HandleFunc(TypeModerationReminder, processor.HandleModerationReminderTask)
		log.Println("Registered background task handlers.")
	}

	if isImageWorker {
		mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)
		log.Println("Registered image processing task handlers.")
	}

	if !isBgWorker && !isImageWorker {
		log.Println("Running in API mode, no task server started.")
		return nil, nil
	}

	return srv, mux
}

// --- Task Handlers ---

// EmailTaskPayload carries a templated email to deliver. EnquiryID/InvoiceID
// are optional back-references so the handler can flip the Sent flag once
// delivery succeeds.
type EmailTaskPayload struct {
	To         string                 `json:"to"`
	TemplateID string                 `json:"template_id"`
	Data       map[string]interface{} `json:"data"`
	EnquiryID  string                 `json:"enquiry_id,omitempty"`
	InvoiceID  string                 `json:"invoice_id,omitempty"`
}

func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("Sending email task: To=%s, Template=%s", payload.To, payload.TemplateID)

	if payload.Data == nil {
		payload.Data = map[string]interface{}{}
	}
	if _, ok := payload.Data["app_name"]; !ok {
		payload.Data["app_name"] = p.cfg.AppName
	}

	subject, body, err := p.emailTemplateService.Render(ctx, payload.TemplateID, payload.Data)
	if err != nil {
		log.Printf("Error rendering email template %s: %v", payload.TemplateID, err)
		// Non-retryable if template missing or broken
		return fmt.Errorf("email template render failed: %w", asynq.SkipRetry)
	}

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s for email to %s", fromAddress, payload.To)
	}

	// Plain-text message; MIME attachments are not needed here.
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", payload.To))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{payload.To}, subject, []byte(sb.String())); err != nil {
		log.Printf("Email sending failed (will retry): %v", err)
		return err
	}

	if payload.EnquiryID != "" {
		if enquiryID, err := utils.ParseSixID(payload.EnquiryID); err == nil {
			if err := p.enquiryService.MarkEnquirySent(ctx, enquiryID); err != nil {
				log.Printf("Warning: failed to mark enquiry %s sent: %v", payload.EnquiryID, err)
			}
		}
	}
	if payload.InvoiceID != "" {
		if invoiceID, err := utils.ParseSixID(payload.InvoiceID); err == nil {
			if err := p.billingService.MarkInvoiceSent(ctx, invoiceID); err != nil {
				log.Printf("Warning: failed to mark invoice %s sent: %v", payload.InvoiceID, err)
			}
		}
	}

	log.Printf("Email task processed successfully: To=%s, Template=%s", payload.To, payload.TemplateID)
	return nil
}

// ImageTaskPayload identifies a raw upload to normalize.
type ImageTaskPayload struct {
	S3Key     string `json:"s3_key"`
	VehicleID string `json:"vehicle_id"`
}

func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}

	vehicleID, err := utils.ParseSixID(payload.VehicleID)
	if err != nil {
		log.Printf("Invalid VehicleID in image task payload: %s", payload.VehicleID)
		return fmt.Errorf("invalid vehicle ID in payload: %w", asynq.SkipRetry)
	}

	log.Printf("Processing image task: S3Key=%s, VehicleID=%s", payload.S3Key, payload.VehicleID)

	imgData, err := p.storageService.DownloadObject(ctx, payload.S3Key)
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") {
			log.Printf("S3 object %s not found, likely upload failed or key incorrect.", payload.S3Key)
			return fmt.Errorf("s3 object not found: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to download image from S3: %w", err)
	}

	// Reject oversized uploads before spending time decoding
	maxSizeBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if int64(len(imgData)) > maxSizeBytes {
		log.Printf("Image %s exceeds max size (%d > %d bytes). Deleting.", payload.S3Key, len(imgData), maxSizeBytes)
		if err := p.storageService.DeleteObject(ctx, payload.S3Key); err != nil {
			log.Printf("Warning: failed to delete oversized object %s: %v", payload.S3Key, err)
		}
		return fmt.Errorf("image exceeds max size: %w", asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		log.Printf("Error decoding image for key %s: %v", payload.S3Key, err)
		if err := p.storageService.DeleteObject(ctx, payload.S3Key); err != nil {
			log.Printf("Warning: failed to delete invalid object %s: %v", payload.S3Key, err)
		}
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}
	log.Printf("Decoded image %s, format: %s, size: %dx%d", payload.S3Key, format, img.Bounds().Dx(), img.Bounds().Dy())

	maxDim := uint(p.cfg.ImageMaxDimension)
	needsResize := uint(img.Bounds().Dx()) > maxDim || uint(img.Bounds().Dy()) > maxDim

	processedImageData := imgData
	contentType := "image/" + format

	if needsResize {
		resizedImg := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, resizedImg, &jpeg.Options{Quality: 85}); err != nil {
			log.Printf("Error encoding resized image %s: %v", payload.S3Key, err)
			return fmt.Errorf("failed to re-encode resized image: %w", err)
		}
		processedImageData = buf.Bytes()
		contentType = "image/jpeg"
		log.Printf("Resized image %s to %dx%d", payload.S3Key, resizedImg.Bounds().Dx(), resizedImg.Bounds().Dy())

		if int64(len(processedImageData)) > maxSizeBytes {
			log.Printf("Resized image %s still exceeds max size. Skipping.", payload.S3Key)
			return fmt.Errorf("resized image still exceeds max size: %w", asynq.SkipRetry)
		}
	}

	// Overwrite the raw upload with the processed version
	if err := p.storageService.UploadObject(ctx, payload.S3Key, contentType, processedImageData); err != nil {
		return fmt.Errorf("failed to upload processed image: %w", err)
	}

	if err := p.vehicleService.AddImageToVehicle(ctx, vehicleID, payload.S3Key); err != nil {
		log.Printf("Error adding image key %s to vehicle %s: %v", payload.S3Key, payload.VehicleID, err)
		return fmt.Errorf("failed to update vehicle with processed image: %w", err)
	}

	log.Printf("Image task processed successfully: Key=%s, VehicleID=%s", payload.S3Key, payload.VehicleID)
	return nil
}

// HandleInvoiceCheckOverdueTask finds unpaid invoices past their due date,
// notifies the user and flags the invoice so it is not emailed twice.
func (p *TaskProcessor) HandleInvoiceCheckOverdueTask(ctx context.Context, t *asynq.Task) error {
	log.Println("Starting overdue invoice check task...")

	invoices, err := p.billingService.FindOverdueInvoices(ctx)
	if err != nil {
		log.Printf("Error finding overdue invoices: %v", err)
		return err
	}

	notified := 0
	for _, invoice := range invoices {
		user, err := p.userService.FindByID(ctx, invoice.UserID)
		if err != nil {
			log.Printf("Error fetching user %s for overdue invoice %s: %v. Skipping.", invoice.UserID.String(), invoice.ID.String(), err)
			continue
		}

		payload := EmailTaskPayload{
			To:         user.Email,
			TemplateID: "invoice_overdue",
			Data: map[string]interface{}{
				"user_name":      user.Name,
				"invoice_number": invoice.InvoiceNumber,
				"due":            invoice.DueAt.Format("2 Jan 2006"),
			},
		}
		if err := EnqueueEmail(ctx, p.taskClient, payload); err != nil {
			log.Printf("Error enqueueing overdue email for invoice %s: %v", invoice.ID.String(), err)
			continue
		}

		if err := p.billingService.MarkInvoiceOverdueNotified(ctx, invoice.ID); err != nil {
			log.Printf("Error marking invoice %s overdue notified: %v", invoice.ID.String(), err)
			continue
		}
		notified++
	}

	log.Printf("Overdue invoice check finished. Notified %d users.", notified)
	return nil
}

// HandlePremiumExpiryTask downgrades premium users whose paid period lapsed.
func (p *TaskProcessor) HandlePremiumExpiryTask(ctx context.Context, t *asynq.Task) error {
	downgraded, err := p.billingService.DowngradeExpiredPremiums(ctx)
	if err != nil {
		return err
	}
	log.Printf("Premium expiry task finished. Downgraded %d users.", downgraded)
	return nil
}

// HandleModerationReminderTask emails the admin when posts are waiting for
// review.
func (p *TaskProcessor) HandleModerationReminderTask(ctx context.Context, t *asynq.Task) error {
	if p.cfg.AdminEmail == "" {
		log.Println("ADMIN_EMAIL not configured, skipping moderation reminder.")
		return nil
	}

	pending := models.PostStatusPending
	criteria := &models.FilterCriteria{Status: &pending, Page: 1, Limit: 1}
	page, err := p.postService.SearchPosts(ctx, criteria, models.Viewer{Role: models.RoleAdmin})
	if err != nil {
		log.Printf("Error counting pending posts: %v", err)
		return err
	}
	if page.Total == 0 {
		return nil
	}

	payload := EmailTaskPayload{
		To:         p.cfg.AdminEmail,
		TemplateID: "moderation_pending",
		Data:       map[string]interface{}{"count": page.Total},
	}
	if err := EnqueueEmail(ctx, p.taskClient, payload); err != nil {
		return fmt.Errorf("failed to enqueue moderation reminder: %w", err)
	}
	log.Printf("Moderation reminder enqueued (%d pending posts).", page.Total)
	return nil
}

// StartPeriodicTasks enqueues the recurring maintenance tasks on a ticker.
// Runs until the context is cancelled.
func StartPeriodicTasks(ctx context.Context, client *asynq.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	enqueue := func(taskType string) {
		if _, err := client.EnqueueContext(ctx, asynq.NewTask(taskType, nil), asynq.Queue("low")); err != nil {
			log.Printf("Error enqueueing periodic task %s: %v", taskType, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("Periodic task scheduler stopped.")
			return
		case <-ticker.C:
			enqueue(TypeInvoiceCheckOverdue)
			enqueue(TypePremiumExpiry)
			enqueue(TypeModerationReminder)
		}
	}
}
