package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"bycarket/api/internal/config"
	"bycarket/api/internal/db"
	"bycarket/api/internal/models"
	"bycarket/api/internal/utils"
)

// IEnquiryService defines the interface for enquiry operations.
type IEnquiryService interface {
	CreateEnquiry(ctx context.Context, postID utils.SixID, userID *utils.SixID, userEmail, message string, offer *models.Offer) (*models.PostEnquiry, error)
	FindEnquiriesByPost(ctx context.Context, postID utils.SixID) ([]models.PostEnquiry, error)
	MarkEnquirySent(ctx context.Context, enquiryID utils.SixID) error
}

const enquiriesCollection = "post_enquiries"

// enquiryService implements IEnquiryService.
type enquiryService struct {
	db          *mongo.Database
	cfg         *config.Config
	postService IPostService // Enquiries are only accepted on visible active posts
}

// NewEnquiryService creates a new EnquiryService.
func NewEnquiryService(db *mongo.Database, cfg *config.Config, postService IPostService) IEnquiryService {
	return &enquiryService{db: db, cfg: cfg, postService: postService}
}

// CreateEnquiry creates a new enquiry document against an active post.
func (s *enquiryService) CreateEnquiry(ctx context.Context, postID utils.SixID, userID *utils.SixID, userEmail, message string, offer *models.Offer) (*models.PostEnquiry, error) {
	if message == "" && offer == nil {
		return nil, fmt.Errorf("enquiry must have a message or an offer")
	}
	if userEmail == "" {
		return nil, fmt.Errorf("enquiry must have a reply-to email")
	}
	if offer != nil && offer.Value <= 0 {
		return nil, fmt.Errorf("offer amount must be positive")
	}

	// An anonymous viewer only sees active posts, so this doubles as the
	// visibility check.
	post, err := s.postService.FindPostByID(ctx, postID, models.Viewer{Role: models.RoleUser})
	if err != nil {
		return nil, fmt.Errorf("post %s is not available for enquiries: %w", postID.String(), err)
	}
	if post.Status != models.PostStatusActive {
		return nil, fmt.Errorf("post %s is not active", postID.String())
	}

	enquiry := &models.PostEnquiry{
		PostID:    postID,
		UserEmail: userEmail,
		Message:   message,
		Offer:     offer,
		CreatedAt: time.Now().UTC(),
		Sent:      false, // Email to the seller is handled by a background task
		Deleted:   false,
	}
	if userID != nil {
		enquiry.UserID = *userID
	}

	doc, err := db.InsertOne(ctx, s.db.Collection(enquiriesCollection), enquiry)
	if err != nil {
		return nil, err
	}
	return doc.(*models.PostEnquiry), nil
}

// FindEnquiriesByPost returns all enquiries for a post, newest first.
func (s *enquiryService) FindEnquiriesByPost(ctx context.Context, postID utils.SixID) ([]models.PostEnquiry, error) {
	cursor, err := s.db.Collection(enquiriesCollection).Find(ctx, bson.M{"post_id": postID, "deleted": false})
	if err != nil {
		return nil, fmt.Errorf("failed to query enquiries for post %s: %w", postID.String(), err)
	}
	defer cursor.Close(ctx)

	var enquiries []models.PostEnquiry
	if err = cursor.All(ctx, &enquiries); err != nil {
		return nil, fmt.Errorf("failed to decode enquiries: %w", err)
	}
	return enquiries, nil
}

// MarkEnquirySent sets the Sent flag once the seller notification email has
// been dispatched.
func (s *enquiryService) MarkEnquirySent(ctx context.Context, enquiryID utils.SixID) error {
	result, err := s.db.Collection(enquiriesCollection).UpdateOne(ctx,
		bson.M{"_id": enquiryID, "deleted": false},
		bson.M{"$set": bson.M{"sent": true}},
	)
	if err != nil {
		return fmt.Errorf("db error marking enquiry %s sent: %w", enquiryID.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
