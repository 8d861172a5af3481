package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bycarket/api/internal/chat"
	"bycarket/api/internal/db"
	"bycarket/api/internal/models"
	"bycarket/api/internal/utils"
)

// IChatService defines the interface for the AI assistant conversations.
type IChatService interface {
	SendMessage(ctx context.Context, userID utils.SixID, conversationID *utils.SixID, content string) (*models.Conversation, error)
	FindConversationByID(ctx context.Context, conversationID, userID utils.SixID) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID utils.SixID) ([]models.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID, userID utils.SixID) error
}

const conversationsCollection = "conversations"

// The assistant is scoped to marketplace questions.
const assistantSystemPrompt = "You are a helpful assistant for a vehicle marketplace. " +
	"Help users compare vehicles, understand listings and decide what to buy or how to describe what they are selling. " +
	"Keep answers short and practical."

const maxChatMessageLength = 4000
const maxConversationTurns = 50

// chatService implements IChatService.
type chatService struct {
	db     *mongo.Database
	client chat.ICompletionClient
}

// NewChatService creates a new ChatService.
func NewChatService(db *mongo.Database, client chat.ICompletionClient) IChatService {
	return &chatService{db: db, client: client}
}

// SendMessage appends the user's message to the conversation (creating one if
// conversationID is nil), gets the assistant reply and persists both turns.
func (s *chatService) SendMessage(ctx context.Context, userID utils.SixID, conversationID *utils.SixID, content string) (*models.Conversation, error) {
	if content == "" {
		return nil, fmt.Errorf("message must not be empty")
	}
	if len(content) > maxChatMessageLength {
		return nil, fmt.Errorf("message exceeds %d characters", maxChatMessageLength)
	}

	now := time.Now().UTC()

	var conversation *models.Conversation
	if conversationID == nil {
		title := content
		if len(title) > 60 {
			title = title[:60]
		}
		conversation = &models.Conversation{
			UserID:    userID,
			Title:     title,
			Messages:  []models.ChatMessage{},
			CreatedAt: now,
			UpdatedAt: now,
			Deleted:   false,
		}
	} else {
		existing, err := s.FindConversationByID(ctx, *conversationID, userID)
		if err != nil {
			return nil, err
		}
		if len(existing.Messages) >= maxConversationTurns*2 {
			return nil, fmt.Errorf("conversation is full; start a new one")
		}
		conversation = existing
	}

	conversation.Messages = append(conversation.Messages, models.ChatMessage{
		Role:      models.ChatRoleUser,
		Content:   content,
		CreatedAt: now,
	})

	// System prompt goes to the upstream API only; it is not persisted.
	upstream := make([]models.ChatMessage, 0, len(conversation.Messages)+1)
	upstream = append(upstream, models.ChatMessage{Role: models.ChatRoleSystem, Content: assistantSystemPrompt})
	upstream = append(upstream, conversation.Messages...)

	reply, err := s.client.Complete(ctx, upstream)
	if err != nil {
		return nil, fmt.Errorf("assistant unavailable: %w", err)
	}

	conversation.Messages = append(conversation.Messages, models.ChatMessage{
		Role:      models.ChatRoleAssistant,
		Content:   reply,
		CreatedAt: time.Now().UTC(),
	})
	conversation.UpdatedAt = time.Now().UTC()

	if conversationID == nil {
		doc, err := db.InsertOne(ctx, s.db.Collection(conversationsCollection), conversation)
		if err != nil {
			return nil, fmt.Errorf("failed to insert conversation: %w", err)
		}
		return doc.(*models.Conversation), nil
	}

	result, err := s.db.Collection(conversationsCollection).UpdateOne(ctx,
		bson.M{"_id": conversation.ID, "user_id": userID, "deleted": false},
		bson.M{"$set": bson.M{"messages": conversation.Messages, "updated_at": conversation.UpdatedAt}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation %s: %w", conversation.ID.String(), err)
	}
	if result.MatchedCount == 0 {
		return nil, mongo.ErrNoDocuments
	}
	return conversation, nil
}

// FindConversationByID finds a conversation owned by the user.
func (s *chatService) FindConversationByID(ctx context.Context, conversationID, userID utils.SixID) (*models.Conversation, error) {
	var conversation models.Conversation
	filter := bson.M{"_id": conversationID, "user_id": userID, "deleted": false}
	err := s.db.Collection(conversationsCollection).FindOne(ctx, filter).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding conversation %s: %w", conversationID.String(), err)
	}
	return &conversation, nil
}

// ListConversations returns the user's conversations, most recently active
// first, without message bodies.
func (s *chatService) ListConversations(ctx context.Context, userID utils.SixID) ([]models.Conversation, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetProjection(bson.M{"messages": 0})
	cursor, err := s.db.Collection(conversationsCollection).Find(ctx, bson.M{"user_id": userID, "deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations for user %s: %w", userID.String(), err)
	}
	defer cursor.Close(ctx)

	var conversations []models.Conversation
	if err = cursor.All(ctx, &conversations); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return conversations, nil
}

// DeleteConversation soft deletes a conversation owned by the user.
func (s *chatService) DeleteConversation(ctx context.Context, conversationID, userID utils.SixID) error {
	result, err := s.db.Collection(conversationsCollection).UpdateOne(ctx,
		bson.M{"_id": conversationID, "user_id": userID, "deleted": false},
		bson.M{"$set": bson.M{"deleted": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("db error deleting conversation %s: %w", conversationID.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
