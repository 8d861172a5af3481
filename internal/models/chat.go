package models

import (
	"time"

	"bycarket/api/internal/utils"
)

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleSystem    ChatRole = "system"
)

// ChatMessage is a single turn in an assistant conversation.
type ChatMessage struct {
	Role      ChatRole  `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Conversation is a persisted AI assistant chat transcript owned by a user.
type Conversation struct {
	Base      `bson:",inline"`
	UserID    utils.SixID   `bson:"user_id" json:"user_id"`
	Title     string        `bson:"title" json:"title"`
	Messages  []ChatMessage `bson:"messages" json:"messages"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updated_at"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
	Deleted   bool          `bson:"deleted" json:"-"`
}
