package types

import (
	"time"
)

// ConversationType distinguishes the kinds of conversations a community hosts.
type ConversationType string

const (
	ConversationTypeGroup  ConversationType = "group"
	ConversationTypeEvent  ConversationType = "event"
	ConversationTypeDirect ConversationType = "direct"
)

// Conversation represents a chat surface within a community: a small-group
// chat, an event chat, or a direct conversation.
type Conversation struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenantId"`
	Type      ConversationType `json:"type"`
	Name      string           `json:"name"`
	CreatedBy string           `json:"createdBy"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ConversationMember represents a user's membership in a conversation.
// A non-nil LeftAt marks a departed member; the row is kept for history.
type ConversationMember struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	UserID         string     `json:"userId"`
	JoinedAt       time.Time  `json:"joinedAt"`
	LeftAt         *time.Time `json:"leftAt,omitempty"`
}

// UserProfile is the tenant-scoped identity used when rendering notifications.
type UserProfile struct {
	UserID      string `json:"userId"`
	TenantID    string `json:"tenantId"`
	DisplayName string `json:"displayName"`
}
