package types

import "time"

// DomainEvent is the normalized input the notification pipeline works on.
// Write paths publish typed payloads (MessageCreatedEvent, PrayerAnsweredEvent,
// JournalStatusUpdatedEvent); the trigger flattens them into this shape before
// resolving recipients. Immutable once constructed.
type DomainEvent struct {
	ID               string      `json:"id"`
	TenantID         string      `json:"tenantId"`
	ConversationID   string      `json:"conversationId"`
	SenderID         string      `json:"senderId"`
	Content          string      `json:"content"`
	ContentKind      ContentKind `json:"contentKind"`
	ThreadID         string      `json:"threadId,omitempty"`
	MentionedUserIDs []string    `json:"mentionedUserIds,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
}
