package types

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ShepherdHQ/shepherd-backend/errors"
)

type EventType string

const (
	CategoryMessage = "MESSAGE"
	CategoryPrayer  = "PRAYER"
	CategoryJournal = "JOURNAL"
	CategoryMember  = "MEMBER"
)

const (
	// Message events
	EventTypeMessageCreated EventType = CategoryMessage + "_CREATED"
	EventTypeMessageDeleted EventType = CategoryMessage + "_DELETED"

	// Prayer card events
	EventTypePrayerAnswered EventType = CategoryPrayer + "_ANSWERED"

	// Pastoral journal events
	EventTypeJournalStatusUpdated EventType = CategoryJournal + "_STATUS_UPDATED"

	// Membership events
	EventTypeMemberAdded   EventType = CategoryMember + "_ADDED"
	EventTypeMemberRemoved EventType = CategoryMember + "_REMOVED"
)

// ContentKind distinguishes plain text from media attachments in an event body.
type ContentKind string

const (
	ContentKindText  ContentKind = "text"
	ContentKindMedia ContentKind = "media"
)

// JournalStatus is the workflow state of a pastoral journal entry.
type JournalStatus string

const (
	JournalStatusNew        JournalStatus = "new"
	JournalStatusInProgress JournalStatus = "in_progress"
	JournalStatusResolved   JournalStatus = "resolved"
)

// Base event interface
type BaseEvent struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	TenantID       string    `json:"tenantId"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Version        int       `json:"version"`
}

// EventMetadata for tracking and debugging
type EventMetadata struct {
	CorrelationID string `json:"correlationId,omitempty"`
	CausationID   string `json:"causationId,omitempty"`
	Source        string `json:"source"`
	// Origin identifies the publishing process instance. Consumers skip
	// events they published themselves, which were already handled locally.
	Origin string            `json:"origin,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Enhanced Event structure
type Event struct {
	BaseEvent
	Metadata EventMetadata   `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

// Validation method for events
func (e Event) Validate() error {
	if e.ID == "" {
		return errors.ValidationFailed("invalid event", "event ID is required")
	}
	if e.Type == "" {
		return errors.ValidationFailed("invalid event", "event type is required")
	}
	if e.TenantID == "" {
		return errors.ValidationFailed("invalid event", "tenant ID is required")
	}
	if e.ConversationID == "" {
		return errors.ValidationFailed("invalid event", "conversation ID is required")
	}
	if e.Timestamp.IsZero() {
		return errors.ValidationFailed("invalid event", "timestamp is required")
	}
	return nil
}

// EventPublisher with enhanced capabilities
type EventPublisher interface {
	Publish(ctx context.Context, tenantID string, event Event) error
	PublishBatch(ctx context.Context, tenantID string, events []Event) error
	Subscribe(ctx context.Context, tenantID string, subscriberID string, filters ...EventType) (<-chan Event, error)
	Unsubscribe(ctx context.Context, tenantID string, subscriberID string) error
}

// EventHandler for processing events
type EventHandler interface {
	HandleEvent(ctx context.Context, event Event) error
	SupportedEvents() []EventType
}

// MessageCreatedEvent is the payload for MESSAGE_CREATED.
type MessageCreatedEvent struct {
	MessageID        string      `json:"messageId"`
	ContentKind      ContentKind `json:"contentKind"`
	Text             string      `json:"text,omitempty"`
	ThreadID         string      `json:"threadId,omitempty"`
	MentionedUserIDs []string    `json:"mentionedUserIds,omitempty"`
}

// PrayerAnsweredEvent is the payload for PRAYER_ANSWERED.
type PrayerAnsweredEvent struct {
	PrayerCardID string `json:"prayerCardId"`
	Title        string `json:"title"`
}

// JournalStatusUpdatedEvent is the payload for JOURNAL_STATUS_UPDATED.
type JournalStatusUpdatedEvent struct {
	JournalID string        `json:"journalId"`
	OldStatus JournalStatus `json:"oldStatus"`
	NewStatus JournalStatus `json:"newStatus"`
}
