package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ShepherdHQ/shepherd-backend/internal/store"
	"github.com/ShepherdHQ/shepherd-backend/logger"
	"github.com/ShepherdHQ/shepherd-backend/types"
	"go.uber.org/zap"
)

// fallbackSenderName is used when the sender's profile cannot be resolved.
const fallbackSenderName = "A community member"

// NotificationTrigger reacts to domain events by resolving the audience,
// rendering one push message per recipient, and handing delivery to the
// dispatcher through the worker pool. It is stateless per invocation and
// strictly best-effort: nothing it does can fail the write that produced the
// event.
type NotificationTrigger struct {
	conversations store.ConversationStore
	profiles      store.ProfileStore
	dispatcher    PushDispatcher
	pool          *WorkerPool
	log           *zap.SugaredLogger
}

var _ types.EventHandler = (*NotificationTrigger)(nil)

func NewNotificationTrigger(
	conversations store.ConversationStore,
	profiles store.ProfileStore,
	dispatcher PushDispatcher,
	pool *WorkerPool,
) *NotificationTrigger {
	return &NotificationTrigger{
		conversations: conversations,
		profiles:      profiles,
		dispatcher:    dispatcher,
		pool:          pool,
		log:           logger.GetLogger().Named("notification-trigger"),
	}
}

// SupportedEvents lists the event types that produce push notifications.
func (t *NotificationTrigger) SupportedEvents() []types.EventType {
	return []types.EventType{
		types.EventTypeMessageCreated,
		types.EventTypePrayerAnswered,
		types.EventTypeJournalStatusUpdated,
	}
}

// HandleEvent enqueues a dispatch job for the event. It always returns nil:
// a full queue or a malformed payload is logged and dropped, never propagated
// back to the publishing write path.
func (t *NotificationTrigger) HandleEvent(ctx context.Context, event types.Event) error {
	t.OnEvent(ctx, event)
	return nil
}

// OnEvent is the pipeline entry point. The heavy work (store reads, gateway
// calls) runs on the worker pool so the caller returns immediately.
func (t *NotificationTrigger) OnEvent(ctx context.Context, event types.Event) {
	domainEvent, err := t.toDomainEvent(event)
	if err != nil {
		t.log.Warnw("Skipping event with unusable payload",
			"eventId", event.ID,
			"eventType", event.Type,
			"error", err)
		return
	}
	if domainEvent == nil {
		// Event type carries no notification semantics.
		return
	}

	submitted := t.pool.Submit(Job{
		Name: fmt.Sprintf("dispatch:%s:%s", event.Type, event.ID),
		Execute: func(jobCtx context.Context) error {
			t.process(jobCtx, domainEvent)
			return nil
		},
	})
	if !submitted {
		t.log.Warnw("Dispatch job dropped, outbox queue full",
			"eventId", event.ID,
			"tenantId", event.TenantID)
	}
}

// toDomainEvent flattens a typed event payload into the pipeline's input
// shape. Returns nil for event types the pipeline does not notify on.
func (t *NotificationTrigger) toDomainEvent(event types.Event) (*types.DomainEvent, error) {
	domainEvent := &types.DomainEvent{
		ID:             event.ID,
		TenantID:       event.TenantID,
		ConversationID: event.ConversationID,
		SenderID:       event.UserID,
		ContentKind:    types.ContentKindText,
		CreatedAt:      event.Timestamp,
	}

	switch event.Type {
	case types.EventTypeMessageCreated:
		var payload types.MessageCreatedEvent
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode message payload: %w", err)
		}
		domainEvent.Content = payload.Text
		domainEvent.ContentKind = payload.ContentKind
		domainEvent.ThreadID = payload.ThreadID
		domainEvent.MentionedUserIDs = payload.MentionedUserIDs

	case types.EventTypePrayerAnswered:
		var payload types.PrayerAnsweredEvent
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode prayer payload: %w", err)
		}
		domainEvent.Content = fmt.Sprintf("Prayer answered: %s", payload.Title)

	case types.EventTypeJournalStatusUpdated:
		var payload types.JournalStatusUpdatedEvent
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode journal payload: %w", err)
		}
		domainEvent.Content = fmt.Sprintf("Journal entry moved to %s", payload.NewStatus)

	default:
		return nil, nil
	}

	return domainEvent, nil
}

// process runs on a pool worker: load the conversation read model, resolve
// the audience, render, dispatch, and log the result. Every failure ends
// here; none propagates.
func (t *NotificationTrigger) process(ctx context.Context, event *types.DomainEvent) {
	conversation, err := t.conversations.GetConversation(ctx, event.TenantID, event.ConversationID)
	if err != nil {
		// Unknown conversation means the event is invalid, not that there is
		// nobody to notify. Logged loudly, never retried.
		t.log.Errorw("Failed to load conversation for event",
			"eventId", event.ID,
			"tenantId", event.TenantID,
			"conversationId", event.ConversationID,
			"error", err)
		return
	}

	members, err := t.conversations.ListMembers(ctx, event.TenantID, event.ConversationID)
	if err != nil {
		t.log.Errorw("Failed to load conversation members",
			"eventId", event.ID,
			"conversationId", event.ConversationID,
			"error", err)
		return
	}

	var exclusions []string
	if conversation.Type == types.ConversationTypeEvent {
		exclusions, err = t.conversations.ListEventChatExclusions(ctx, event.TenantID, event.ConversationID)
		if err != nil {
			t.log.Errorw("Failed to load event chat exclusions",
				"eventId", event.ID,
				"conversationId", event.ConversationID,
				"error", err)
			return
		}
	}

	audience, err := ResolveRecipients(event, conversation, members, exclusions)
	if err != nil {
		t.log.Errorw("Recipient resolution failed",
			"eventId", event.ID,
			"conversationId", event.ConversationID,
			"error", err)
		return
	}
	if audience.Empty() {
		t.log.Debugw("No recipients for event, skipping dispatch",
			"eventId", event.ID,
			"conversationId", event.ConversationID)
		return
	}

	messages := t.render(ctx, event, audience)

	result, err := t.dispatcher.Dispatch(ctx, event.TenantID, messages)
	if err != nil {
		t.log.Warnw("Dispatch finished with error",
			"eventId", event.ID,
			"tenantId", event.TenantID,
			"error", err)
	}
	if result != nil {
		t.log.Infow("Notification dispatch result",
			"eventId", event.ID,
			"tenantId", event.TenantID,
			"sent", result.Sent,
			"failed", result.Failed,
			"pruned", result.PrunedTokens)
	}
}

// render builds exactly one push message per recipient. Mentioned users get
// the high-priority mention rendering; everyone else gets the regular one.
func (t *NotificationTrigger) render(ctx context.Context, event *types.DomainEvent, audience Audience) []types.PushMessage {
	senderName := t.senderDisplayName(ctx, event.TenantID, event.SenderID)
	body := Preview(event)
	data := map[string]string{
		"eventId":        event.ID,
		"conversationId": event.ConversationID,
	}
	if event.ThreadID != "" {
		data["threadId"] = event.ThreadID
	}

	messages := make([]types.PushMessage, 0, len(audience.Mention)+len(audience.Regular))
	for _, userID := range audience.Mention {
		messages = append(messages, types.PushMessage{
			RecipientID: userID,
			Title:       fmt.Sprintf("Mentioned by %s", senderName),
			Body:        body,
			Priority:    types.PushPriorityHigh,
			Data:        data,
		})
	}
	for _, userID := range audience.Regular {
		messages = append(messages, types.PushMessage{
			RecipientID: userID,
			Title:       senderName,
			Body:        body,
			Priority:    types.PushPriorityNormal,
			Data:        data,
		})
	}
	return messages
}

func (t *NotificationTrigger) senderDisplayName(ctx context.Context, tenantID, senderID string) string {
	profile, err := t.profiles.GetProfile(ctx, tenantID, senderID)
	if err != nil || profile == nil || profile.DisplayName == "" {
		if err != nil {
			t.log.Debugw("Falling back to generic sender name",
				"tenantId", tenantID,
				"senderId", senderID,
				"error", err)
		}
		return fallbackSenderName
	}
	return profile.DisplayName
}
