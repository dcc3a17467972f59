package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShepherdHQ/shepherd-backend/types"
	"github.com/google/uuid"
)

// PublishDomainEvent is the helper write paths call after a successful
// mutation. It wraps a typed payload in the standard event envelope and
// publishes it. The caller's write has already committed by the time this
// runs; a publish failure is the caller's to log, never to roll back on.
func PublishDomainEvent(
	ctx context.Context,
	publisher types.EventPublisher,
	eventType types.EventType,
	tenantID, conversationID, userID string,
	payload interface{},
	source string,
) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	event := types.Event{
		BaseEvent: types.BaseEvent{
			ID:             uuid.New().String(),
			Type:           eventType,
			TenantID:       tenantID,
			ConversationID: conversationID,
			UserID:         userID,
			Timestamp:      time.Now(),
			Version:        1,
		},
		Metadata: types.EventMetadata{
			Source: source,
		},
		Payload: data,
	}

	if err := publisher.Publish(ctx, tenantID, event); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	return nil
}
