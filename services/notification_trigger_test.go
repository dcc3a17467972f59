package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ShepherdHQ/shepherd-backend/config"
	"github.com/ShepherdHQ/shepherd-backend/internal/store"
	"github.com/ShepherdHQ/shepherd-backend/internal/store/mocks"
	"github.com/ShepherdHQ/shepherd-backend/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// capturingDispatcher records dispatch calls and signals arrival.
type capturingDispatcher struct {
	mu       sync.Mutex
	tenantID string
	messages []types.PushMessage
	calls    int
	done     chan struct{}
}

func newCapturingDispatcher() *capturingDispatcher {
	return &capturingDispatcher{done: make(chan struct{}, 10)}
}

func (d *capturingDispatcher) Dispatch(ctx context.Context, tenantID string, messages []types.PushMessage) (*types.DispatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.tenantID = tenantID
	d.messages = messages
	d.done <- struct{}{}
	return &types.DispatchResult{Sent: len(messages)}, nil
}

func (d *capturingDispatcher) snapshot() (int, string, []types.PushMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls, d.tenantID, d.messages
}

func messageEvent(t *testing.T, mentioned ...string) types.Event {
	t.Helper()
	payload, err := json.Marshal(types.MessageCreatedEvent{
		MessageID:        "msg-1",
		ContentKind:      types.ContentKindText,
		Text:             "Potluck moved to Friday",
		MentionedUserIDs: mentioned,
	})
	require.NoError(t, err)

	return types.Event{
		BaseEvent: types.BaseEvent{
			ID:             "evt-1",
			Type:           types.EventTypeMessageCreated,
			TenantID:       "tenant-1",
			ConversationID: "conv-1",
			UserID:         "sender",
			Timestamp:      time.Now(),
			Version:        1,
		},
		Metadata: types.EventMetadata{Source: "chat-service"},
		Payload:  payload,
	}
}

func newTriggerFixture(conversations store.ConversationStore, profiles store.ProfileStore, dispatcher PushDispatcher) *NotificationTrigger {
	pool := NewWorkerPool(config.WorkerPoolConfig{
		MaxWorkers:             1,
		QueueSize:              10,
		ShutdownTimeoutSeconds: 5,
	})
	return NewNotificationTrigger(conversations, profiles, dispatcher, pool)
}

func activeGroupFixture(conversations *mocks.ConversationStore, userIDs ...string) {
	members := make([]*types.ConversationMember, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, member("conv-1", id, nil))
	}
	conversations.On("GetConversation", mock.Anything, "tenant-1", "conv-1").
		Return(groupConversation(), nil)
	conversations.On("ListMembers", mock.Anything, "tenant-1", "conv-1").
		Return(members, nil)
}

func TestNotificationTrigger_MentionAndRegularRendering(t *testing.T) {
	conversations := new(mocks.ConversationStore)
	profiles := new(mocks.ProfileStore)
	dispatcher := newCapturingDispatcher()

	activeGroupFixture(conversations, "sender", "u2", "u3", "u4")
	profiles.On("GetProfile", mock.Anything, "tenant-1", "sender").
		Return(&types.UserProfile{UserID: "sender", TenantID: "tenant-1", DisplayName: "Pastor Kim"}, nil)

	trigger := newTriggerFixture(conversations, profiles, dispatcher)
	event, err := trigger.toDomainEvent(messageEvent(t, "u3"))
	require.NoError(t, err)

	trigger.process(context.Background(), event)

	calls, tenantID, messages := dispatcher.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "tenant-1", tenantID)
	require.Len(t, messages, 3)

	byRecipient := make(map[string]types.PushMessage, len(messages))
	for _, m := range messages {
		// Exactly one message per recipient, never both kinds.
		_, dup := byRecipient[m.RecipientID]
		require.False(t, dup, "recipient %s got two messages", m.RecipientID)
		byRecipient[m.RecipientID] = m
	}

	mentionMsg := byRecipient["u3"]
	assert.Equal(t, "Mentioned by Pastor Kim", mentionMsg.Title)
	assert.Equal(t, types.PushPriorityHigh, mentionMsg.Priority)
	assert.Equal(t, "Potluck moved to Friday", mentionMsg.Body)

	for _, userID := range []string{"u2", "u4"} {
		regularMsg := byRecipient[userID]
		assert.Equal(t, "Pastor Kim", regularMsg.Title)
		assert.Equal(t, types.PushPriorityNormal, regularMsg.Priority)
		assert.Equal(t, "Potluck moved to Friday", regularMsg.Body)
	}

	assert.NotContains(t, byRecipient, "sender")
}

func TestNotificationTrigger_UnknownConversationIsLoggedNotRaised(t *testing.T) {
	conversations := new(mocks.ConversationStore)
	profiles := new(mocks.ProfileStore)
	dispatcher := newCapturingDispatcher()

	conversations.On("GetConversation", mock.Anything, "tenant-1", "conv-1").
		Return(nil, store.ErrNotFound)

	trigger := newTriggerFixture(conversations, profiles, dispatcher)
	event, err := trigger.toDomainEvent(messageEvent(t))
	require.NoError(t, err)

	trigger.process(context.Background(), event)

	calls, _, _ := dispatcher.snapshot()
	assert.Zero(t, calls)
}

func TestNotificationTrigger_EmptyAudienceSkipsDispatch(t *testing.T) {
	conversations := new(mocks.ConversationStore)
	profiles := new(mocks.ProfileStore)
	dispatcher := newCapturingDispatcher()

	// The sender is the only member left.
	activeGroupFixture(conversations, "sender")

	trigger := newTriggerFixture(conversations, profiles, dispatcher)
	event, err := trigger.toDomainEvent(messageEvent(t))
	require.NoError(t, err)

	trigger.process(context.Background(), event)

	calls, _, _ := dispatcher.snapshot()
	assert.Zero(t, calls)
}

func TestNotificationTrigger_MissingProfileFallsBack(t *testing.T) {
	conversations := new(mocks.ConversationStore)
	profiles := new(mocks.ProfileStore)
	dispatcher := newCapturingDispatcher()

	activeGroupFixture(conversations, "sender", "u2")
	profiles.On("GetProfile", mock.Anything, "tenant-1", "sender").
		Return(nil, store.ErrNotFound)

	trigger := newTriggerFixture(conversations, profiles, dispatcher)
	event, err := trigger.toDomainEvent(messageEvent(t))
	require.NoError(t, err)

	trigger.process(context.Background(), event)

	_, _, messages := dispatcher.snapshot()
	require.Len(t, messages, 1)
	assert.Equal(t, fallbackSenderName, messages[0].Title)
}

func TestNotificationTrigger_EventChatExclusionsApplied(t *testing.T) {
	conversations := new(mocks.ConversationStore)
	profiles := new(mocks.ProfileStore)
	dispatcher := newCapturingDispatcher()

	conversations.On("GetConversation", mock.Anything, "tenant-1", "conv-1").
		Return(eventConversation(), nil)
	conversations.On("ListMembers", mock.Anything, "tenant-1", "conv-1").
		Return([]*types.ConversationMember{
			member("conv-1", "sender", nil),
			member("conv-1", "u2", nil),
			member("conv-1", "u4", nil),
		}, nil)
	conversations.On("ListEventChatExclusions", mock.Anything, "tenant-1", "conv-1").
		Return([]string{"u4"}, nil)
	profiles.On("GetProfile", mock.Anything, "tenant-1", "sender").
		Return(&types.UserProfile{DisplayName: "Ana"}, nil)

	trigger := newTriggerFixture(conversations, profiles, dispatcher)
	event, err := trigger.toDomainEvent(messageEvent(t))
	require.NoError(t, err)

	trigger.process(context.Background(), event)

	_, _, messages := dispatcher.snapshot()
	require.Len(t, messages, 1)
	assert.Equal(t, "u2", messages[0].RecipientID)
}

func TestNotificationTrigger_OnEventRunsThroughOutbox(t *testing.T) {
	conversations := new(mocks.ConversationStore)
	profiles := new(mocks.ProfileStore)
	dispatcher := newCapturingDispatcher()

	activeGroupFixture(conversations, "sender", "u2")
	profiles.On("GetProfile", mock.Anything, "tenant-1", "sender").
		Return(&types.UserProfile{DisplayName: "Ana"}, nil)

	pool := NewWorkerPool(config.WorkerPoolConfig{
		MaxWorkers:             2,
		QueueSize:              10,
		ShutdownTimeoutSeconds: 5,
	})
	pool.Start()
	defer func() { _ = pool.Shutdown(context.Background()) }()

	trigger := NewNotificationTrigger(conversations, profiles, dispatcher, pool)

	// HandleEvent returns immediately and never errors.
	require.NoError(t, trigger.HandleEvent(context.Background(), messageEvent(t)))

	select {
	case <-dispatcher.done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch job never ran")
	}

	calls, tenantID, messages := dispatcher.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "tenant-1", tenantID)
	assert.Len(t, messages, 1)
}

func TestNotificationTrigger_UnsupportedEventTypeIgnored(t *testing.T) {
	conversations := new(mocks.ConversationStore)
	profiles := new(mocks.ProfileStore)
	dispatcher := newCapturingDispatcher()

	trigger := newTriggerFixture(conversations, profiles, dispatcher)

	event := messageEvent(t)
	event.Type = types.EventTypeMemberAdded

	domainEvent, err := trigger.toDomainEvent(event)
	require.NoError(t, err)
	assert.Nil(t, domainEvent)
}

func TestNotificationTrigger_PrayerAnsweredRendering(t *testing.T) {
	conversations := new(mocks.ConversationStore)
	profiles := new(mocks.ProfileStore)
	dispatcher := newCapturingDispatcher()

	activeGroupFixture(conversations, "sender", "u2")
	profiles.On("GetProfile", mock.Anything, "tenant-1", "sender").
		Return(&types.UserProfile{DisplayName: "Ana"}, nil)

	payload, err := json.Marshal(types.PrayerAnsweredEvent{
		PrayerCardID: "prayer-1",
		Title:        "Safe travels for the youth group",
	})
	require.NoError(t, err)

	event := messageEvent(t)
	event.Type = types.EventTypePrayerAnswered
	event.Payload = payload

	trigger := newTriggerFixture(conversations, profiles, dispatcher)
	domainEvent, err := trigger.toDomainEvent(event)
	require.NoError(t, err)

	trigger.process(context.Background(), domainEvent)

	_, _, messages := dispatcher.snapshot()
	require.Len(t, messages, 1)
	assert.Equal(t, "Prayer answered: Safe travels for the youth group", messages[0].Body)
	assert.Equal(t, types.PushPriorityNormal, messages[0].Priority)
}
