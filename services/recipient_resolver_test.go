package services

import (
	"strings"
	"testing"
	"time"

	"github.com/ShepherdHQ/shepherd-backend/errors"
	"github.com/ShepherdHQ/shepherd-backend/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(conversationID, userID string, leftAt *time.Time) *types.ConversationMember {
	return &types.ConversationMember{
		ID:             userID + "-membership",
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       time.Now().Add(-24 * time.Hour),
		LeftAt:         leftAt,
	}
}

func textEvent(senderID string, mentioned ...string) *types.DomainEvent {
	return &types.DomainEvent{
		ID:               "evt-1",
		TenantID:         "tenant-1",
		ConversationID:   "conv-1",
		SenderID:         senderID,
		Content:          "Hello everyone",
		ContentKind:      types.ContentKindText,
		MentionedUserIDs: mentioned,
		CreatedAt:        time.Now(),
	}
}

func groupConversation() *types.Conversation {
	return &types.Conversation{
		ID:       "conv-1",
		TenantID: "tenant-1",
		Type:     types.ConversationTypeGroup,
		Name:     "Tuesday small group",
	}
}

func eventConversation() *types.Conversation {
	c := groupConversation()
	c.Type = types.ConversationTypeEvent
	c.Name = "Summer picnic"
	return c
}

func TestResolveRecipients_SmallGroupWithDepartedMember(t *testing.T) {
	// 4 members, one left, sender among the remaining 3: exactly 2 regular
	// recipients come out.
	left := time.Now().Add(-time.Hour)
	members := []*types.ConversationMember{
		member("conv-1", "u1", nil),
		member("conv-1", "u2", nil),
		member("conv-1", "u3", nil),
		member("conv-1", "u4", &left),
	}

	audience, err := ResolveRecipients(textEvent("u1"), groupConversation(), members, nil)
	require.NoError(t, err)

	assert.Empty(t, audience.Mention)
	assert.ElementsMatch(t, []string{"u2", "u3"}, audience.Regular)
}

func TestResolveRecipients_MentionPartition(t *testing.T) {
	members := []*types.ConversationMember{
		member("conv-1", "sender", nil),
		member("conv-1", "u2", nil),
		member("conv-1", "u3", nil),
		member("conv-1", "u4", nil),
	}

	audience, err := ResolveRecipients(textEvent("sender", "u3"), groupConversation(), members, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"u3"}, audience.Mention)
	assert.ElementsMatch(t, []string{"u2", "u4"}, audience.Regular)

	// No user appears in both partitions.
	for _, m := range audience.Mention {
		assert.NotContains(t, audience.Regular, m)
	}
}

func TestResolveRecipients_SenderNeverNotified(t *testing.T) {
	members := []*types.ConversationMember{
		member("conv-1", "sender", nil),
		member("conv-1", "u2", nil),
	}

	// Even a self-mention must not produce a notification for the sender.
	audience, err := ResolveRecipients(textEvent("sender", "sender"), groupConversation(), members, nil)
	require.NoError(t, err)

	assert.NotContains(t, audience.Mention, "sender")
	assert.NotContains(t, audience.Regular, "sender")
	assert.Equal(t, []string{"u2"}, audience.Regular)
}

func TestResolveRecipients_EventChatExclusions(t *testing.T) {
	members := []*types.ConversationMember{
		member("conv-1", "sender", nil),
		member("conv-1", "u2", nil),
		member("conv-1", "u4", nil),
	}

	t.Run("event conversation honors opt-outs", func(t *testing.T) {
		audience, err := ResolveRecipients(textEvent("sender"), eventConversation(), members, []string{"u4"})
		require.NoError(t, err)

		assert.Equal(t, []string{"u2"}, audience.Regular)
		assert.NotContains(t, audience.Mention, "u4")
	})

	t.Run("non-event conversation ignores a populated list", func(t *testing.T) {
		audience, err := ResolveRecipients(textEvent("sender"), groupConversation(), members, []string{"u4"})
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"u2", "u4"}, audience.Regular)
	})

	t.Run("excluded mention target stays silent", func(t *testing.T) {
		audience, err := ResolveRecipients(textEvent("sender", "u4"), eventConversation(), members, []string{"u4"})
		require.NoError(t, err)

		assert.Empty(t, audience.Mention)
		assert.Equal(t, []string{"u2"}, audience.Regular)
	})
}

func TestResolveRecipients_EmptyAudience(t *testing.T) {
	t.Run("sender is the only member", func(t *testing.T) {
		members := []*types.ConversationMember{member("conv-1", "sender", nil)}

		audience, err := ResolveRecipients(textEvent("sender"), groupConversation(), members, nil)
		require.NoError(t, err)
		assert.True(t, audience.Empty())
	})

	t.Run("everyone else has left", func(t *testing.T) {
		left := time.Now()
		members := []*types.ConversationMember{
			member("conv-1", "sender", nil),
			member("conv-1", "u2", &left),
		}

		audience, err := ResolveRecipients(textEvent("sender"), groupConversation(), members, nil)
		require.NoError(t, err)
		assert.True(t, audience.Empty())
	})
}

func TestResolveRecipients_UnknownConversation(t *testing.T) {
	audience, err := ResolveRecipients(textEvent("sender"), nil, nil, nil)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ConversationNotFoundError))
	assert.True(t, audience.Empty())
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		kind     types.ContentKind
		expected string
	}{
		{
			name:     "short text unchanged",
			content:  "See you at 7!",
			kind:     types.ContentKindText,
			expected: "See you at 7!",
		},
		{
			name:     "exactly 100 characters unchanged",
			content:  strings.Repeat("a", 100),
			kind:     types.ContentKindText,
			expected: strings.Repeat("a", 100),
		},
		{
			name:     "long text truncated to 100 plus ellipsis",
			content:  strings.Repeat("b", 250),
			kind:     types.ContentKindText,
			expected: strings.Repeat("b", 100) + "...",
		},
		{
			name:     "media gets fixed placeholder",
			content:  "ignored.jpg",
			kind:     types.ContentKindMedia,
			expected: mediaPreviewPlaceholder,
		},
		{
			name:     "long media content still placeholder",
			content:  strings.Repeat("c", 500),
			kind:     types.ContentKindMedia,
			expected: mediaPreviewPlaceholder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := &types.DomainEvent{Content: tt.content, ContentKind: tt.kind}
			assert.Equal(t, tt.expected, Preview(event))
		})
	}
}
