package store

import (
	"context"

	"github.com/ShepherdHQ/shepherd-backend/types"
)

// PushTokenStore handles device-token persistence. All reads and writes are
// tenant-scoped; a token registered in one community is invisible to others.
type PushTokenStore interface {
	// Upsert registers a token, reactivating and reassigning it if the same
	// device token already exists for the tenant. Returns the row ID.
	Upsert(ctx context.Context, token *types.DeviceToken) (string, error)

	// Revoke marks a single token inactive. Revoking an absent or already
	// revoked token is a silent no-op.
	Revoke(ctx context.Context, tenantID, userID, token string) error

	// RevokeAll marks every active token of a user inactive and returns the
	// number of tokens affected.
	RevokeAll(ctx context.Context, tenantID, userID string) (int64, error)

	// Delete removes a token row entirely. Used when the push gateway reports
	// the token as permanently invalid.
	Delete(ctx context.Context, tenantID, token string) error

	// ActiveTokensForUsers returns the active tokens of the given users.
	ActiveTokensForUsers(ctx context.Context, tenantID string, userIDs []string) ([]*types.DeviceToken, error)

	// TouchLastUsed stamps last_used_at on the given tokens after a
	// successful dispatch.
	TouchLastUsed(ctx context.Context, tenantID string, tokens []string) error
}

// ConversationStore exposes the read side of conversation data the
// notification pipeline needs. Writes live in the conversation service.
type ConversationStore interface {
	GetConversation(ctx context.Context, tenantID, conversationID string) (*types.Conversation, error)
	ListMembers(ctx context.Context, tenantID, conversationID string) ([]*types.ConversationMember, error)

	// ListEventChatExclusions returns the user IDs that opted out of
	// notifications for an event chat.
	ListEventChatExclusions(ctx context.Context, tenantID, conversationID string) ([]string, error)
}

// ProfileStore resolves tenant-scoped user identity for rendering.
type ProfileStore interface {
	GetProfile(ctx context.Context, tenantID, userID string) (*types.UserProfile, error)
}
