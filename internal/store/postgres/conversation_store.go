package postgres

import (
	"context"
	"errors"

	"github.com/ShepherdHQ/shepherd-backend/internal/store"
	"github.com/ShepherdHQ/shepherd-backend/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ConversationStore reads conversation data owned by the conversation service.
type ConversationStore struct {
	pool DBPool
}

func NewConversationStore(pool DBPool) store.ConversationStore {
	return &ConversationStore{pool: pool}
}

func (s *ConversationStore) GetConversation(ctx context.Context, tenantID, conversationID string) (*types.Conversation, error) {
	query := `
		SELECT id, tenant_id, type, name, created_by, created_at, updated_at
		FROM conversations
		WHERE tenant_id = $1 AND id = $2
	`

	conv := &types.Conversation{}
	var id, rowTenantID, createdBy uuid.UUID
	err := s.pool.QueryRow(ctx, query, tenantID, conversationID).Scan(
		&id,
		&rowTenantID,
		&conv.Type,
		&conv.Name,
		&createdBy,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	conv.ID = id.String()
	conv.TenantID = rowTenantID.String()
	conv.CreatedBy = createdBy.String()

	return conv, nil
}

// ListMembers returns every membership row of the conversation, departed
// members included. Audience rules decide what to do with LeftAt.
func (s *ConversationStore) ListMembers(ctx context.Context, tenantID, conversationID string) ([]*types.ConversationMember, error) {
	query := `
		SELECT m.id, m.conversation_id, m.user_id, m.joined_at, m.left_at
		FROM conversation_members m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.tenant_id = $1 AND m.conversation_id = $2
		ORDER BY m.joined_at
	`

	rows, err := s.pool.Query(ctx, query, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*types.ConversationMember
	for rows.Next() {
		m := &types.ConversationMember{}
		var id, convID, userID uuid.UUID
		err := rows.Scan(
			&id,
			&convID,
			&userID,
			&m.JoinedAt,
			&m.LeftAt,
		)
		if err != nil {
			return nil, err
		}
		m.ID = id.String()
		m.ConversationID = convID.String()
		m.UserID = userID.String()
		members = append(members, m)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return members, nil
}

func (s *ConversationStore) ListEventChatExclusions(ctx context.Context, tenantID, conversationID string) ([]string, error) {
	query := `
		SELECT user_id
		FROM event_chat_exclusions
		WHERE tenant_id = $1 AND conversation_id = $2
	`

	rows, err := s.pool.Query(ctx, query, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, userID.String())
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return userIDs, nil
}
