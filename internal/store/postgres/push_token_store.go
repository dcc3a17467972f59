package postgres

import (
	"context"

	"github.com/ShepherdHQ/shepherd-backend/internal/store"
	"github.com/ShepherdHQ/shepherd-backend/types"
	"github.com/google/uuid"
)

// PushTokenStore persists device tokens in the device_tokens table.
type PushTokenStore struct {
	pool DBPool
}

func NewPushTokenStore(pool DBPool) store.PushTokenStore {
	return &PushTokenStore{pool: pool}
}

// Upsert registers a device token for a user. The same physical token may be
// re-registered by a different user of the tenant (account switch on a shared
// device); ownership then moves to the new user and the token is reactivated.
func (s *PushTokenStore) Upsert(ctx context.Context, token *types.DeviceToken) (string, error) {
	query := `
		INSERT INTO device_tokens (tenant_id, user_id, token, platform)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, token)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			revoked_at = NULL,
			updated_at = NOW()
		RETURNING id
	`

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, query,
		token.TenantID,
		token.UserID,
		token.Token,
		token.Platform,
	).Scan(&id)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// Revoke marks a single token inactive. Zero rows affected means the token is
// absent or already revoked; both are silent no-ops.
func (s *PushTokenStore) Revoke(ctx context.Context, tenantID, userID, token string) error {
	query := `
		UPDATE device_tokens
		SET revoked_at = NOW(), updated_at = NOW()
		WHERE tenant_id = $1 AND user_id = $2 AND token = $3 AND revoked_at IS NULL
	`

	_, err := s.pool.Exec(ctx, query, tenantID, userID, token)
	return err
}

// RevokeAll marks every active token of a user inactive.
func (s *PushTokenStore) RevokeAll(ctx context.Context, tenantID, userID string) (int64, error) {
	query := `
		UPDATE device_tokens
		SET revoked_at = NOW(), updated_at = NOW()
		WHERE tenant_id = $1 AND user_id = $2 AND revoked_at IS NULL
	`

	result, err := s.pool.Exec(ctx, query, tenantID, userID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}

// Delete removes a token row entirely. Deleting an already-removed token is a
// no-op so that gateway-driven pruning stays idempotent.
func (s *PushTokenStore) Delete(ctx context.Context, tenantID, token string) error {
	query := `DELETE FROM device_tokens WHERE tenant_id = $1 AND token = $2`

	_, err := s.pool.Exec(ctx, query, tenantID, token)
	return err
}

// ActiveTokensForUsers returns all active tokens held by the given users.
func (s *PushTokenStore) ActiveTokensForUsers(ctx context.Context, tenantID string, userIDs []string) ([]*types.DeviceToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, tenant_id, user_id, token, platform, revoked_at, last_used_at, created_at, updated_at
		FROM device_tokens
		WHERE tenant_id = $1 AND user_id = ANY($2) AND revoked_at IS NULL
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query, tenantID, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*types.DeviceToken
	for rows.Next() {
		t := &types.DeviceToken{}
		var id, rowTenantID, userID uuid.UUID
		err := rows.Scan(
			&id,
			&rowTenantID,
			&userID,
			&t.Token,
			&t.Platform,
			&t.RevokedAt,
			&t.LastUsedAt,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		t.ID = id.String()
		t.TenantID = rowTenantID.String()
		t.UserID = userID.String()
		tokens = append(tokens, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return tokens, nil
}

// TouchLastUsed stamps last_used_at on tokens that just received a push.
func (s *PushTokenStore) TouchLastUsed(ctx context.Context, tenantID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}

	query := `
		UPDATE device_tokens
		SET last_used_at = NOW(), updated_at = NOW()
		WHERE tenant_id = $1 AND token = ANY($2)
	`

	_, err := s.pool.Exec(ctx, query, tenantID, tokens)
	return err
}
