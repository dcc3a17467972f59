package postgres

import (
	"context"
	"errors"

	"github.com/ShepherdHQ/shepherd-backend/internal/store"
	"github.com/ShepherdHQ/shepherd-backend/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProfileStore reads tenant-scoped user profiles.
type ProfileStore struct {
	pool DBPool
}

func NewProfileStore(pool DBPool) store.ProfileStore {
	return &ProfileStore{pool: pool}
}

func (s *ProfileStore) GetProfile(ctx context.Context, tenantID, userID string) (*types.UserProfile, error) {
	query := `
		SELECT user_id, tenant_id, display_name
		FROM profiles
		WHERE tenant_id = $1 AND user_id = $2
	`

	profile := &types.UserProfile{}
	var rowUserID, rowTenantID uuid.UUID
	err := s.pool.QueryRow(ctx, query, tenantID, userID).Scan(
		&rowUserID,
		&rowTenantID,
		&profile.DisplayName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	profile.UserID = rowUserID.String()
	profile.TenantID = rowTenantID.String()

	return profile, nil
}
