package session

import (
	"context"
	"time"

	"devhub/api/internal/store"
)

// PGStore backs refresh tokens with the refresh_sessions table, used when
// Redis is not configured.
type PGStore struct {
	store *store.PostgresStore
}

func NewPGStore(s *store.PostgresStore) *PGStore {
	return &PGStore{store: s}
}

func (s *PGStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return s.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (s *PGStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return s.store.LookupRefreshSession(ctx, tokenHash)
}

func (s *PGStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return s.store.RevokeRefreshSession(ctx, tokenHash)
}
