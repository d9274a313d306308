package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"token-auth-server/internal/model"
)

// MemoryRefreshTokenRepository keeps refresh tokens in process memory. It is meant for
// tests and single-instance development runs.
type MemoryRefreshTokenRepository struct {
	mu      sync.Mutex
	byToken map[string]model.RefreshToken
	byID    map[uuid.UUID]string
	now     func() time.Time
}

func NewMemoryRefreshTokenRepository() *MemoryRefreshTokenRepository {
	return &MemoryRefreshTokenRepository{
		byToken: map[string]model.RefreshToken{},
		byID:    map[uuid.UUID]string{},
		now:     time.Now,
	}
}

func (r *MemoryRefreshTokenRepository) Create(_ context.Context, token *model.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byToken[token.Token]; exists {
		return fmt.Errorf("store refresh token: %w", model.ErrDuplicateRefreshToken)
	}

	prepareRefreshToken(token, r.now().UTC())
	if _, exists := r.byID[token.ID]; exists {
		return fmt.Errorf("store refresh token: id %s already used: %w", token.ID, model.ErrDuplicateRefreshToken)
	}

	r.byToken[token.Token] = *token
	r.byID[token.ID] = token.Token
	return nil
}

func (r *MemoryRefreshTokenRepository) GetByToken(_ context.Context, token string) (*model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found, exists := r.byToken[token]
	if !exists {
		return nil, model.ErrTokenNotFound
	}
	return &found, nil
}

func (r *MemoryRefreshTokenRepository) Consume(_ context.Context, token string) (*model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found, exists := r.byToken[token]
	if !exists {
		return nil, model.ErrTokenNotFound
	}
	r.removeLocked(found)
	return &found, nil
}

func (r *MemoryRefreshTokenRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token, exists := r.byID[id]; exists {
		r.removeLocked(r.byToken[token])
	}
	return nil
}

func (r *MemoryRefreshTokenRepository) DeleteAll(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, stored := range r.byToken {
		if stored.UserID == userID {
			r.removeLocked(stored)
		}
	}
	return nil
}

func (r *MemoryRefreshTokenRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for _, stored := range r.byToken {
		if !stored.ExpiresAt.IsZero() && !stored.ExpiresAt.After(now) {
			r.removeLocked(stored)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of live records.
func (r *MemoryRefreshTokenRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}

func (r *MemoryRefreshTokenRepository) removeLocked(token model.RefreshToken) {
	delete(r.byToken, token.Token)
	delete(r.byID, token.ID)
}
