package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"token-auth-server/internal/model"
)

type MemoryUserRepository struct {
	bcryptCost      int
	mu              sync.RWMutex
	usersByID       map[uuid.UUID]model.User
	usersByUsername map[string]uuid.UUID
	usersByEmail    map[string]uuid.UUID
}

func NewMemoryUserRepository(bcryptCost int) *MemoryUserRepository {
	return &MemoryUserRepository{
		bcryptCost:      bcryptCost,
		usersByID:       map[uuid.UUID]model.User{},
		usersByUsername: map[string]uuid.UUID{},
		usersByEmail:    map[string]uuid.UUID{},
	}
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.usersByID[id]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) FindByName(_ context.Context, username string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.usersByUsername[normalize(username)]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return r.usersByID[id], nil
}

func (r *MemoryUserRepository) CheckPassword(user model.User, password string) bool {
	return checkPassword(user, password)
}

func (r *MemoryUserRepository) Create(_ context.Context, u model.User, password string) (model.User, error) {
	hash, err := hashPassword(password, r.bcryptCost)
	if err != nil {
		return model.User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.usersByUsername[normalize(u.Username)]; exists {
		return model.User{}, fmt.Errorf("create user: username %q: %w", u.Username, model.ErrUserAlreadyExists)
	}
	if _, exists := r.usersByEmail[normalize(u.Email)]; exists {
		return model.User{}, fmt.Errorf("create user: email %q: %w", u.Email, model.ErrUserAlreadyExists)
	}

	now := time.Now().UTC()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.PasswordHash = hash
	u.CreatedAt = now
	u.UpdatedAt = now

	r.usersByID[u.ID] = u
	r.usersByUsername[normalize(u.Username)] = u.ID
	r.usersByEmail[normalize(u.Email)] = u.ID
	return u, nil
}

// Delete removes a user. Outstanding refresh tokens of that user stop working on next use.
func (r *MemoryUserRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.usersByID[id]
	if !exists {
		return model.ErrUserNotFound
	}
	delete(r.usersByID, id)
	delete(r.usersByUsername, normalize(user.Username))
	delete(r.usersByEmail, normalize(user.Email))
	return nil
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
