package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"token-auth-server/internal/model"
)

// RefreshTokenStore is the durable record of issued refresh tokens.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	GetByToken(ctx context.Context, token string) (*model.RefreshToken, error)
	// Consume atomically looks up and deletes the record for token.
	Consume(ctx context.Context, token string) (*model.RefreshToken, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAll(ctx context.Context, userID uuid.UUID) error
}

type accessTokenIssuer interface {
	Issue(user model.User) (string, error)
}

type refreshTokenIssuer interface {
	Issue() (string, error)
	TTL() time.Duration
}

// Authenticator mints an access/refresh pair for a user and records the refresh token.
// Login and refresh both end here.
type Authenticator struct {
	store   RefreshTokenStore
	access  accessTokenIssuer
	refresh refreshTokenIssuer
	now     func() time.Time
}

func NewAuthenticator(store RefreshTokenStore, access accessTokenIssuer, refresh refreshTokenIssuer) *Authenticator {
	return &Authenticator{store: store, access: access, refresh: refresh, now: time.Now}
}

func (a *Authenticator) Authenticate(ctx context.Context, user model.User) (model.AuthenticatedUserResponse, error) {
	accessToken, err := a.access.Issue(user)
	if err != nil {
		return model.AuthenticatedUserResponse{}, err
	}

	refreshToken, err := a.refresh.Issue()
	if err != nil {
		return model.AuthenticatedUserResponse{}, err
	}

	now := a.now().UTC()
	record := &model.RefreshToken{
		Token:     refreshToken,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.refresh.TTL()),
	}
	if err := a.store.Create(ctx, record); err != nil {
		return model.AuthenticatedUserResponse{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return model.AuthenticatedUserResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
