package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"token-auth-server/internal/model"
	"token-auth-server/pkg/apierror"
)

// UserDirectory owns user records and their credentials.
type UserDirectory interface {
	FindByName(ctx context.Context, username string) (model.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (model.User, error)
	CheckPassword(user model.User, password string) bool
	Create(ctx context.Context, user model.User, password string) (model.User, error)
}

type refreshTokenValidator interface {
	Validate(tokenString string) bool
}

type accessTokenParser interface {
	Parse(tokenString string) (*model.AuthClaims, error)
}

// Observer receives the outcome of logins, refreshes and revocations.
type Observer interface {
	LoginAttempt(result string)
	RefreshAttempt(result string)
	Revoked()
}

const (
	ResultSuccess            = "success"
	ResultInvalidCredentials = "invalid_credentials"
	ResultInvalidToken       = "invalid_token"
	ResultTokenNotFound      = "not_found"
	ResultUserNotFound       = "user_not_found"
	ResultError              = "error"
)

type noopObserver struct{}

func (noopObserver) LoginAttempt(string)   {}
func (noopObserver) RefreshAttempt(string) {}
func (noopObserver) Revoked()              {}

type AuthService struct {
	users         UserDirectory
	store         RefreshTokenStore
	authenticator *Authenticator
	validator     refreshTokenValidator
	access        accessTokenParser
	observer      Observer
}

type AuthServiceOption func(*AuthService)

func WithObserver(observer Observer) AuthServiceOption {
	return func(s *AuthService) {
		if observer != nil {
			s.observer = observer
		}
	}
}

func NewAuthService(
	users UserDirectory,
	store RefreshTokenStore,
	authenticator *Authenticator,
	validator refreshTokenValidator,
	access accessTokenParser,
	opts ...AuthServiceOption,
) *AuthService {
	s := &AuthService{
		users:         users,
		store:         store,
		authenticator: authenticator,
		validator:     validator,
		access:        access,
		observer:      noopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.AuthUser, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)

	var missing []string
	if email == "" {
		missing = append(missing, "email is required")
	} else if !strings.Contains(email, "@") {
		missing = append(missing, "email is not a valid e-mail address")
	}
	if username == "" {
		missing = append(missing, "username is required")
	}
	if req.Password == "" {
		missing = append(missing, "password is required")
	}
	if req.ConfirmPassword == "" {
		missing = append(missing, "confirm_password is required")
	}
	if len(missing) > 0 {
		return model.AuthUser{}, apierror.BadRequest("invalid registration request", strings.Join(missing, "; "))
	}

	if req.Password != req.ConfirmPassword {
		return model.AuthUser{}, model.ErrPasswordMismatch
	}

	user, err := s.users.Create(ctx, model.User{Username: username, Email: email}, req.Password)
	if err != nil {
		return model.AuthUser{}, err
	}

	slog.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user.Public(), nil
}

func (s *AuthService) Login(ctx context.Context, username string, password string) (model.AuthenticatedUserResponse, error) {
	pair, err := s.login(ctx, username, password)
	switch {
	case err == nil:
		s.observer.LoginAttempt(ResultSuccess)
	case errors.Is(err, model.ErrInvalidCredentials):
		s.observer.LoginAttempt(ResultInvalidCredentials)
	default:
		s.observer.LoginAttempt(ResultError)
	}
	return pair, err
}

func (s *AuthService) login(ctx context.Context, username string, password string) (model.AuthenticatedUserResponse, error) {
	user, err := s.users.FindByName(ctx, username)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.AuthenticatedUserResponse{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.AuthenticatedUserResponse{}, err
	}

	if !s.users.CheckPassword(user, password) {
		return model.AuthenticatedUserResponse{}, model.ErrInvalidCredentials
	}

	return s.authenticator.Authenticate(ctx, user)
}

// ValidateRefresh is a signature/issuer/audience/expiry check only.
func (s *AuthService) ValidateRefresh(tokenString string) bool {
	return s.validator.Validate(tokenString)
}

// ConsumeRefresh validates tokenString and removes its record. Garbage never reaches the
// store. A bad signature and a missing record both yield ErrInvalidRefreshToken.
func (s *AuthService) ConsumeRefresh(ctx context.Context, tokenString string) (*model.RefreshToken, error) {
	if !s.validator.Validate(tokenString) {
		return nil, model.ErrInvalidRefreshToken
	}

	record, err := s.store.Consume(ctx, tokenString)
	if errors.Is(err, model.ErrTokenNotFound) {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidRefreshToken, model.ErrTokenNotFound)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Refresh rotates a refresh token: the presented token is deleted before the replacement is
// minted, so a failure in between logs the user out instead of leaving two live tokens.
func (s *AuthService) Refresh(ctx context.Context, tokenString string) (model.AuthenticatedUserResponse, error) {
	pair, err := s.refresh(ctx, tokenString)
	switch {
	case err == nil:
		s.observer.RefreshAttempt(ResultSuccess)
	case errors.Is(err, model.ErrTokenNotFound):
		s.observer.RefreshAttempt(ResultTokenNotFound)
	case errors.Is(err, model.ErrInvalidRefreshToken):
		s.observer.RefreshAttempt(ResultInvalidToken)
	case errors.Is(err, model.ErrUserNotFound):
		s.observer.RefreshAttempt(ResultUserNotFound)
	default:
		s.observer.RefreshAttempt(ResultError)
	}
	return pair, err
}

func (s *AuthService) refresh(ctx context.Context, tokenString string) (model.AuthenticatedUserResponse, error) {
	record, err := s.ConsumeRefresh(ctx, tokenString)
	if err != nil {
		return model.AuthenticatedUserResponse{}, err
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		slog.Warn("refresh token owner no longer exists", "user_id", record.UserID)
		return model.AuthenticatedUserResponse{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.AuthenticatedUserResponse{}, err
	}

	return s.authenticator.Authenticate(ctx, user)
}

// RevokeAll deletes every refresh token of userID, on every device.
func (s *AuthService) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.DeleteAll(ctx, userID); err != nil {
		return err
	}
	s.observer.Revoked()
	slog.Info("refresh tokens revoked", "user_id", userID)
	return nil
}

func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.RevokeAll(ctx, userID)
}

func (s *AuthService) ParseAccessToken(tokenString string) (*model.AuthClaims, error) {
	return s.access.Parse(tokenString)
}

func (s *AuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.AuthUser{}, err
	}
	return user.Public(), nil
}
