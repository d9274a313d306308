package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"token-auth-server/internal/model"
)

const uniqueViolation = "23505"

type RefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenRepository(pool *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	prepareRefreshToken(token, time.Now().UTC())

	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, token, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.ID, token.Token, token.UserID, token.CreatedAt, token.ExpiresAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("store refresh token: %w", model.ErrDuplicateRefreshToken)
	}
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) GetByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, token, user_id, created_at, expires_at
		 FROM refresh_tokens WHERE token = $1`, token)

	found, err := scanRefreshToken(row)
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return found, nil
}

// Consume deletes the record for token and returns it. Only one of several concurrent
// callers presenting the same token gets the row back.
func (r *RefreshTokenRepository) Consume(ctx context.Context, token string) (*model.RefreshToken, error) {
	row := r.pool.QueryRow(ctx,
		`DELETE FROM refresh_tokens WHERE token = $1
		 RETURNING id, token, user_id, created_at, expires_at`, token)

	found, err := scanRefreshToken(row)
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return found, nil
}

func (r *RefreshTokenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("clean expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRefreshToken(row pgx.Row) (*model.RefreshToken, error) {
	var t model.RefreshToken
	err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.CreatedAt, &t.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// prepareRefreshToken fills in the id and creation time when the caller left them unset.
func prepareRefreshToken(token *model.RefreshToken, now time.Time) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
}
