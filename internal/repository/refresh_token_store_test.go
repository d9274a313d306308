package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-auth-server/internal/model"
)

type refreshTokenStore interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	GetByToken(ctx context.Context, token string) (*model.RefreshToken, error)
	Consume(ctx context.Context, token string) (*model.RefreshToken, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAll(ctx context.Context, userID uuid.UUID) error
}

func newRedisStore(t *testing.T) (*RedisRefreshTokenRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisRefreshTokenRepository(rdb, "test:refresh:"), mr
}

func storeBackends(t *testing.T) map[string]func(t *testing.T) refreshTokenStore {
	return map[string]func(t *testing.T) refreshTokenStore{
		"memory": func(t *testing.T) refreshTokenStore { return NewMemoryRefreshTokenRepository() },
		"redis": func(t *testing.T) refreshTokenStore {
			store, _ := newRedisStore(t)
			return store
		},
	}
}

func newRecord(userID uuid.UUID, token string) *model.RefreshToken {
	return &model.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
	}
}

func TestRefreshTokenStores(t *testing.T) {
	for name, factory := range storeBackends(t) {
		factory := factory

		t.Run(name, func(t *testing.T) {
			t.Run("create assigns id and supports lookup", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				userID := uuid.New()

				record := newRecord(userID, "T1")
				require.NoError(t, store.Create(ctx, record))
				require.NotEqual(t, uuid.Nil, record.ID)

				found, err := store.GetByToken(ctx, "T1")
				require.NoError(t, err)
				assert.Equal(t, record.ID, found.ID)
				assert.Equal(t, userID, found.UserID)
				assert.Equal(t, "T1", found.Token)
				assert.WithinDuration(t, record.ExpiresAt, found.ExpiresAt, time.Millisecond)
			})

			t.Run("create keeps a caller supplied id", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				record := newRecord(uuid.New(), "T-fixed")
				record.ID = uuid.New()
				want := record.ID
				require.NoError(t, store.Create(ctx, record))
				assert.Equal(t, want, record.ID)
			})

			t.Run("duplicate token is rejected", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				require.NoError(t, store.Create(ctx, newRecord(uuid.New(), "dup")))
				err := store.Create(ctx, newRecord(uuid.New(), "dup"))
				assert.ErrorIs(t, err, model.ErrDuplicateRefreshToken)
			})

			t.Run("missing token", func(t *testing.T) {
				store := factory(t)

				_, err := store.GetByToken(context.Background(), "nope")
				assert.ErrorIs(t, err, model.ErrTokenNotFound)

				_, err = store.Consume(context.Background(), "nope")
				assert.ErrorIs(t, err, model.ErrTokenNotFound)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				record := newRecord(uuid.New(), "T-del")
				require.NoError(t, store.Create(ctx, record))

				require.NoError(t, store.Delete(ctx, record.ID))
				require.NoError(t, store.Delete(ctx, record.ID))
				require.NoError(t, store.Delete(ctx, uuid.New()))

				_, err := store.GetByToken(ctx, "T-del")
				assert.ErrorIs(t, err, model.ErrTokenNotFound)
			})

			t.Run("delete all removes only the user's tokens", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				userA := uuid.New()
				userB := uuid.New()

				require.NoError(t, store.Create(ctx, newRecord(userA, "A1")))
				require.NoError(t, store.Create(ctx, newRecord(userA, "A2")))
				require.NoError(t, store.Create(ctx, newRecord(userB, "B1")))

				require.NoError(t, store.DeleteAll(ctx, userA))
				require.NoError(t, store.DeleteAll(ctx, userA))

				for _, token := range []string{"A1", "A2"} {
					_, err := store.GetByToken(ctx, token)
					assert.ErrorIs(t, err, model.ErrTokenNotFound)
				}

				found, err := store.GetByToken(ctx, "B1")
				require.NoError(t, err)
				assert.Equal(t, userB, found.UserID)

				// the token string is free again once revoked
				require.NoError(t, store.Create(ctx, newRecord(userA, "A1")))
			})

			t.Run("consume returns the record exactly once", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				userID := uuid.New()

				record := newRecord(userID, "T-consume")
				require.NoError(t, store.Create(ctx, record))

				consumed, err := store.Consume(ctx, "T-consume")
				require.NoError(t, err)
				assert.Equal(t, record.ID, consumed.ID)
				assert.Equal(t, userID, consumed.UserID)

				_, err = store.Consume(ctx, "T-consume")
				assert.ErrorIs(t, err, model.ErrTokenNotFound)

				// id index is gone as well
				require.NoError(t, store.Create(ctx, &model.RefreshToken{ID: record.ID, Token: "T-other", UserID: userID}))
			})

			t.Run("concurrent consume has a single winner", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				require.NoError(t, store.Create(ctx, newRecord(uuid.New(), "T-race")))

				var winners atomic.Int32
				var wg sync.WaitGroup
				for i := 0; i < 16; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						if _, err := store.Consume(ctx, "T-race"); err == nil {
							winners.Add(1)
						}
					}()
				}
				wg.Wait()

				assert.Equal(t, int32(1), winners.Load())
			})
		})
	}
}

func TestRedisRefreshTokenExpiresWithToken(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	userID := uuid.New()

	record := &model.RefreshToken{Token: "T-ttl", UserID: userID, ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Create(ctx, record))

	ttl := mr.TTL("test:refresh:token:T-ttl")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	mr.FastForward(2 * time.Minute)

	_, err := store.GetByToken(ctx, "T-ttl")
	assert.ErrorIs(t, err, model.ErrTokenNotFound)
	require.NoError(t, store.DeleteAll(ctx, userID))
}

func TestMemoryDeleteExpired(t *testing.T) {
	store := NewMemoryRefreshTokenRepository()
	ctx := context.Background()
	now := time.Now().UTC()
	userID := uuid.New()

	require.NoError(t, store.Create(ctx, &model.RefreshToken{Token: "old", UserID: userID, ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Create(ctx, &model.RefreshToken{Token: "edge", UserID: userID, ExpiresAt: now}))
	require.NoError(t, store.Create(ctx, &model.RefreshToken{Token: "fresh", UserID: userID, ExpiresAt: now.Add(time.Minute)}))

	removed, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Equal(t, 1, store.Len())

	_, err = store.GetByToken(ctx, "fresh")
	require.NoError(t, err)
}
