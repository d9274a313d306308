package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"token-auth-server/internal/model"
)

// Each record lives in a hash under <prefix>token:<token>, with <prefix>id:<id> pointing back
// to the token and <prefix>user:<userID> listing the user's tokens. Every mutation runs as a
// single script, so it is atomic on the server.

const createRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
local ttl = tonumber(ARGV[6])
redis.call("HSET", KEYS[1], "id", ARGV[1], "token", ARGV[2], "user_id", ARGV[3], "created_at", ARGV[4], "expires_at", ARGV[5])
redis.call("SET", KEYS[2], ARGV[2])
local user_ttl = redis.call("PTTL", KEYS[3])
redis.call("SADD", KEYS[3], ARGV[2])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
  redis.call("PEXPIRE", KEYS[2], ttl)
  if user_ttl == -2 or (user_ttl >= 0 and user_ttl < ttl) then
    redis.call("PEXPIRE", KEYS[3], ttl)
  end
elseif user_ttl >= 0 then
  redis.call("PERSIST", KEYS[3])
end
return 1
`

const consumeRefreshScript = `
local fields = redis.call("HGETALL", KEYS[1])
if #fields == 0 then
  return false
end
local record = {}
for i = 1, #fields, 2 do
  record[fields[i]] = fields[i + 1]
end
redis.call("DEL", KEYS[1])
redis.call("DEL", ARGV[1] .. "id:" .. record["id"])
redis.call("SREM", ARGV[1] .. "user:" .. record["user_id"], record["token"])
return fields
`

const deleteRefreshByIDScript = `
local token = redis.call("GET", KEYS[1])
if not token then
  return 0
end
local token_key = ARGV[1] .. "token:" .. token
local user_id = redis.call("HGET", token_key, "user_id")
redis.call("DEL", token_key)
redis.call("DEL", KEYS[1])
if user_id then
  redis.call("SREM", ARGV[1] .. "user:" .. user_id, token)
end
return 1
`

const deleteAllRefreshScript = `
local tokens = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, token in ipairs(tokens) do
  local token_key = ARGV[1] .. "token:" .. token
  local id = redis.call("HGET", token_key, "id")
  removed = removed + redis.call("DEL", token_key)
  if id then
    redis.call("DEL", ARGV[1] .. "id:" .. id)
  end
end
redis.call("DEL", KEYS[1])
return removed
`

var (
	createRefreshLua     = redis.NewScript(createRefreshScript)
	consumeRefreshLua    = redis.NewScript(consumeRefreshScript)
	deleteRefreshByIDLua = redis.NewScript(deleteRefreshByIDScript)
	deleteAllRefreshLua  = redis.NewScript(deleteAllRefreshScript)
)

// RedisRefreshTokenRepository stores refresh tokens in Redis. Records expire with the token
// itself, so no cleanup job is needed.
type RedisRefreshTokenRepository struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRefreshTokenRepository(client redis.UniversalClient, prefix string) *RedisRefreshTokenRepository {
	if prefix == "" {
		prefix = "refresh:"
	}
	return &RedisRefreshTokenRepository{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisRefreshTokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	now := r.now().UTC()
	prepareRefreshToken(token, now)

	var ttl int64
	expiresAt := ""
	if !token.ExpiresAt.IsZero() {
		expiresAt = token.ExpiresAt.UTC().Format(time.RFC3339Nano)
		ttl = token.ExpiresAt.Sub(now).Milliseconds()
		if ttl <= 0 {
			ttl = 1
		}
	}

	created, err := createRefreshLua.Run(ctx, r.client,
		[]string{r.tokenKey(token.Token), r.idKey(token.ID), r.userKey(token.UserID)},
		token.ID.String(), token.Token, token.UserID.String(),
		token.CreatedAt.UTC().Format(time.RFC3339Nano), expiresAt, ttl,
	).Int()
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("store refresh token: %w", model.ErrDuplicateRefreshToken)
	}
	return nil
}

func (r *RedisRefreshTokenRepository) GetByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	fields, err := r.client.HGetAll(ctx, r.tokenKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if len(fields) == 0 {
		return nil, model.ErrTokenNotFound
	}

	found, err := decodeRefreshRecord(fields)
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return found, nil
}

func (r *RedisRefreshTokenRepository) Consume(ctx context.Context, token string) (*model.RefreshToken, error) {
	raw, err := consumeRefreshLua.Run(ctx, r.client, []string{r.tokenKey(token)}, r.prefix).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	fields := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		fields[raw[i]] = raw[i+1]
	}

	found, err := decodeRefreshRecord(fields)
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return found, nil
}

func (r *RedisRefreshTokenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := deleteRefreshByIDLua.Run(ctx, r.client, []string{r.idKey(id)}, r.prefix).Err(); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *RedisRefreshTokenRepository) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	if err := deleteAllRefreshLua.Run(ctx, r.client, []string{r.userKey(userID)}, r.prefix).Err(); err != nil {
		return fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return nil
}

func (r *RedisRefreshTokenRepository) tokenKey(token string) string {
	return r.prefix + "token:" + token
}

func (r *RedisRefreshTokenRepository) idKey(id uuid.UUID) string {
	return r.prefix + "id:" + id.String()
}

func (r *RedisRefreshTokenRepository) userKey(userID uuid.UUID) string {
	return r.prefix + "user:" + userID.String()
}

func decodeRefreshRecord(fields map[string]string) (*model.RefreshToken, error) {
	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return nil, fmt.Errorf("decode refresh token id: %w", err)
	}

	userID, err := uuid.Parse(fields["user_id"])
	if err != nil {
		return nil, fmt.Errorf("decode refresh token user: %w", err)
	}

	t := &model.RefreshToken{ID: id, Token: fields["token"], UserID: userID}

	if raw := fields["created_at"]; raw != "" {
		if t.CreatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, fmt.Errorf("decode refresh token created_at: %w", err)
		}
	}
	if raw := fields["expires_at"]; raw != "" {
		if t.ExpiresAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, fmt.Errorf("decode refresh token expires_at: %w", err)
		}
	}

	return t, nil
}
