package token

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"token-auth-server/internal/config"
	"token-auth-server/internal/model"
)

const (
	claimID    = "id"
	claimName  = "name"
	claimEmail = "email"
	claimJTI   = "jti"
)

type AccessIssuer struct {
	codec *Codec
	cfg   config.Authentication
}

func NewAccessIssuer(codec *Codec, cfg config.Authentication) *AccessIssuer {
	return &AccessIssuer{codec: codec, cfg: cfg}
}

// Issue mints a short-lived access token carrying the user's id, name and email.
func (i *AccessIssuer) Issue(user model.User) (string, error) {
	claims := map[string]any{
		claimID:    user.ID.String(),
		claimName:  user.Username,
		claimEmail: user.Email,
	}

	token, err := i.codec.Mint([]byte(i.cfg.AccessTokenSecret), i.cfg.Issuer, i.cfg.Audience, i.cfg.AccessTokenExpiration, claims)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return token, nil
}

// Parse verifies an access token and returns the identity it carries.
func (i *AccessIssuer) Parse(tokenString string) (*model.AuthClaims, error) {
	result := i.codec.Verify(tokenString, []byte(i.cfg.AccessTokenSecret), i.cfg.Issuer, i.cfg.Audience)
	if !result.Valid {
		slog.Debug("access token rejected", "reason", string(result.Reason))
		return nil, model.ErrInvalidAccessToken
	}

	rawID, _ := result.Claims[claimID].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, model.ErrInvalidAccessToken
	}

	claims := &model.AuthClaims{UserID: userID}
	claims.Username, _ = result.Claims[claimName].(string)
	claims.Email, _ = result.Claims[claimEmail].(string)
	claims.TokenID, _ = result.Claims[claimJTI].(string)

	return claims, nil
}
