package token

import (
	"fmt"
	"time"

	"token-auth-server/internal/config"
)

// RefreshIssuer mints refresh tokens. They carry no identity: the owner is only known
// through the stored record, so a leaked signature alone cannot be used once revoked.
type RefreshIssuer struct {
	codec *Codec
	cfg   config.Authentication
}

func NewRefreshIssuer(codec *Codec, cfg config.Authentication) *RefreshIssuer {
	return &RefreshIssuer{codec: codec, cfg: cfg}
}

func (i *RefreshIssuer) Issue() (string, error) {
	token, err := i.codec.Mint([]byte(i.cfg.RefreshTokenSecret), i.cfg.Issuer, i.cfg.Audience, i.cfg.RefreshTokenExpiration, nil)
	if err != nil {
		return "", fmt.Errorf("issue refresh token: %w", err)
	}
	return token, nil
}

func (i *RefreshIssuer) TTL() time.Duration {
	return i.cfg.RefreshTokenExpiration
}
