package token

import (
	"log/slog"

	"token-auth-server/internal/config"
)

type RefreshValidator struct {
	codec *Codec
	cfg   config.Authentication
}

func NewRefreshValidator(codec *Codec, cfg config.Authentication) *RefreshValidator {
	return &RefreshValidator{codec: codec, cfg: cfg}
}

// Validate reports whether tokenString is a refresh token signed by this server that has not
// expired. It says nothing about whether the token is still stored.
func (v *RefreshValidator) Validate(tokenString string) (valid bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Warn("refresh token validation panicked", "error", recovered)
			valid = false
		}
	}()

	result := v.codec.Verify(tokenString, []byte(v.cfg.RefreshTokenSecret), v.cfg.Issuer, v.cfg.Audience)
	if !result.Valid {
		slog.Debug("refresh token rejected", "reason", string(result.Reason))
	}
	return result.Valid
}
