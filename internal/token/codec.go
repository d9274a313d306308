// Package token mints and verifies the signed tokens handed out by the auth server.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"token-auth-server/internal/model"
)

// Reason explains why a token failed verification.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonMalformed     Reason = "malformed"
	ReasonSignature     Reason = "signature"
	ReasonAlgorithm     Reason = "algorithm"
	ReasonIssuer        Reason = "issuer"
	ReasonAudience      Reason = "audience"
	ReasonExpired       Reason = "expired"
	ReasonMissingExpiry Reason = "missing_expiry"
	ReasonMisconfigured Reason = "misconfigured"
)

// Verification is the outcome of Codec.Verify. Claims is only set when Valid is true.
type Verification struct {
	Valid  bool
	Reason Reason
	Claims map[string]any
}

func invalid(reason Reason) Verification {
	return Verification{Reason: reason}
}

var reservedClaims = map[string]struct{}{
	"iss": {},
	"aud": {},
	"exp": {},
	"jti": {},
}

var signingMethod = jwt.SigningMethodHS256

type Codec struct {
	now func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now for minting and verification.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func NewCodec(opts ...Option) *Codec {
	c := &Codec{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mint signs a token carrying issuer, audience, an expiry of now+ttl, a random jti and claims.
// Caller claims cannot override the registered ones.
func (c *Codec) Mint(secret []byte, issuer string, audience string, ttl time.Duration, claims map[string]any) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("mint token: empty secret: %w", model.ErrConfiguration)
	}

	payload := jwt.MapClaims{}
	for key, value := range claims {
		if _, reserved := reservedClaims[key]; reserved {
			continue
		}
		payload[key] = value
	}
	payload["iss"] = issuer
	payload["aud"] = audience
	payload["exp"] = jwt.NewNumericDate(c.now().Add(ttl))
	payload["jti"] = uuid.NewString()

	signed, err := jwt.NewWithClaims(signingMethod, payload).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("mint token: %v: %w", err, model.ErrConfiguration)
	}

	return signed, nil
}

// Verify recomputes the signature with secret and checks issuer, audience and expiry.
// There is no leeway: a token is valid strictly before its expiry.
func (c *Codec) Verify(tokenString string, secret []byte, issuer string, audience string) Verification {
	if len(secret) == 0 {
		return invalid(ReasonMisconfigured)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)

	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return invalid(classify(err))
	}
	if !parsed.Valid {
		return invalid(ReasonSignature)
	}

	return Verification{Valid: true, Claims: map[string]any(claims)}
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonSignature
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonAlgorithm
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ReasonIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ReasonAudience
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ReasonMissingExpiry
	default:
		return ReasonMalformed
	}
}
