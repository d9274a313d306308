package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordMismatch   = errors.New("password does not match confirm password")

	// Token related errors
	ErrInvalidRefreshToken   = errors.New("invalid refresh token")
	ErrTokenNotFound         = errors.New("token not found")
	ErrDuplicateRefreshToken = errors.New("duplicate refresh token")
	ErrInvalidAccessToken    = errors.New("invalid access token")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")

	// Startup errors
	ErrConfiguration = errors.New("invalid authentication configuration")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
