package auth

import "errors"

// Authentication failure taxonomy. All of these map to 4xx responses;
// none are retried internally.
var (
	ErrInvalidAssertion = errors.New("invalid login assertion signature")
	ErrAssertionExpired = errors.New("login assertion has expired")
	ErrUserBanned       = errors.New("user is banned")

	ErrInvalidToken   = errors.New("token is invalid")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenRevoked   = errors.New("token has been revoked")
	ErrWrongTokenType = errors.New("wrong token type")

	ErrSessionNotFound = errors.New("session not found")

	// ErrDeviceMismatch 仅在 fingerprint_policy = reject 时返回
	ErrDeviceMismatch = errors.New("device fingerprint mismatch")
)
