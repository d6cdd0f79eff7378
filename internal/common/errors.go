// Package common defines shared constants and sentinel errors used across
// the captionkeeper client layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Auth errors surfaced to the UI.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMethodNotAllowed   = errors.New("account uses a different sign-in method")
	ErrInvalidToken       = errors.New("invalid token")
	ErrAccountNotFound    = errors.New("account not found")

	// Token lifecycle errors.
	ErrNoRefreshToken   = errors.New("no refresh token")
	ErrRefreshRejected  = errors.New("refresh token rejected")
	ErrSessionExpired   = errors.New("session expired, please sign in again")
	ErrNotAuthenticated = errors.New("not authenticated")

	// Data errors.
	ErrMalformedToken = errors.New("malformed token payload")
	ErrMissingField   = errors.New("missing required field")
	ErrNotFound       = errors.New("not found")

	// Mutation errors.
	ErrCreation = errors.New("caption creation failed")
	ErrDeletion = errors.New("caption deletion failed")
	ErrFavorite = errors.New("favorite update failed")

	ErrServer = errors.New("server error")
)
