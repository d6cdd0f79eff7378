package models

import "time"

// Tokens is the credential pair held by the session.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// User is the identity derived from the access token payload. It is for
// display only and must never be trusted for authorization.
type User struct {
	ID                string
	Email             string
	Username          string
	IsActive          bool
	IsVerified        bool
	PostedCount       int
	FavoritesGiven    int
	FavoritesReceived int
	UpdatedAt         time.Time
	ExpiresAt         time.Time
}

// DisplayName falls back to the email when no username is set.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
