package services

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
	"github.com/dmitrijs2005/captionkeeper/internal/common"
)

// decodeUser reads the access token payload without verifying the
// signature. The result is display data only; the server remains the
// authority. A payload without id or email is rejected.
func decodeUser(accessToken string) (models.User, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return models.User{}, fmt.Errorf("%w: %w", common.ErrMalformedToken, err)
	}

	u := models.User{
		ID:                claimString(claims, "id"),
		Email:             claimString(claims, "email"),
		Username:          claimString(claims, "username"),
		IsActive:          claimBool(claims, "is_active"),
		IsVerified:        claimBool(claims, "is_verified"),
		PostedCount:       claimInt(claims, "posted_count"),
		FavoritesGiven:    claimInt(claims, "favorites_given"),
		FavoritesReceived: claimInt(claims, "favorites_received"),
		UpdatedAt:         claimTime(claims, "updated_at"),
	}
	if u.ID == "" || u.Email == "" {
		return models.User{}, fmt.Errorf("%w: id and email are required", common.ErrMalformedToken)
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		u.ExpiresAt = exp.Time
	}
	return u, nil
}

func claimString(c jwt.MapClaims, key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func claimBool(c jwt.MapClaims, key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

func claimInt(c jwt.MapClaims, key string) int {
	switch v := c[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func claimTime(c jwt.MapClaims, key string) time.Time {
	switch v := c[key].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC()
	case string:
		var ts models.Timestamp
		if err := ts.UnmarshalJSON([]byte(strconv.Quote(v))); err == nil {
			return ts.Time
		}
	}
	return time.Time{}
}
