package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/captionkeeper/internal/common"
)

// DefaultGoogleUserInfoURL is Google's OpenID userinfo endpoint.
const DefaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// IdentityVerifier checks a third-party OAuth access token before it is
// handed to the backend.
type IdentityVerifier interface {
	Verify(ctx context.Context, oauthAccessToken string) error
}

// GoogleVerifier validates a Google access token by calling the userinfo
// endpoint with it.
type GoogleVerifier struct {
	userInfoURL string
	base        *http.Client
}

// NewGoogleVerifier builds a verifier; base may be nil.
func NewGoogleVerifier(userInfoURL string, base *http.Client) *GoogleVerifier {
	if userInfoURL == "" {
		userInfoURL = DefaultGoogleUserInfoURL
	}
	if base == nil {
		base = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleVerifier{userInfoURL: userInfoURL, base: base}
}

func (v *GoogleVerifier) Verify(ctx context.Context, oauthAccessToken string) error {
	if oauthAccessToken == "" {
		return common.ErrInvalidToken
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: oauthAccessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return common.ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: identity provider returned %d", common.ErrServer, resp.StatusCode)
	}

	var info struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}
	if info.Sub == "" {
		return common.ErrInvalidToken
	}
	return nil
}
