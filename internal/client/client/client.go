package client

import (
	"context"

	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
)

// AuthAPI is the slice of the backend used by the session manager.
type AuthAPI interface {
	Login(ctx context.Context, email, password, captchaToken string) (models.Tokens, error)
	Register(ctx context.Context, email, password, captchaToken string) error
	// RefreshToken returns a new access token; RefreshToken in the result is
	// empty when the server does not rotate refresh tokens.
	RefreshToken(ctx context.Context, refreshToken string) (models.Tokens, error)
	GoogleLogin(ctx context.Context, oauthAccessToken string) (models.Tokens, error)
	ChangeUsername(ctx context.Context, username string) (string, error)
}

// CaptionAPI is the slice of the backend used by the caption feed. Calls that
// need authorization read the bearer token from the context (WithAccessToken).
type CaptionAPI interface {
	ListCaptions(ctx context.Context, limit int, nextToken string) (models.CursorPage, error)
	TrendingCaptions(ctx context.Context, limit int, nextToken string) (models.CursorPage, error)
	SearchCaptions(ctx context.Context, query string, page int) (models.SearchPage, error)
	CreateCaption(ctx context.Context, draft models.CaptionDraft, author string) (models.Caption, error)
	DeleteCaption(ctx context.Context, id string) error
	AddFavorite(ctx context.Context, userID, postID string) error
	RemoveFavorite(ctx context.Context, userID, postID string) error
}

// Client is the full backend contract.
type Client interface {
	AuthAPI
	CaptionAPI
	Close() error
}
