package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/captionkeeper/internal/client/client"
	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
)

var _ Viewer = (*SessionManager)(nil)

// fakeCaptionAPI is a scriptable client.CaptionAPI.
type fakeCaptionAPI struct {
	mu sync.Mutex

	listFn     func(ctx context.Context, limit int, next string) (models.CursorPage, error)
	trendingFn func(ctx context.Context, limit int, next string) (models.CursorPage, error)
	searchFn   func(ctx context.Context, query string, page int) (models.SearchPage, error)
	createFn   func(ctx context.Context, draft models.CaptionDraft, author string) (models.Caption, error)
	deleteErr  error
	favErr     error
	favFn      func(ctx context.Context, add bool, userID, postID string) error

	calls  []string
	tokens []string
}

func (f *fakeCaptionAPI) record(ctx context.Context, call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	f.tokens = append(f.tokens, client.AccessTokenFromContext(ctx))
}

func (f *fakeCaptionAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCaptionAPI) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func (f *fakeCaptionAPI) ListCaptions(ctx context.Context, limit int, next string) (models.CursorPage, error) {
	f.record(ctx, "list:"+next)
	if f.listFn == nil {
		return models.CursorPage{}, nil
	}
	return f.listFn(ctx, limit, next)
}

func (f *fakeCaptionAPI) TrendingCaptions(ctx context.Context, limit int, next string) (models.CursorPage, error) {
	f.record(ctx, "trending:"+next)
	if f.trendingFn == nil {
		return models.CursorPage{}, nil
	}
	return f.trendingFn(ctx, limit, next)
}

func (f *fakeCaptionAPI) SearchCaptions(ctx context.Context, query string, page int) (models.SearchPage, error) {
	f.record(ctx, fmt.Sprintf("search:%s:%d", query, page))
	if f.searchFn == nil {
		return models.SearchPage{}, nil
	}
	return f.searchFn(ctx, query, page)
}

func (f *fakeCaptionAPI) CreateCaption(ctx context.Context, draft models.CaptionDraft, author string) (models.Caption, error) {
	f.record(ctx, "create:"+author)
	if f.createFn == nil {
		return models.Caption{}, nil
	}
	return f.createFn(ctx, draft, author)
}

func (f *fakeCaptionAPI) DeleteCaption(ctx context.Context, id string) error {
	f.record(ctx, "delete:"+id)
	return f.deleteErr
}

func (f *fakeCaptionAPI) AddFavorite(ctx context.Context, userID, postID string) error {
	f.record(ctx, "fav:add:"+userID+":"+postID)
	if f.favFn != nil {
		return f.favFn(ctx, true, userID, postID)
	}
	return f.favErr
}

func (f *fakeCaptionAPI) RemoveFavorite(ctx context.Context, userID, postID string) error {
	f.record(ctx, "fav:remove:"+userID+":"+postID)
	if f.favFn != nil {
		return f.favFn(ctx, false, userID, postID)
	}
	return f.favErr
}

// staticViewer is a fixed viewer; a nil user means anonymous.
type staticViewer struct {
	user *models.User
}

func (v staticViewer) AccessToken(context.Context) string {
	if v.user == nil {
		return ""
	}
	return "token-" + v.user.ID
}

func (v staticViewer) CurrentUser(context.Context) *models.User {
	if v.user == nil {
		return nil
	}
	u := *v.user
	return &u
}

var (
	anonymous = staticViewer{}
	signedIn  = staticViewer{user: &models.User{ID: "u1", Email: "u1@example.com"}}
)

// makeCaptions builds n captions with ids prefix0..prefixN-1, newest first.
func makeCaptions(prefix string, n int) []models.Caption {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := make([]models.Caption, n)
	for i := range out {
		out[i] = models.Caption{
			ID:        fmt.Sprintf("%s%d", prefix, i),
			Text:      fmt.Sprintf("caption %s%d", prefix, i),
			Type:      models.CaptionTypeBackground,
			CreatedAt: models.NewTimestamp(base.Add(-time.Duration(i) * time.Minute)),
		}
	}
	return out
}

func pageOf(items []models.Caption, next string) models.CursorPage {
	return models.CursorPage{Captions: items, HasMore: next != "", NextToken: next, Limit: len(items)}
}

func ids(items []models.Caption) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.ID
	}
	return out
}

func newTestFeed(t *testing.T, api *fakeCaptionAPI, viewer Viewer, opts FeedOptions) *CaptionFeed {
	t.Helper()
	if opts.Debounce == 0 {
		opts.Debounce = 10 * time.Millisecond
	}
	f := NewCaptionFeed(api, viewer, opts)
	t.Cleanup(func() { _ = f.Flush(context.Background()) })
	return f
}

// favCalls filters Calls down to favorite writes.
func (f *fakeCaptionAPI) favCalls() []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, "fav:") {
			out = append(out, c)
		}
	}
	return out
}
