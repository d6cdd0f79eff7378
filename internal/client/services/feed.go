package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/captionkeeper/internal/client/client"
	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
	"github.com/dmitrijs2005/captionkeeper/internal/common"
	"github.com/dmitrijs2005/captionkeeper/internal/logging"
)

const (
	DefaultPageSize         = 21
	DefaultFavoriteDebounce = 500 * time.Millisecond
)

// Viewer identifies who is looking at the feed. SessionManager implements
// it; an empty access token means an anonymous viewer.
type Viewer interface {
	AccessToken(ctx context.Context) string
	CurrentUser(ctx context.Context) *models.User
}

// FeedOptions tunes a CaptionFeed. Zero values select defaults.
type FeedOptions struct {
	PageSize int
	Debounce time.Duration

	// Favorites is the anonymous favorite set. When nil an in-memory set is
	// used.
	Favorites *LocalFavorites

	// OnFavoriteError receives failures of debounced favorite commits after
	// they have been rolled back.
	OnFavoriteError func(id string, err error)

	Logger logging.Logger
}

// browseSnapshot is the authoritative browse listing kept aside while the
// feed shows search results.
type browseSnapshot struct {
	items     []models.Caption
	source    models.FeedSource
	nextToken string
	hasMore   bool
	limit     int
	total     int
}

// CaptionFeed is the client-side caption list. Item slices are never
// modified in place: every change builds a new slice, so a slice handed out
// under the lock stays valid after it is released.
type CaptionFeed struct {
	api      client.CaptionAPI
	viewer   Viewer
	local    *LocalFavorites
	log      logging.Logger
	pageSize int
	debounce time.Duration
	onFavErr func(string, error)

	mu    sync.Mutex
	items []models.Caption
	mode  models.FeedMode

	source    models.FeedSource
	nextToken string
	hasMore   bool
	limit     int

	query    string
	page     int
	perPage  int
	total    int
	err      error
	fetching bool

	cache browseSnapshot

	// browseGen is bumped by every FetchPage so older fetches and
	// LoadMore calls drop their results.
	browseGen     uint64
	loadingMore   bool
	loadingCursor string

	searchSeq    uint64
	searchCancel context.CancelFunc

	pending    map[string]*pendingToggle
	committing map[string]bool
	inflight   int
	idle       *sync.Cond
}

func NewCaptionFeed(api client.CaptionAPI, viewer Viewer, opts FeedOptions) *CaptionFeed {
	f := &CaptionFeed{
		api:        api,
		viewer:     viewer,
		local:      opts.Favorites,
		log:        opts.Logger,
		pageSize:   opts.PageSize,
		debounce:   opts.Debounce,
		onFavErr:   opts.OnFavoriteError,
		mode:       models.FeedModeBrowse,
		source:     models.FeedSourceAll,
		pending:    make(map[string]*pendingToggle),
		committing: make(map[string]bool),
	}
	f.idle = sync.NewCond(&f.mu)
	if f.log == nil {
		f.log = logging.NopLogger{}
	}
	if f.pageSize <= 0 {
		f.pageSize = DefaultPageSize
	}
	if f.debounce <= 0 {
		f.debounce = DefaultFavoriteDebounce
	}
	if f.local == nil {
		f.local = &LocalFavorites{ids: make(map[string]struct{})}
	}
	f.cache.source = models.FeedSourceAll
	return f
}

// FetchPage loads the "all" listing starting at cursor and replaces the
// feed with it. An empty cursor starts from the top.
func (f *CaptionFeed) FetchPage(ctx context.Context, cursor string) models.FeedState {
	return f.fetch(ctx, models.FeedSourceAll, cursor)
}

// FetchTrending is FetchPage over the trending listing.
func (f *CaptionFeed) FetchTrending(ctx context.Context, cursor string) models.FeedState {
	return f.fetch(ctx, models.FeedSourceTrending, cursor)
}

func (f *CaptionFeed) fetch(ctx context.Context, source models.FeedSource, cursor string) models.FeedState {
	token := f.viewer.AccessToken(ctx)

	f.mu.Lock()
	f.cancelSearchLocked()
	f.browseGen++
	gen := f.browseGen
	f.loadingMore, f.loadingCursor = false, ""
	f.fetching = true
	f.mu.Unlock()

	page, err := f.list(withToken(ctx, token), source, cursor)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.browseGen {
		f.log.Debug(ctx, "discarding superseded fetch", "source", source, "cursor", cursor)
		return f.stateLocked()
	}
	f.fetching = false
	if err != nil {
		if f.mode == models.FeedModeSearch {
			// The search was cancelled above; fall back to the listing.
			f.restoreBrowseLocked()
		}
		f.err = err
		f.log.Warn(ctx, "fetch captions", "source", source, "error", err)
		return f.stateLocked()
	}

	items := f.overlay(page.Captions, token == "")
	f.mode = models.FeedModeBrowse
	f.items = items
	f.source = source
	f.nextToken = page.NextToken
	f.hasMore = page.HasMore
	f.limit = page.Limit
	f.total = len(items)
	f.query, f.page, f.perPage = "", 0, 0
	f.err = nil
	f.syncCacheLocked()
	return f.stateLocked()
}

// LoadMore appends the next page of the active browse listing. It does
// nothing in search mode, when there is no further page, or while the same
// cursor is already being loaded.
func (f *CaptionFeed) LoadMore(ctx context.Context) models.FeedState {
	f.mu.Lock()
	cursor, source := f.nextToken, f.source
	if f.mode != models.FeedModeBrowse || cursor == "" || !f.hasMore ||
		(f.loadingMore && f.loadingCursor == cursor) {
		defer f.mu.Unlock()
		return f.stateLocked()
	}
	f.loadingMore, f.loadingCursor = true, cursor
	gen := f.browseGen
	f.mu.Unlock()

	token := f.viewer.AccessToken(ctx)
	page, err := f.list(withToken(ctx, token), source, cursor)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.browseGen {
		return f.stateLocked()
	}
	f.loadingMore, f.loadingCursor = false, ""
	if err != nil {
		f.err = err
		f.log.Warn(ctx, "load more captions", "cursor", cursor, "error", err)
		return f.stateLocked()
	}

	more := f.overlay(page.Captions, token == "")
	switch {
	case f.mode == models.FeedModeBrowse && f.nextToken == cursor:
		f.items = concat(f.items, more)
		f.nextToken = page.NextToken
		f.hasMore = page.HasMore
		f.total = len(f.items)
		f.err = nil
		f.syncCacheLocked()
	case f.mode == models.FeedModeSearch && f.cache.nextToken == cursor:
		// A search started meanwhile; extend the listing it will restore.
		f.cache.items = concat(f.cache.items, more)
		f.cache.nextToken = page.NextToken
		f.cache.hasMore = page.HasMore
		f.cache.total = len(f.cache.items)
	}
	return f.stateLocked()
}

// Search shows page of the results for query. A newer Search, FetchPage or
// ClearSearch cancels this one and its result is dropped. A blank query
// clears the search.
func (f *CaptionFeed) Search(ctx context.Context, query string, page int) models.FeedState {
	query = strings.TrimSpace(query)
	if query == "" {
		return f.ClearSearch()
	}
	if page < 1 {
		page = 1
	}

	token := f.viewer.AccessToken(ctx)

	f.mu.Lock()
	f.cancelSearchLocked()
	sctx, cancel := context.WithCancel(ctx)
	f.searchSeq++
	seq := f.searchSeq
	f.searchCancel = cancel
	f.mode = models.FeedModeSearch
	f.query = query
	f.page = page
	f.mu.Unlock()
	defer cancel()

	res, err := f.api.SearchCaptions(withToken(sctx, token), query, page)

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq != f.searchSeq {
		f.log.Debug(ctx, "discarding stale search", "query", query)
		return f.stateLocked()
	}
	f.searchCancel = nil
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			f.err = err
			f.log.Warn(ctx, "search captions", "query", query, "error", err)
		}
		return f.stateLocked()
	}

	f.items = f.overlay(res.Captions, token == "")
	f.total = res.Total
	if res.Page > 0 {
		f.page = res.Page
	}
	f.perPage = res.PageSize
	f.err = nil
	return f.stateLocked()
}

// ClearSearch leaves search mode and shows the browse listing exactly as it
// was before the search, cursor included.
func (f *CaptionFeed) ClearSearch() models.FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelSearchLocked()
	f.restoreBrowseLocked()
	f.err = nil
	return f.stateLocked()
}

// restoreBrowseLocked puts the browse listing kept in cache back on screen.
func (f *CaptionFeed) restoreBrowseLocked() {
	f.mode = models.FeedModeBrowse
	f.items = f.cache.items
	f.source = f.cache.source
	f.nextToken = f.cache.nextToken
	f.hasMore = f.cache.hasMore
	f.limit = f.cache.limit
	f.total = f.cache.total
	f.query, f.page, f.perPage = "", 0, 0
}

// AddCaption creates a caption on the server and appends it to the feed.
func (f *CaptionFeed) AddCaption(ctx context.Context, draft models.CaptionDraft) (models.Caption, error) {
	if err := draft.Validate(); err != nil {
		return models.Caption{}, fmt.Errorf("%w: %w", common.ErrCreation, err)
	}

	token := f.viewer.AccessToken(ctx)
	user := f.viewer.CurrentUser(ctx)
	if token == "" || user == nil {
		return models.Caption{}, fmt.Errorf("%w: %w", common.ErrCreation, common.ErrNotAuthenticated)
	}

	c, err := f.api.CreateCaption(withToken(ctx, token), draft, user.ID)
	if err != nil {
		return models.Caption{}, fmt.Errorf("%w: %w", common.ErrCreation, err)
	}
	c.IsFavorite = false
	if c.Author == "" {
		c.Author = user.ID
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = concat(f.items, []models.Caption{c})
	f.total++
	if f.mode == models.FeedModeBrowse {
		f.syncCacheLocked()
	} else {
		f.cache.items = concat(f.cache.items, []models.Caption{c})
		f.cache.total++
	}

	f.log.Info(ctx, "caption created", "id", c.ID, "type", c.Type, "icon_uploaded", draft.HasIcon())
	return c.Clone(), nil
}

// DeleteCaption deletes on the server first and only then drops the caption
// from the feed.
func (f *CaptionFeed) DeleteCaption(ctx context.Context, id string) error {
	token := f.viewer.AccessToken(ctx)
	if token == "" {
		return fmt.Errorf("%w: %w", common.ErrDeletion, common.ErrNotAuthenticated)
	}

	if err := f.api.DeleteCaption(withToken(ctx, token), id); err != nil {
		return fmt.Errorf("%w: %w", common.ErrDeletion, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.pending[id]; p != nil {
		p.timer.Stop()
		delete(f.pending, id)
	}
	if items, ok := without(f.items, id); ok {
		f.items = items
		f.total--
	}
	if items, ok := without(f.cache.items, id); ok {
		f.cache.items = items
		f.cache.total--
	}

	f.log.Info(ctx, "caption deleted", "id", id)
	return nil
}

// State returns a copy of the feed.
func (f *CaptionFeed) State() models.FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

// View returns the visible subset of the feed for filter.
func (f *CaptionFeed) View(filter models.ViewFilter) []models.Caption {
	f.mu.Lock()
	items := f.items
	f.mu.Unlock()
	return FilterCaptions(items, filter)
}

func (f *CaptionFeed) list(ctx context.Context, source models.FeedSource, cursor string) (models.CursorPage, error) {
	if source == models.FeedSourceTrending {
		return f.api.TrendingCaptions(ctx, f.pageSize, cursor)
	}
	return f.api.ListCaptions(ctx, f.pageSize, cursor)
}

// overlay copies a page into the feed, applying the local favorite set for
// anonymous viewers.
func (f *CaptionFeed) overlay(page []models.Caption, anonymous bool) []models.Caption {
	out := make([]models.Caption, len(page))
	for i, c := range page {
		out[i] = c.Clone()
		if anonymous {
			out[i].IsFavorite = f.local.Has(c.ID)
		}
	}
	return out
}

func (f *CaptionFeed) cancelSearchLocked() {
	if f.searchCancel != nil {
		f.searchCancel()
		f.searchCancel = nil
	}
	f.searchSeq++
}

func (f *CaptionFeed) syncCacheLocked() {
	f.cache = browseSnapshot{
		items:     f.items,
		source:    f.source,
		nextToken: f.nextToken,
		hasMore:   f.hasMore,
		limit:     f.limit,
		total:     f.total,
	}
}

// updateLocked rewrites caption id in both the visible items and the
// browse snapshot.
func (f *CaptionFeed) updateLocked(id string, fn func(c *models.Caption)) {
	f.items = replaced(f.items, id, fn)
	f.cache.items = replaced(f.cache.items, id, fn)
}

func (f *CaptionFeed) findLocked(id string) (models.Caption, bool) {
	if i := indexOf(f.items, id); i >= 0 {
		return f.items[i], true
	}
	if i := indexOf(f.cache.items, id); i >= 0 {
		return f.cache.items[i], true
	}
	return models.Caption{}, false
}

func (f *CaptionFeed) stateLocked() models.FeedState {
	items := make([]models.Caption, len(f.items))
	for i, c := range f.items {
		items[i] = c.Clone()
	}
	return models.FeedState{
		Items:     items,
		Mode:      f.mode,
		Source:    f.source,
		NextToken: f.nextToken,
		HasMore:   f.hasMore,
		Limit:     f.limit,
		Query:     f.query,
		Page:      f.page,
		PageSize:  f.perPage,
		Total:     f.total,
		Loading:   f.fetching || f.loadingMore || f.searchCancel != nil,
		Err:       f.err,
	}
}

func withToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return client.WithAccessToken(ctx, token)
}

func indexOf(items []models.Caption, id string) int {
	return slices.IndexFunc(items, func(c models.Caption) bool { return c.ID == id })
}

func concat(a, b []models.Caption) []models.Caption {
	out := make([]models.Caption, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// replaced returns a copy of items with fn applied to caption id, or items
// itself when id is absent.
func replaced(items []models.Caption, id string, fn func(c *models.Caption)) []models.Caption {
	i := indexOf(items, id)
	if i < 0 {
		return items
	}
	out := slices.Clone(items)
	fn(&out[i])
	return out
}

func without(items []models.Caption, id string) ([]models.Caption, bool) {
	i := indexOf(items, id)
	if i < 0 {
		return items, false
	}
	out := make([]models.Caption, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...), true
}
