package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/captionkeeper/internal/client/client"
	"github.com/dmitrijs2005/captionkeeper/internal/client/config"
	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
	"github.com/dmitrijs2005/captionkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/captionkeeper/internal/client/services"
	"github.com/dmitrijs2005/captionkeeper/internal/filex"
	"github.com/dmitrijs2005/captionkeeper/internal/logging"
)

// sessionService is the part of services.SessionManager the CLI uses.
type sessionService interface {
	Login(ctx context.Context, email, password, captchaToken string) (models.User, error)
	Register(ctx context.Context, email, password, captchaToken string) (models.User, error)
	GoogleAuth(ctx context.Context, oauthAccessToken string) (models.User, error)
	Logout(ctx context.Context)
	Restore(ctx context.Context) error
	CurrentUser(ctx context.Context) *models.User
	SignedInUser() *models.User
	ChangeUsername(ctx context.Context, username string) (models.User, error)
	Close()
}

// feedService is the part of services.CaptionFeed the CLI uses.
type feedService interface {
	FetchPage(ctx context.Context, cursor string) models.FeedState
	FetchTrending(ctx context.Context, cursor string) models.FeedState
	LoadMore(ctx context.Context) models.FeedState
	Search(ctx context.Context, query string, page int) models.FeedState
	ClearSearch() models.FeedState
	ToggleFavorite(ctx context.Context, id string) error
	Flush(ctx context.Context) error
	AddCaption(ctx context.Context, draft models.CaptionDraft) (models.Caption, error)
	DeleteCaption(ctx context.Context, id string) error
	State() models.FeedState
	View(filter models.ViewFilter) []models.Caption
}

type App struct {
	config  *config.Config
	session sessionService
	feed    feedService
	log     logging.Logger
	reader  *bufio.Reader
	out     io.Writer
	closers []io.Closer
}

// NewApp opens local storage, builds the API client and both services.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewTextLogger(os.Stderr, c.LogLevel)

	if _, err := filex.EnsureParentDir(c.StoragePath); err != nil {
		return nil, fmt.Errorf("error preparing storage: %w", err)
	}

	db, err := client.InitDatabase(ctx, c.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	api, err := client.NewHTTPClient(c.APIBaseURL, client.HTTPOptions{
		Timeout:   c.RequestTimeout,
		RateLimit: c.RateLimit,
		RateBurst: c.RateBurst,
		Logger:    logger.With("component", "api"),
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a, err := newApp(ctx, c, db, api, logger)
	if err != nil {
		_ = api.Close()
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func newApp(ctx context.Context, c *config.Config, db *sql.DB, api client.Client, logger logging.Logger) (*App, error) {
	favorites, err := services.LoadLocalFavorites(ctx, metadata.NewSQLiteRepository(db))
	if err != nil {
		return nil, err
	}

	a := &App{
		config:  c,
		log:     logger,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		closers: []io.Closer{api, db},
	}

	session := services.NewSessionManager(api, services.NewSQLTokenStore(db), services.SessionOptions{
		RefreshBuffer: c.RefreshBuffer,
		Verifier:      services.NewGoogleVerifier(c.GoogleUserInfoURL, nil),
		Logger:        logger.With("component", "session"),
		OnExpired: func(error) {
			a.println("Session expired, please sign in again.")
		},
	})
	a.session = session

	a.feed = services.NewCaptionFeed(api, session, services.FeedOptions{
		PageSize:  c.PageSize,
		Debounce:  c.FavoriteDebounce,
		Favorites: favorites,
		Logger:    logger.With("component", "feed"),
		OnFavoriteError: func(id string, err error) {
			a.println(fmt.Sprintf("Could not update favorite %s: %v", id, err))
		},
	})
	return a, nil
}

// Run restores the previous session, loads the first page and blocks in the
// REPL until the user leaves.
func (a *App) Run(ctx context.Context) {
	defer a.Close(ctx)

	if err := a.session.Restore(ctx); err != nil {
		a.log.Warn(ctx, "restore session", "error", err)
	}
	a.println("Welcome to captionkeeper (type 'help' for commands)")
	_ = a.List(ctx, nil)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

// Close sends pending favorite changes and releases resources.
func (a *App) Close(ctx context.Context) {
	if err := a.feed.Flush(ctx); err != nil {
		a.log.Warn(ctx, "flush favorites", "error", err)
	}
	a.session.Close()
	for _, c := range a.closers {
		_ = c.Close()
	}
}

// isLoggedIn and getStatus run on every prompt and must not wait on a
// token refresh.
func (a *App) isLoggedIn() bool {
	return a.session.SignedInUser() != nil
}

func (a *App) getStatus() string {
	parts := make([]string, 0, 2)
	if u := a.session.SignedInUser(); u != nil {
		parts = append(parts, u.DisplayName())
	}
	st := a.feed.State()
	switch {
	case st.Mode == models.FeedModeSearch:
		parts = append(parts, fmt.Sprintf("search %q", st.Query))
	case st.Source == models.FeedSourceTrending:
		parts = append(parts, "trending")
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}
