package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/captionkeeper/internal/client/client"
	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
	"github.com/dmitrijs2005/captionkeeper/internal/common"
	"github.com/dmitrijs2005/captionkeeper/internal/logging"
)

// SessionState is the lifecycle state of a SessionManager.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

const (
	DefaultRefreshBuffer  = 5 * time.Minute
	DefaultRetryInterval  = 30 * time.Second
	DefaultRefreshTimeout = 30 * time.Second

	refreshKey = "refresh"
)

// SessionOptions tunes a SessionManager. Zero values select defaults.
type SessionOptions struct {
	// RefreshBuffer is how long before expiry a token counts as stale.
	RefreshBuffer time.Duration
	// RetryInterval delays the next attempt after a transient refresh
	// failure while the current token is still valid.
	RetryInterval  time.Duration
	RefreshTimeout time.Duration

	Now func() time.Time

	// OnExpired is called, outside any lock, when a refresh failure ends
	// the session.
	OnExpired func(error)

	// Verifier checks OAuth tokens before GoogleAuth exchanges them. When
	// nil the token goes straight to the backend.
	Verifier IdentityVerifier

	Logger logging.Logger
}

// SessionManager owns the access/refresh token pair and the identity
// decoded from it. It keeps the pair fresh with one timer and makes sure at
// most one refresh call is in flight.
type SessionManager struct {
	api      client.AuthAPI
	store    TokenStore
	verifier IdentityVerifier
	log      logging.Logger

	buffer         time.Duration
	retry          time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
	onExpired      func(error)

	group singleflight.Group

	mu       sync.Mutex
	state    SessionState
	tokens   models.Tokens
	user     *models.User
	username string // override set by ChangeUsername
	// refreshAt is when reads start forcing a refresh. Zero means never.
	refreshAt time.Time
	timer     *time.Timer
	// gen is bumped whenever the session is replaced or cleared, so late
	// results of older operations can be recognised and dropped.
	gen    uint64
	closed bool
}

func NewSessionManager(api client.AuthAPI, store TokenStore, opts SessionOptions) *SessionManager {
	s := &SessionManager{
		api:            api,
		store:          store,
		verifier:       opts.Verifier,
		log:            opts.Logger,
		buffer:         opts.RefreshBuffer,
		retry:          opts.RetryInterval,
		refreshTimeout: opts.RefreshTimeout,
		now:            opts.Now,
		onExpired:      opts.OnExpired,
	}
	if s.log == nil {
		s.log = logging.NopLogger{}
	}
	if s.buffer <= 0 {
		s.buffer = DefaultRefreshBuffer
	}
	if s.retry <= 0 {
		s.retry = DefaultRetryInterval
	}
	if s.refreshTimeout <= 0 {
		s.refreshTimeout = DefaultRefreshTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Login authenticates with email and password.
func (s *SessionManager) Login(ctx context.Context, email, password, captchaToken string) (models.User, error) {
	gen := s.beginAuth(ctx)

	tokens, err := s.api.Login(ctx, email, password, captchaToken)
	if err != nil {
		s.abortAuth(ctx, gen)
		return models.User{}, mapLoginError(err)
	}
	return s.establish(ctx, gen, tokens)
}

// Register creates the account and signs in with the same credentials.
func (s *SessionManager) Register(ctx context.Context, email, password, captchaToken string) (models.User, error) {
	gen := s.beginAuth(ctx)

	if err := s.api.Register(ctx, email, password, captchaToken); err != nil {
		s.abortAuth(ctx, gen)
		return models.User{}, fmt.Errorf("register: %w", err)
	}

	tokens, err := s.api.Login(ctx, email, password, captchaToken)
	if err != nil {
		s.abortAuth(ctx, gen)
		return models.User{}, mapLoginError(err)
	}
	return s.establish(ctx, gen, tokens)
}

// GoogleAuth verifies the OAuth access token with the identity provider and
// only then exchanges it with the backend.
func (s *SessionManager) GoogleAuth(ctx context.Context, oauthAccessToken string) (models.User, error) {
	gen := s.beginAuth(ctx)

	if s.verifier != nil {
		if err := s.verifier.Verify(ctx, oauthAccessToken); err != nil {
			s.abortAuth(ctx, gen)
			if errors.Is(err, common.ErrInvalidToken) || errors.Is(err, common.ErrServer) {
				return models.User{}, err
			}
			return models.User{}, fmt.Errorf("%w: %w", common.ErrServer, err)
		}
	}

	tokens, err := s.api.GoogleLogin(ctx, oauthAccessToken)
	if err != nil {
		s.abortAuth(ctx, gen)
		return models.User{}, mapGoogleError(err)
	}
	return s.establish(ctx, gen, tokens)
}

// Restore reinstates a session persisted by an earlier run. A stale token is
// refreshed before Restore returns.
func (s *SessionManager) Restore(ctx context.Context) error {
	tokens, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil
	}

	user, err := decodeUser(tokens.AccessToken)
	if err != nil {
		s.Logout(ctx)
		return err
	}

	s.mu.Lock()
	s.resetLocked()
	s.tokens = tokens
	s.user = &user
	s.state = StateAuthenticated
	s.scheduleLocked(user.ExpiresAt, false)
	due := s.dueLocked()
	if due {
		// Refreshed synchronously below; the commit arms a new timer.
		s.stopTimerLocked()
	}
	s.mu.Unlock()

	s.log.Info(ctx, "session restored", "user_id", user.ID, "expires_at", user.ExpiresAt)

	if due {
		if _, err := s.Refresh(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Refresh exchanges the refresh token for a new access token. Concurrent
// callers share one network call and its result.
func (s *SessionManager) Refresh(ctx context.Context) (models.Tokens, error) {
	// The shared call must outlive any single caller.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(refreshKey, func() (any, error) {
		return s.doRefresh(shared)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.Tokens{}, res.Err
		}
		return res.Val.(models.Tokens), nil
	case <-ctx.Done():
		return models.Tokens{}, ctx.Err()
	}
}

func (s *SessionManager) doRefresh(ctx context.Context) (models.Tokens, error) {
	s.mu.Lock()
	gen := s.gen
	current := s.tokens
	if current.RefreshToken == "" {
		hadSession := current.AccessToken != ""
		s.mu.Unlock()
		if hadSession {
			s.expire(ctx, gen, common.ErrNoRefreshToken)
		}
		return models.Tokens{}, common.ErrNoRefreshToken
	}
	s.state = StateRefreshing
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
	defer cancel()

	fresh, err := s.api.RefreshToken(callCtx, current.RefreshToken)
	if err == nil && fresh.AccessToken == "" {
		err = fmt.Errorf("empty access token: %w", common.ErrMalformedToken)
	}
	if err != nil {
		return models.Tokens{}, s.refreshFailed(ctx, gen, err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = current.RefreshToken
	}

	user, err := decodeUser(fresh.AccessToken)
	if err != nil {
		return models.Tokens{}, s.refreshFailed(ctx, gen, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// Logged out or replaced while the call was in flight.
		return models.Tokens{}, common.ErrSessionExpired
	}
	s.commitLocked(ctx, fresh, user, true)

	s.log.Debug(ctx, "access token refreshed", "user_id", user.ID, "expires_at", user.ExpiresAt)
	return fresh, nil
}

// refreshFailed keeps the session through transient failures while the
// current token is still valid and ends it otherwise.
func (s *SessionManager) refreshFailed(ctx context.Context, gen uint64, cause error) error {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return common.ErrSessionExpired
	}

	now := s.now()
	if isTransient(cause) && s.user != nil && now.Before(s.user.ExpiresAt) {
		s.state = StateAuthenticated
		retryAt := now.Add(s.retry)
		if retryAt.After(s.user.ExpiresAt) {
			retryAt = s.user.ExpiresAt
		}
		s.refreshAt = retryAt
		s.startTimerLocked(retryAt.Sub(now))
		s.mu.Unlock()

		s.log.Warn(ctx, "token refresh failed, will retry", "error", cause, "retry_at", retryAt)
		return fmt.Errorf("%w: %w", common.ErrRefreshRejected, cause)
	}
	s.mu.Unlock()

	err := fmt.Errorf("%w: %w", common.ErrRefreshRejected, cause)
	s.expire(ctx, gen, err)
	return err
}

// expire clears the session of generation gen and notifies the owner.
func (s *SessionManager) expire(ctx context.Context, gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.clearLocked(ctx)
	s.mu.Unlock()

	s.log.Warn(ctx, "session expired", "error", cause)
	if s.onExpired != nil {
		s.onExpired(fmt.Errorf("%w: %w", common.ErrSessionExpired, cause))
	}
}

// Logout drops the session from memory and storage. Any refresh still in
// flight is ignored when it completes.
func (s *SessionManager) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(ctx)
}

// AuthHeader returns the Authorization header for the current session or an
// empty map.
func (s *SessionManager) AuthHeader(ctx context.Context) map[string]string {
	token := s.AccessToken(ctx)
	if token == "" {
		return map[string]string{}
	}
	return map[string]string{common.AuthorizationHeaderName: "Bearer " + token}
}

// AccessToken returns the bearer token, refreshing it first when it is
// inside the expiry buffer. An empty string means no usable session.
func (s *SessionManager) AccessToken(ctx context.Context) string {
	s.ensureFresh(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiredLocked() {
		return ""
	}
	return s.tokens.AccessToken
}

// CurrentUser returns the identity decoded from the access token, or nil.
func (s *SessionManager) CurrentUser(ctx context.Context) *models.User {
	s.ensureFresh(ctx)
	return s.SignedInUser()
}

// SignedInUser is CurrentUser without the refresh: it reports the session as
// it stands and never blocks on the network.
func (s *SessionManager) SignedInUser() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.expiredLocked() {
		return nil
	}
	u := *s.user
	if s.username != "" {
		u.Username = s.username
	}
	return &u
}

// ChangeUsername renames the account. The token is not reissued, so the
// new name is kept as an override until the next login or logout.
func (s *SessionManager) ChangeUsername(ctx context.Context, username string) (models.User, error) {
	token := s.AccessToken(ctx)
	if token == "" {
		return models.User{}, common.ErrNotAuthenticated
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	name, err := s.api.ChangeUsername(client.WithAccessToken(ctx, token), username)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			return models.User{}, fmt.Errorf("%w: %w", common.ErrNotAuthenticated, err)
		}
		return models.User{}, fmt.Errorf("change username: %w", err)
	}
	if name == "" {
		name = username
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.user == nil {
		return models.User{}, common.ErrNotAuthenticated
	}
	s.username = name
	u := *s.user
	u.Username = name
	return u, nil
}

func (s *SessionManager) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close stops the refresh timer. The persisted session is kept.
func (s *SessionManager) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimerLocked()
}

func (s *SessionManager) ensureFresh(ctx context.Context) {
	s.mu.Lock()
	due := s.dueLocked()
	s.mu.Unlock()
	if !due {
		return
	}
	if _, err := s.Refresh(ctx); err != nil {
		s.log.Debug(ctx, "reactive refresh failed", "error", err)
	}
}

func (s *SessionManager) beginAuth(ctx context.Context) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.state = StateAuthenticating
	s.log.Debug(ctx, "authenticating")
	return s.gen
}

func (s *SessionManager) abortAuth(ctx context.Context, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen {
		s.clearLocked(ctx)
	}
}

func (s *SessionManager) establish(ctx context.Context, gen uint64, tokens models.Tokens) (models.User, error) {
	user, err := decodeUser(tokens.AccessToken)
	if err != nil {
		s.abortAuth(ctx, gen)
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return models.User{}, fmt.Errorf("sign-in superseded: %w", common.ErrNotAuthenticated)
	}
	s.username = ""
	s.commitLocked(ctx, tokens, user, true)

	s.log.Info(ctx, "signed in", "user_id", user.ID)
	return user, nil
}

// commitLocked installs a token pair, persists it and reschedules the timer.
func (s *SessionManager) commitLocked(ctx context.Context, tokens models.Tokens, user models.User, fresh bool) {
	s.tokens = tokens
	s.user = &user
	s.state = StateAuthenticated
	if err := s.store.Save(context.WithoutCancel(ctx), tokens); err != nil {
		s.log.Error(ctx, "persist session", "error", err)
	}
	s.scheduleLocked(user.ExpiresAt, fresh)
}

// scheduleLocked sets the reactive threshold to exp-buffer and arms the
// timer. For a freshly issued token that is already inside the buffer the
// timer waits half its remaining life instead, so short-lived tokens do not
// refresh back to back.
func (s *SessionManager) scheduleLocked(exp time.Time, fresh bool) {
	s.stopTimerLocked()
	if exp.IsZero() {
		s.refreshAt = time.Time{}
		return
	}

	now := s.now()
	s.refreshAt = exp.Add(-s.buffer)
	fireAt := s.refreshAt
	if fresh && !fireAt.After(now) {
		fireAt = now.Add(exp.Sub(now) / 2)
	}
	s.startTimerLocked(fireAt.Sub(now))
}

func (s *SessionManager) startTimerLocked(d time.Duration) {
	s.stopTimerLocked()
	if s.closed {
		return
	}
	gen := s.gen
	s.timer = time.AfterFunc(d, func() { s.onTimer(gen) })
}

func (s *SessionManager) onTimer(gen uint64) {
	s.mu.Lock()
	due := gen == s.gen && !s.closed && s.dueLocked()
	s.mu.Unlock()
	if !due {
		return
	}

	ctx := context.Background()
	if _, err := s.Refresh(ctx); err != nil {
		s.log.Warn(ctx, "background refresh failed", "error", err)
	}
}

func (s *SessionManager) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// resetLocked forgets the in-memory session and invalidates in-flight work.
func (s *SessionManager) resetLocked() {
	s.stopTimerLocked()
	s.gen++
	s.group.Forget(refreshKey)
	s.tokens = models.Tokens{}
	s.user = nil
	s.username = ""
	s.refreshAt = time.Time{}
	s.state = StateUnauthenticated
}

func (s *SessionManager) clearLocked(ctx context.Context) {
	s.resetLocked()
	if err := s.store.Clear(context.WithoutCancel(ctx)); err != nil {
		s.log.Error(ctx, "clear persisted session", "error", err)
	}
}

func (s *SessionManager) dueLocked() bool {
	if s.tokens.AccessToken == "" || s.refreshAt.IsZero() {
		return false
	}
	return !s.now().Before(s.refreshAt)
}

func (s *SessionManager) expiredLocked() bool {
	if s.user == nil || s.user.ExpiresAt.IsZero() {
		return false
	}
	return !s.now().Before(s.user.ExpiresAt)
}

func isTransient(err error) bool {
	return errors.Is(err, client.ErrUnavailable) ||
		errors.Is(err, client.ErrServer) ||
		errors.Is(err, client.ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

func mapLoginError(err error) error {
	switch {
	case errors.Is(err, client.ErrUnauthorized),
		errors.Is(err, client.ErrBadRequest),
		errors.Is(err, client.ErrForbidden),
		errors.Is(err, client.ErrNotFound):
		return fmt.Errorf("%w: %w", common.ErrInvalidCredentials, err)
	case errors.Is(err, client.ErrMethodNotAllowed):
		return fmt.Errorf("%w: %w", common.ErrMethodNotAllowed, err)
	case errors.Is(err, client.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", common.ErrServer, err)
	}
}

func mapGoogleError(err error) error {
	switch {
	case errors.Is(err, client.ErrUnauthorized),
		errors.Is(err, client.ErrBadRequest),
		errors.Is(err, client.ErrForbidden):
		return fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	case errors.Is(err, client.ErrNotFound):
		return fmt.Errorf("%w: %w", common.ErrAccountNotFound, err)
	case errors.Is(err, client.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", common.ErrServer, err)
	}
}
