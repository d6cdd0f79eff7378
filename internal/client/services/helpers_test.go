package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

// makeToken issues an access token for user id that expires after ttl.
func makeToken(t *testing.T, id string, ttl time.Duration) string {
	t.Helper()
	return signToken(t, jwt.MapClaims{
		"id":           id,
		"email":        id + "@example.com",
		"username":     "user-" + id,
		"is_active":    true,
		"posted_count": 2,
		"exp":          time.Now().Add(ttl).Unix(),
	})
}

// fakeAuthAPI is a scriptable client.AuthAPI.
type fakeAuthAPI struct {
	mu sync.Mutex

	loginTokens models.Tokens
	loginErr    error
	registerErr error

	googleTokens models.Tokens
	googleErr    error

	refreshFn func(ctx context.Context, refreshToken string) (models.Tokens, error)

	renameTo  string
	renameErr error

	calls        []string
	refreshCalls atomic.Int32
}

func (f *fakeAuthAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAuthAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAuthAPI) Login(_ context.Context, _, _, _ string) (models.Tokens, error) {
	f.record("login")
	return f.loginTokens, f.loginErr
}

func (f *fakeAuthAPI) Register(_ context.Context, _, _, _ string) error {
	f.record("register")
	return f.registerErr
}

func (f *fakeAuthAPI) RefreshToken(ctx context.Context, refreshToken string) (models.Tokens, error) {
	f.refreshCalls.Add(1)
	f.record("refresh")
	if f.refreshFn == nil {
		return models.Tokens{}, nil
	}
	return f.refreshFn(ctx, refreshToken)
}

func (f *fakeAuthAPI) GoogleLogin(_ context.Context, _ string) (models.Tokens, error) {
	f.record("google")
	return f.googleTokens, f.googleErr
}

func (f *fakeAuthAPI) ChangeUsername(_ context.Context, username string) (string, error) {
	f.record("rename")
	if f.renameErr != nil {
		return "", f.renameErr
	}
	if f.renameTo != "" {
		return f.renameTo, nil
	}
	return username, nil
}

// memTokenStore is an in-memory TokenStore.
type memTokenStore struct {
	mu     sync.Mutex
	tokens models.Tokens
	saves  int
}

func (m *memTokenStore) Load(context.Context) (models.Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens, nil
}

func (m *memTokenStore) Save(_ context.Context, t models.Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = t
	m.saves++
	return nil
}

func (m *memTokenStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = models.Tokens{}
	return nil
}

func (m *memTokenStore) Tokens() models.Tokens {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

func newTestSession(t *testing.T, api *fakeAuthAPI, store TokenStore, opts SessionOptions) *SessionManager {
	t.Helper()
	s := NewSessionManager(api, store, opts)
	t.Cleanup(s.Close)
	return s
}
