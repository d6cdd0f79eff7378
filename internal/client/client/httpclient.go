package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
	"github.com/dmitrijs2005/captionkeeper/internal/common"
	"github.com/dmitrijs2005/captionkeeper/internal/logging"
)

const maxErrorBody = 4 << 10

// HTTPOptions tunes the transport. Zero values pick defaults.
type HTTPOptions struct {
	// Timeout bounds a single request, including rate-limiter wait.
	Timeout time.Duration
	// RateLimit is the sustained requests per second; <= 0 disables pacing.
	RateLimit float64
	RateBurst int

	HTTPClient *http.Client
	Logger     logging.Logger
}

// HTTPClient implements Client over the backend REST API.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	log     logging.Logger
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string, opts HTTPOptions) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q: scheme and host required", baseURL)
	}

	c := &HTTPClient{
		baseURL: u,
		http:    opts.HTTPClient,
		timeout: opts.Timeout,
		log:     opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.log == nil {
		c.log = logging.NopLogger{}
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// tokenEnvelope accepts both {"data": {...}} and a bare token pair.
type tokenEnvelope struct {
	tokenPair
	Data *tokenPair `json:"data"`
}

func (e tokenEnvelope) tokens() models.Tokens {
	p := e.tokenPair
	if e.Data != nil && e.Data.AccessToken != "" {
		p = *e.Data
	}
	return models.Tokens{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
}

type credentials struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token,omitempty"`
}

func (c *HTTPClient) Login(ctx context.Context, email, password, captchaToken string) (models.Tokens, error) {
	var resp tokenEnvelope
	err := c.doJSON(ctx, http.MethodPost, "/v1/user/login", nil,
		credentials{Email: email, Password: password, CaptchaToken: captchaToken}, &resp)
	if err != nil {
		return models.Tokens{}, err
	}
	tokens := resp.tokens()
	if tokens.AccessToken == "" {
		return models.Tokens{}, fmt.Errorf("login: %w", common.ErrMalformedToken)
	}
	return tokens, nil
}

func (c *HTTPClient) Register(ctx context.Context, email, password, captchaToken string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/user/register", nil,
		credentials{Email: email, Password: password, CaptchaToken: captchaToken}, nil)
}

func (c *HTTPClient) RefreshToken(ctx context.Context, refreshToken string) (models.Tokens, error) {
	var resp tokenEnvelope
	err := c.doJSON(ctx, http.MethodPost, "/v1/user/refresh_token", nil,
		map[string]string{"refresh_token": refreshToken}, &resp)
	if err != nil {
		return models.Tokens{}, err
	}
	tokens := resp.tokens()
	if tokens.AccessToken == "" {
		return models.Tokens{}, fmt.Errorf("refresh: %w", common.ErrMalformedToken)
	}
	return tokens, nil
}

func (c *HTTPClient) GoogleLogin(ctx context.Context, oauthAccessToken string) (models.Tokens, error) {
	var resp tokenEnvelope
	err := c.doJSON(ctx, http.MethodPost, "/v1/user/login/google", nil,
		map[string]string{"access_token": oauthAccessToken}, &resp)
	if err != nil {
		return models.Tokens{}, err
	}
	tokens := resp.tokens()
	if tokens.AccessToken == "" {
		return models.Tokens{}, fmt.Errorf("google login: %w", common.ErrMalformedToken)
	}
	return tokens, nil
}

func (c *HTTPClient) ChangeUsername(ctx context.Context, username string) (string, error) {
	var resp struct {
		Status   string `json:"status"`
		Username string `json:"username"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/member/change_username", nil,
		map[string]string{"username": username}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Username == "" {
		return username, nil
	}
	return resp.Username, nil
}

func cursorQuery(limit int, nextToken string) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if nextToken != "" {
		q.Set("next_token", nextToken)
	}
	return q
}

func (c *HTTPClient) ListCaptions(ctx context.Context, limit int, nextToken string) (models.CursorPage, error) {
	var page models.CursorPage
	err := c.doJSON(ctx, http.MethodGet, "/captions/v2/get", cursorQuery(limit, nextToken), nil, &page)
	return page, err
}

func (c *HTTPClient) TrendingCaptions(ctx context.Context, limit int, nextToken string) (models.CursorPage, error) {
	var page models.CursorPage
	err := c.doJSON(ctx, http.MethodGet, "/captions/trending", cursorQuery(limit, nextToken), nil, &page)
	return page, err
}

func (c *HTTPClient) SearchCaptions(ctx context.Context, query string, page int) (models.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	var resp models.SearchPage
	err := c.doJSON(ctx, http.MethodPost, "/captions/search/"+strconv.Itoa(page), nil,
		map[string]string{"query": query}, &resp)
	return resp, err
}

// createdCaption accepts a bare caption or one wrapped in "data".
type createdCaption struct {
	models.Caption
	Data *models.Caption `json:"data"`
}

func (c *HTTPClient) CreateCaption(ctx context.Context, draft models.CaptionDraft, author string) (models.Caption, error) {
	body, contentType, err := encodeDraft(draft, author)
	if err != nil {
		return models.Caption{}, err
	}

	var resp createdCaption
	if err := c.do(ctx, http.MethodPost, "/captions/create", nil, body, contentType, &resp); err != nil {
		return models.Caption{}, err
	}
	if resp.Data != nil && resp.Data.ID != "" {
		return *resp.Data, nil
	}
	return resp.Caption, nil
}

// encodeDraft builds the multipart body. The icon file part is only written
// when a file is attached, so link-only and plain captions never count
// against the upload quota.
func encodeDraft(draft models.CaptionDraft, author string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"text", draft.Text},
		{"color", draft.Color},
		{"colortop", draft.ColorTop},
		{"colorbottom", draft.ColorBottom},
		{"author", author},
		{"type", string(draft.Type)},
		{"is_private", strconv.FormatBool(draft.IsPrivate)},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	for _, tag := range draft.Tags {
		if err := w.WriteField("tags", tag); err != nil {
			return nil, "", err
		}
	}

	switch {
	case draft.HasIcon():
		name := path.Base(draft.Icon.Name)
		if name == "." || name == "/" {
			name = "icon"
		}
		part, err := w.CreateFormFile("icon", name)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, draft.Icon.Content); err != nil {
			return nil, "", fmt.Errorf("read icon: %w", err)
		}
	case draft.IconLink != "":
		if err := w.WriteField("icon_link", draft.IconLink); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *HTTPClient) DeleteCaption(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/captions/delete/"+url.PathEscape(id), nil, nil, nil)
}

type favoriteRequest struct {
	UserID string `json:"user_id"`
	PostID string `json:"post_id"`
}

func (c *HTTPClient) AddFavorite(ctx context.Context, userID, postID string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/member/add-favorite-post", nil,
		favoriteRequest{UserID: userID, PostID: postID}, nil)
}

func (c *HTTPClient) RemoveFavorite(ctx context.Context, userID, postID string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/member/unfavorite-post", nil,
		favoriteRequest{UserID: userID, PostID: postID}, nil)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, p string, query url.Values, in, out any) error {
	if in == nil {
		return c.do(ctx, method, p, query, nil, "", out)
	}
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, method, p, query, bytes.NewReader(b), "application/json", out)
}

func (c *HTTPClient) do(ctx context.Context, method, p string, query url.Values, body io.Reader, contentType string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return context.Canceled
			}
			return fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
		}
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + p
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(common.RequestIDHeaderName, requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := AccessTokenFromContext(ctx); token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		c.log.Warn(ctx, "request failed", "method", method, "path", p, "request_id", requestID, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.log.Debug(ctx, "request done", "method", method, "path", p, "status", resp.StatusCode,
		"request_id", requestID, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, p, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case len(body.Detail) > 0:
			var s string
			if json.Unmarshal(body.Detail, &s) == nil {
				msg = s
			} else {
				msg = string(body.Detail)
			}
		case body.Message != "":
			msg = body.Message
		case body.Error != "":
			msg = body.Error
		}
	}
	return newAPIError(resp.StatusCode, msg)
}
