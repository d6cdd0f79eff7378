package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
	"github.com/dmitrijs2005/captionkeeper/internal/common"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(srv.URL, HTTPOptions{Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func decodeBody(t *testing.T, r *http.Request) map[string]string {
	t.Helper()
	var m map[string]string
	require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
	return m
}

func TestNewHTTPClient_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient("localhost", HTTPOptions{})
	require.Error(t, err)

	_, err = NewHTTPClient("://bad", HTTPOptions{})
	require.Error(t, err)
}

func TestLogin_ParsesDataEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/user/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, err := uuid.Parse(r.Header.Get(common.RequestIDHeaderName))
		assert.NoError(t, err, "request id must be a uuid")

		body := decodeBody(t, r)
		assert.Equal(t, "a@b.c", body["email"])
		assert.Equal(t, "pw", body["password"])
		assert.Equal(t, "cap", body["captcha_token"])

		_, _ = io.WriteString(w, `{"data":{"access_token":"A1","refresh_token":"R1"}}`)
	})

	tokens, err := c.Login(context.Background(), "a@b.c", "pw", "cap")
	require.NoError(t, err)
	assert.Equal(t, models.Tokens{AccessToken: "A1", RefreshToken: "R1"}, tokens)
}

func TestLogin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
		msg    string
	}{
		{"unauthorized detail", http.StatusUnauthorized, `{"detail":"Invalid credentials"}`, ErrUnauthorized, "Invalid credentials"},
		{"method not allowed", http.StatusMethodNotAllowed, `{"message":"use google"}`, ErrMethodNotAllowed, "use google"},
		{"server", http.StatusInternalServerError, `oops`, ErrServer, "oops"},
		{"bad gateway", http.StatusBadGateway, ``, ErrUnavailable, ""},
		{"validation", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","email"]}]}`, ErrBadRequest, `[{"loc":["body","email"]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Login(context.Background(), "a@b.c", "pw", "")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.status, StatusCode(err))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.msg, apiErr.Message)
		})
	}
}

func TestLogin_MissingAccessToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{}}`)
	})

	_, err := c.Login(context.Background(), "a@b.c", "pw", "")
	require.ErrorIs(t, err, common.ErrMalformedToken)
}

func TestRefreshToken_BareAndRotated(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/user/refresh_token", r.URL.Path)
		body := decodeBody(t, r)
		if body["refresh_token"] == "rotate" {
			_, _ = io.WriteString(w, `{"access_token":"A2","refresh_token":"R2"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"A3"}`)
	})

	tokens, err := c.RefreshToken(context.Background(), "rotate")
	require.NoError(t, err)
	assert.Equal(t, models.Tokens{AccessToken: "A2", RefreshToken: "R2"}, tokens)

	tokens, err = c.RefreshToken(context.Background(), "keep")
	require.NoError(t, err)
	assert.Equal(t, models.Tokens{AccessToken: "A3"}, tokens)
}

func TestGoogleLogin_SendsOAuthToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/user/login/google", r.URL.Path)
		assert.Equal(t, "ya29.x", decodeBody(t, r)["access_token"])
		_, _ = io.WriteString(w, `{"data":{"access_token":"A","refresh_token":"R"}}`)
	})

	tokens, err := c.GoogleLogin(context.Background(), "ya29.x")
	require.NoError(t, err)
	assert.Equal(t, "A", tokens.AccessToken)
}

func TestChangeUsername_UsesBearerFromContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "neo", decodeBody(t, r)["username"])
		_, _ = io.WriteString(w, `{"status":"ok","username":"neo"}`)
	})

	ctx := WithAccessToken(context.Background(), "tok")
	name, err := c.ChangeUsername(ctx, "neo")
	require.NoError(t, err)
	assert.Equal(t, "neo", name)
}

func TestListCaptions_CursorQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/captions/v2/get", r.URL.Path)
		assert.Equal(t, "21", r.URL.Query().Get("limit"))
		assert.Equal(t, "T1", r.URL.Query().Get("next_token"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"captions":[{"id":"1","text":"a"},{"id":"2","text":"b"}],"has_more":true,"next_token":"T2","limit":21}`)
	})

	page, err := c.ListCaptions(context.Background(), 21, "T1")
	require.NoError(t, err)
	require.Len(t, page.Captions, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "T2", page.NextToken)
	assert.Equal(t, 21, page.Limit)
}

func TestTrendingCaptions_OmitsEmptyCursor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/captions/trending", r.URL.Path)
		assert.False(t, r.URL.Query().Has("next_token"))
		_, _ = io.WriteString(w, `{"captions":[],"has_more":false}`)
	})

	page, err := c.TrendingCaptions(context.Background(), 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Captions)
}

func TestSearchCaptions_PageInPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/captions/search/2", r.URL.Path)
		assert.Equal(t, "cats", decodeBody(t, r)["query"])
		_, _ = io.WriteString(w, `{"captions":[{"id":"9"}],"total":11,"page":2,"page_size":10}`)
	})

	page, err := c.SearchCaptions(context.Background(), "cats", 2)
	require.NoError(t, err)
	assert.Equal(t, models.SearchPage{Captions: []models.Caption{{ID: "9"}}, Total: 11, Page: 2, PageSize: 10}, page)
}

func TestCreateCaption_MultipartWithIconFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/captions/create", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "hello", r.FormValue("text"))
		assert.Equal(t, "u1", r.FormValue("author"))
		assert.Equal(t, "image_icon", r.FormValue("type"))
		assert.Equal(t, "false", r.FormValue("is_private"))
		assert.Equal(t, []string{"a", "b"}, r.MultipartForm.Value["tags"])
		assert.Empty(t, r.FormValue("icon_link"))

		f, hdr, err := r.FormFile("icon")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "icon.png", hdr.Filename)
		assert.Equal(t, "PNGDATA", string(data))

		_, _ = io.WriteString(w, `{"id":"new","text":"hello","icon_url":"https://cdn/icon.png","type":"image_icon"}`)
	})

	draft := models.CaptionDraft{
		Text: "hello", Type: models.CaptionTypeImageIcon, Tags: []string{"a", "b"},
		Icon: &models.IconFile{Name: "/tmp/icon.png", Content: strings.NewReader("PNGDATA")},
	}
	created, err := c.CreateCaption(context.Background(), draft, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", created.ID)
	assert.Equal(t, "https://cdn/icon.png", created.IconURL)
}

func TestCreateCaption_LinkOnlyHasNoFilePart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "https://media.giphy.com/x.gif", r.FormValue("icon_link"))
		assert.Empty(t, r.MultipartForm.File)
		_, _ = io.WriteString(w, `{"data":{"id":"g1","type":"image_gif"}}`)
	})

	draft := models.CaptionDraft{Text: "gif", Type: models.CaptionTypeImageGIF, IconLink: "https://media.giphy.com/x.gif"}
	created, err := c.CreateCaption(context.Background(), draft, "u1")
	require.NoError(t, err)
	assert.Equal(t, "g1", created.ID)
}

func TestDeleteCaption_EscapesID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/captions/delete/a%2Fb", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteCaption(context.Background(), "a/b"))
}

func TestFavorites_Endpoints(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "u1", body["user_id"])
		assert.Equal(t, "c1", body["post_id"])
		if r.URL.Path == "/v1/member/unfavorite-post" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.AddFavorite(context.Background(), "u1", "c1"))
	err := c.RemoveFavorite(context.Background(), "u1", "c1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"/v1/member/add-favorite-post", "/v1/member/unfavorite-post"}, paths)
}

func TestDo_TransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewHTTPClient(url, HTTPOptions{Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.ListCaptions(context.Background(), 10, "")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDo_CancelledContextIsReturnedAsIs(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.SearchCaptions(ctx, "slow", 1)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestDo_RateLimiterPacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(srv.URL, HTTPOptions{Timeout: 2 * time.Second, RateLimit: 20, RateBurst: 1})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.DeleteCaption(context.Background(), "x"))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
