package social

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestOAuth(t *testing.T, cfg OAuthConfig) (*OAuth, *ConnectionStore) {
	t.Helper()
	store := newTestStore(t)
	return NewOAuth(cfg, store, zap.NewNop()), store
}

func TestFacebookAuthURL(t *testing.T) {
	t.Parallel()

	o, _ := newTestOAuth(t, OAuthConfig{Facebook: AppCredentials{ID: "fb-app", Secret: "s"}})
	raw, err := o.FacebookAuthURL("https://svc.example.com/api/sns/callback/facebook", "st4te")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.facebook.com", u.Host)
	q := u.Query()
	assert.Equal(t, "fb-app", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "st4te", q.Get("state"))
	assert.Contains(t, q.Get("scope"), "pages_manage_posts")
	assert.Contains(t, q.Get("scope"), "instagram_content_publish")
}

func TestFacebookAuthURLWithoutAppID(t *testing.T) {
	t.Parallel()

	o, _ := newTestOAuth(t, OAuthConfig{})
	_, err := o.FacebookAuthURL("https://svc.example.com/cb", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FACEBOOK_APP_ID")
}

func TestExchangeFacebookCode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/oauth/access_token" && r.URL.Query().Get("code") != "":
			assert.Equal(t, "cb-code", r.URL.Query().Get("code"))
			json.NewEncoder(w).Encode(map[string]string{"access_token": "short-token"})
		case r.URL.Path == "/oauth/access_token":
			assert.Equal(t, "short-token", r.URL.Query().Get("fb_exchange_token"))
			json.NewEncoder(w).Encode(map[string]string{"access_token": "long-token"})
		case r.URL.Path == "/me/accounts":
			assert.Equal(t, "long-token", r.URL.Query().Get("access_token"))
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]string{
					{"id": "page-1", "name": "My Page", "access_token": "page-token"},
				},
			})
		case r.URL.Path == "/page-1":
			json.NewEncoder(w).Encode(map[string]any{
				"instagram_business_account": map[string]string{"id": "ig-1"},
			})
		case r.URL.Path == "/ig-1":
			json.NewEncoder(w).Encode(map[string]string{"username": "mypage_official"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o, store := newTestOAuth(t, OAuthConfig{Facebook: AppCredentials{ID: "app", Secret: "secret"}})
	o.fbGraph = srv.URL

	res, err := o.ExchangeFacebookCode(context.Background(), "cb-code", "https://svc.example.com/cb")
	require.NoError(t, err)
	assert.Equal(t, "2개 계정", res.Name)
	assert.Equal(t, []string{"My Page", "mypage_official"}, res.Added)

	conns := store.List()
	require.Len(t, conns, 2)
	assert.Equal(t, "facebook", conns[0].Platform)
	assert.Equal(t, "page-token", conns[0].AccessToken)
	assert.Equal(t, "instagram", conns[1].Platform)
	assert.Equal(t, "ig-1", conns[1].IGUserID)
}

func TestExchangeFacebookCodeNoPages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/access_token" {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer srv.Close()

	o, _ := newTestOAuth(t, OAuthConfig{Facebook: AppCredentials{ID: "app", Secret: "secret"}})
	o.fbGraph = srv.URL

	_, err := o.ExchangeFacebookCode(context.Background(), "code", "https://svc.example.com/cb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "페이지")
}

func TestExchangeThreadsCode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/access_token":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "raw-code", r.PostForm.Get("code"))
			assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
			json.NewEncoder(w).Encode(map[string]any{"access_token": "th-token", "user_id": 778899})
		case "/778899":
			json.NewEncoder(w).Encode(map[string]string{"username": "threads_user"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o, store := newTestOAuth(t, OAuthConfig{Threads: AppCredentials{ID: "app", Secret: "secret"}})
	o.threadsToken = srv.URL + "/oauth/access_token"
	o.threadsGraph = srv.URL

	// Meta appends #_ to the callback code.
	res, err := o.ExchangeThreadsCode(context.Background(), "raw-code#_", "https://svc.example.com/cb")
	require.NoError(t, err)
	assert.Equal(t, "threads_user", res.Name)

	conns := store.List()
	require.Len(t, conns, 1)
	assert.Equal(t, "778899", conns[0].ThreadsUserID)

	_, err = o.ExchangeThreadsCode(context.Background(), "raw-code", "https://svc.example.com/cb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "이미 연동된")
}

func TestExchangeYouTubeCode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "yt-code", r.PostForm.Get("code"))
			json.NewEncoder(w).Encode(map[string]string{
				"access_token":  "yt-access",
				"refresh_token": "yt-refresh",
			})
		case "/channels":
			assert.Equal(t, "Bearer yt-access", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{"id": "chan-1", "snippet": map[string]string{"title": "My Channel"}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o, store := newTestOAuth(t, OAuthConfig{Google: AppCredentials{ID: "cid", Secret: "cs"}})
	o.googleToken = srv.URL + "/token"
	o.youtubeAPI = srv.URL

	res, err := o.ExchangeYouTubeCode(context.Background(), "yt-code", "https://svc.example.com/cb")
	require.NoError(t, err)
	assert.Equal(t, "My Channel", res.Name)

	conns := store.List()
	require.Len(t, conns, 1)
	assert.Equal(t, "chan-1", conns[0].YouTubeChannelID)
	assert.Equal(t, "yt-refresh", conns[0].RefreshToken)
}

func TestAuthURLsRequireAppIDs(t *testing.T) {
	t.Parallel()

	o, _ := newTestOAuth(t, OAuthConfig{})
	_, err := o.ThreadsAuthURL("https://cb")
	assert.ErrorContains(t, err, "THREADS_APP_ID")
	_, err = o.YouTubeAuthURL("https://cb", "")
	assert.ErrorContains(t, err, "GOOGLE_CLIENT_ID")
}
