package social

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGraphPublisherFacebook(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/page-1/feed", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "tok", q.Get("access_token"))
		assert.Equal(t, "할인 안내", q.Get("message"))
		assert.Equal(t, "https://example.com/img.png", q.Get("link"))
		json.NewEncoder(w).Encode(map[string]string{"id": "page-1_999"})
	}))
	defer srv.Close()

	p := NewGraphPublisher(srv.Client(), zap.NewNop())
	p.fbGraph = srv.URL

	postID, err := p.Publish(context.Background(), Connection{
		Platform: "facebook", PageID: "page-1", AccessToken: "tok",
	}, Post{Caption: "할인 안내", ImageURL: "https://example.com/img.png"})
	require.NoError(t, err)
	assert.Equal(t, "page-1_999", postID)
}

func TestGraphPublisherInstagramTwoStep(t *testing.T) {
	t.Parallel()

	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/ig-1/media":
			assert.Equal(t, "https://example.com/img.png", r.URL.Query().Get("image_url"))
			json.NewEncoder(w).Encode(map[string]string{"id": "creation-7"})
		case "/ig-1/media_publish":
			assert.Equal(t, "creation-7", r.URL.Query().Get("creation_id"))
			json.NewEncoder(w).Encode(map[string]string{"id": "media-7"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewGraphPublisher(srv.Client(), zap.NewNop())
	p.fbGraph = srv.URL

	postID, err := p.Publish(context.Background(), Connection{
		Platform: "instagram", IGUserID: "ig-1", AccessToken: "tok",
	}, Post{Caption: "c", ImageURL: "https://example.com/img.png"})
	require.NoError(t, err)
	assert.Equal(t, "media-7", postID)
	assert.Equal(t, []string{"/ig-1/media", "/ig-1/media_publish"}, calls)
}

func TestGraphPublisherInstagramNeedsImageURL(t *testing.T) {
	t.Parallel()

	p := NewGraphPublisher(nil, zap.NewNop())
	_, err := p.Publish(context.Background(), Connection{
		Platform: "instagram", IGUserID: "ig-1", AccessToken: "tok",
	}, Post{Caption: "text only"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "이미지 URL")
}

func TestGraphPublisherThreadsTextPost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/th-1/threads":
			assert.Equal(t, "TEXT", r.URL.Query().Get("media_type"))
			json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
		case "/th-1/threads_publish":
			assert.Equal(t, "container-1", r.URL.Query().Get("creation_id"))
			json.NewEncoder(w).Encode(map[string]string{"id": "thread-1"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewGraphPublisher(srv.Client(), zap.NewNop())
	p.threadsGraph = srv.URL

	postID, err := p.Publish(context.Background(), Connection{
		Platform: "threads", ThreadsUserID: "th-1", AccessToken: "tok",
	}, Post{Caption: "텍스트 포스트"})
	require.NoError(t, err)
	assert.Equal(t, "thread-1", postID)
}

func TestGraphPublisherSurfacesGraphError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "Invalid OAuth access token."},
		})
	}))
	defer srv.Close()

	p := NewGraphPublisher(srv.Client(), zap.NewNop())
	p.fbGraph = srv.URL

	_, err := p.Publish(context.Background(), Connection{
		Platform: "facebook", PageID: "p", AccessToken: "bad",
	}, Post{Caption: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid OAuth access token.")
}

func TestGraphPublisherGuards(t *testing.T) {
	t.Parallel()

	p := NewGraphPublisher(nil, zap.NewNop())

	_, err := p.Publish(context.Background(), Connection{Platform: "facebook", PageID: "p"}, Post{})
	assert.ErrorContains(t, err, "토큰")

	_, err = p.Publish(context.Background(), Connection{Platform: "facebook", AccessToken: "t"}, Post{})
	assert.ErrorContains(t, err, "페이지")

	_, err = p.Publish(context.Background(), Connection{Platform: "myspace", AccessToken: "t"}, Post{})
	assert.ErrorContains(t, err, "지원하지 않는")
}
