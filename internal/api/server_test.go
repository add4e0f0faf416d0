package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wavaa/thumbforge/internal/jobs"
	"github.com/wavaa/thumbforge/internal/social"
)

type stubPublisher struct {
	postID string
	err    error
	posts  []social.Post
}

func (p *stubPublisher) Publish(_ context.Context, _ social.Connection, post social.Post) (string, error) {
	p.posts = append(p.posts, post)
	return p.postID, p.err
}

type testEnv struct {
	server      *Server
	store       *jobs.Store
	queue       *jobs.Queue
	connections *social.ConnectionStore
	schedule    *social.ScheduleStore
	publisher   *stubPublisher
}

func newTestEnv(t *testing.T, queueDepth int) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		store:       jobs.NewStore(),
		queue:       jobs.NewQueue(queueDepth),
		connections: social.NewConnectionStore(filepath.Join(dir, "connections.json")),
		schedule:    social.NewScheduleStore(filepath.Join(dir, "schedule.json")),
		publisher:   &stubPublisher{postID: "post-1"},
	}
	env.server = NewServer(Deps{
		Jobs:        env.store,
		Queue:       env.queue,
		Connections: env.connections,
		Schedule:    env.schedule,
		OAuth:       social.NewOAuth(social.OAuthConfig{}, env.connections, zap.NewNop()),
		Publisher:   env.publisher,
		Logger:      zap.NewNop(),
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok": true}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateJobRequiresURLOrImageURL(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	rec := env.do(t, http.MethodPost, "/api/shopping/thumbnail/jobs", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "image_url 또는 url 중 하나는 필수입니다.", body["error"])
}

func TestCreateJobEnqueuesWithCredentials(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	rec := env.do(t, http.MethodPost, "/api/shopping/thumbnail/jobs", map[string]string{
		"image_url":       "https://shop-phinf.pstatic.net/item.jpg",
		"gemini_api_key":  "gk",
		"replicate_token": "rt",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "pending", body["status"])
	require.NotEmpty(t, body["id"])

	item, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, body["id"], item.JobID)
	assert.Equal(t, "gk", item.Credentials.GeminiAPIKey)
	assert.Equal(t, "rt", item.Credentials.ReplicateToken)

	job, err := env.store.Get(body["id"])
	require.NoError(t, err)
	assert.Equal(t, "image_url", job.Meta["source"])
	assert.Equal(t, "https://shop-phinf.pstatic.net/item.jpg", job.URL)
}

func TestCreateJobQueueFull(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodPost, "/api/shopping/thumbnail/jobs", map[string]string{
		"url": "https://smartstore.naver.com/shop/products/123",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	rec := env.do(t, http.MethodGet, "/api/shopping/thumbnail/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "job_not_found", body["error"])
}

func TestGetJobReturnsFullRecord(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	job := env.store.Create("https://smartstore.naver.com/shop/products/1", "")
	require.NoError(t, env.store.SetStatus(job.ID, jobs.StatusProcessing))
	require.NoError(t, env.store.SetProgress(job.ID, 40))

	rec := env.do(t, http.MethodGet, "/api/shopping/thumbnail/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[jobs.Job](t, rec)
	assert.Equal(t, jobs.StatusProcessing, got.Status)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, "naver_shopping_link", got.Meta["source"])
}

func TestResultNotReady(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	job := env.store.Create("https://example.com", "")

	rec := env.do(t, http.MethodGet, "/api/shopping/thumbnail/jobs/"+job.ID+"/result", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "result_not_ready", body["error"])
}

func TestResultServesPNGBytes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	job := env.store.Create("https://example.com", "")
	require.NoError(t, env.store.Complete(job.ID, "data:image/png;base64,aGVsbG8=", nil))

	rec := env.do(t, http.MethodGet, "/api/shopping/thumbnail/jobs/"+job.ID+"/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "hello", rec.Body.String())
}

func TestResultServesMockSVGText(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	job := env.store.Create("https://example.com", "")
	svg := `<svg xmlns="http://www.w3.org/2000/svg"></svg>`
	require.NoError(t, env.store.Complete(job.ID, "data:image/svg+xml;charset=utf-8,"+svg, nil))

	rec := env.do(t, http.MethodGet, "/api/shopping/thumbnail/jobs/"+job.ID+"/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, svg, rec.Body.String())
}

func TestListConnectionsEmpty(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	rec := env.do(t, http.MethodGet, "/api/sns/connections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connections": []}`, rec.Body.String())
}

func TestDisconnect(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	added, err := env.connections.Add(social.Connection{Platform: "facebook", PageID: "p1", Name: "Page"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/sns/disconnect/"+added[0].ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sns/disconnect/"+added[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "connection_not_found", body["error"])
}

func TestPostNow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	added, err := env.connections.Add(social.Connection{
		Platform: "facebook", PageID: "p1", Name: "Page", AccessToken: "tok",
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/sns/post", map[string]string{
		"connection_id": added[0].ID,
		"caption":       "지금 게시",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "post-1", body["post_id"])
	require.Len(t, env.publisher.posts, 1)
	assert.Equal(t, "지금 게시", env.publisher.posts[0].Caption)
}

func TestScheduleLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	rec := env.do(t, http.MethodPost, "/api/sns/schedule", map[string]string{
		"connection_id": "conn-1",
		"caption":       "예약 포스트",
		"scheduled_at":  "2026-09-02T07:00:00",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	item := decodeBody[social.ScheduleItem](t, rec)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, social.SchedulePending, item.Status)

	rec = env.do(t, http.MethodGet, "/api/sns/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[map[string][]social.ScheduleItem](t, rec)
	require.Len(t, list["items"], 1)

	rec = env.do(t, http.MethodDelete, "/api/sns/schedule/"+item.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/sns/schedule/"+item.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	rec := env.do(t, http.MethodPost, "/api/sns/schedule", map[string]string{"caption": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestedTimes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	rec := env.do(t, http.MethodGet, "/api/sns/schedule/suggested-times", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Suggested []social.SuggestedTime `json:"suggested"`
		Reason    string                 `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Suggested, 3)
	assert.True(t, strings.HasSuffix(body.Suggested[0].Datetime, "T07:00:00"))
	assert.NotEmpty(t, body.Reason)
}

func TestAuthEndpointsWithoutAppCredentials(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	for _, path := range []string{
		"/api/sns/auth/facebook",
		"/api/sns/auth/threads",
		"/api/sns/auth/youtube",
	} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestCallbackWithProviderError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	rec := env.do(t, http.MethodGet, "/api/sns/callback/facebook?error=access_denied", nil)
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "sns_error=access_denied")
	assert.Contains(t, loc, "#settings")
}
