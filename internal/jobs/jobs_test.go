package jobs

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewStore()
	job := store.Create("https://smartstore.naver.com/s/products/1", "")
	require.NotEmpty(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, "naver_shopping_link", job.Meta["source"])

	require.NoError(t, store.SetStatus(job.ID, StatusProcessing))
	require.NoError(t, store.SetProgress(job.ID, 40))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.Equal(t, 40, got.Progress)
	assert.GreaterOrEqual(t, got.UpdatedAt, got.CreatedAt)

	require.NoError(t, store.Complete(job.ID, "data:image/png;base64,aGk=", map[string]string{"pipeline": "real"}))
	got, err = store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "data:image/png;base64,aGk=", got.ResultDataURL)
	assert.Equal(t, "real", got.Meta["pipeline"])
}

func TestStoreCreateWithImageURL(t *testing.T) {
	t.Parallel()

	store := NewStore()
	job := store.Create("https://cdn.example/i.jpg", "https://cdn.example/i.jpg")
	assert.Equal(t, "image_url", job.Meta["source"])
	assert.Equal(t, "https://cdn.example/i.jpg", job.ImageURL)
}

func TestStoreUnknownJob(t *testing.T) {
	t.Parallel()

	store := NewStore()
	_, err := store.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.SetProgress("nope", 10), ErrNotFound)
	assert.ErrorIs(t, store.Fail("nope", "x"), ErrNotFound)
}

func TestStoreFail(t *testing.T) {
	t.Parallel()

	store := NewStore()
	job := store.Create("https://example.com", "")
	require.NoError(t, store.Fail(job.ID, "상품 이미지를 찾을 수 없습니다."))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "상품 이미지를 찾을 수 없습니다.", got.Error)
	assert.Empty(t, got.ResultDataURL)
}

func TestBuildMockSVGEscapesAndTruncates(t *testing.T) {
	t.Parallel()

	svg := BuildMockSVG(`https://example.com/?a=1&b=<script>`)
	assert.Contains(t, svg, "&amp;")
	assert.Contains(t, svg, "&lt;script&gt;")
	assert.NotContains(t, svg, "<script>")

	long := BuildMockSVG("https://example.com/" + strings.Repeat("x", 200))
	assert.Contains(t, long, "...")
}

func TestBuildMockSVGTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	svg := BuildMockSVG("https://smartstore.naver.com/" + strings.Repeat("상품", 40))
	assert.True(t, utf8.ValidString(svg))
	assert.Contains(t, svg, "...")
}
