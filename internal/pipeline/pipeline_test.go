package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavaa/thumbforge/internal/cutout"
	"github.com/wavaa/thumbforge/internal/progress"
	"github.com/wavaa/thumbforge/internal/resolve"
	"github.com/wavaa/thumbforge/internal/thumbnail"
)

type stubResolver struct {
	candidate thumbnail.ImageCandidate
	err       error
	called    bool
}

func (s *stubResolver) Resolve(context.Context, resolve.Target) (thumbnail.ImageCandidate, error) {
	s.called = true
	return s.candidate, s.err
}

type stubRemover struct {
	out []byte
	err error
	src cutout.Source
}

func (s *stubRemover) Remove(_ context.Context, src cutout.Source, _ string) ([]byte, error) {
	s.src = src
	return s.out, s.err
}

type stubSynth struct {
	concept    thumbnail.ProductConcept
	conceptErr error
	background []byte
	bgErr      error
}

func (s *stubSynth) Analyze(context.Context, string, []byte, string) (thumbnail.ProductConcept, error) {
	return s.concept, s.conceptErr
}

func (s *stubSynth) GenerateBackground(context.Context, string, thumbnail.ProductConcept) ([]byte, error) {
	return s.background, s.bgErr
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, len(r.events))
	for i, e := range r.events {
		out[i] = e.Stage
	}
	return out
}

func tinyPNG(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestPipeline(resolver ImageResolver, remover BackgroundRemover, synth ConceptSynthesizer, emitter progress.Emitter) *Pipeline {
	p := New(Config{}, resolver, remover, synth, emitter, nil)
	p.composite = func(cutoutPNG, backgroundPNG []byte) ([]byte, error) {
		return []byte("final-png"), nil
	}
	return p
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{candidate: thumbnail.ImageCandidate{URL: "https://cdn.example/img.jpg", Title: "담요"}}
	remover := &stubRemover{out: tinyPNG(t, color.NRGBA{R: 10, A: 255})}
	synth := &stubSynth{
		concept:    thumbnail.ProductConcept{Category: "패션", CoreColors: []string{"#ffcc00"}},
		background: tinyPNG(t, color.NRGBA{R: 200, G: 200, B: 200, A: 255}),
	}
	emitter := &recordingEmitter{}

	p := newTestPipeline(resolver, remover, synth, emitter)
	res := p.Run(context.Background(), Request{JobID: uuid.New(), URL: "https://smartstore.naver.com/s/products/1"})

	require.False(t, res.Failed(), "unexpected failure: %s", res.ErrorMessage)
	wantPrefix := "data:image/png;base64,"
	require.True(t, strings.HasPrefix(res.DataURL, wantPrefix))
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(res.DataURL, wantPrefix))
	require.NoError(t, err)
	assert.Equal(t, []byte("final-png"), decoded)

	assert.Equal(t, []progress.Stage{
		progress.StageScrape,
		progress.StageCutout,
		progress.StageAnalyze,
		progress.StageBackground,
		progress.StageComposite,
		progress.StageDone,
	}, emitter.stages())
	assert.Equal(t, "https://cdn.example/img.jpg", remover.src.URL)
}

func TestRunDirectImageURLSkipsScraping(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{}
	remover := &stubRemover{out: tinyPNG(t, color.NRGBA{A: 255})}
	synth := &stubSynth{background: tinyPNG(t, color.NRGBA{A: 255})}

	p := newTestPipeline(resolver, remover, synth, &recordingEmitter{})
	res := p.Run(context.Background(), Request{
		JobID:    uuid.New(),
		URL:      "https://smartstore.naver.com/s/products/1",
		ImageURL: `"https://cdn.example/direct.jpg"`,
	})

	require.False(t, res.Failed())
	assert.False(t, resolver.called, "direct image input must skip scraping")
	assert.Equal(t, "https://cdn.example/direct.jpg", remover.src.URL)
}

func TestRunLocalFileInput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "product.png")
	raw := tinyPNG(t, color.NRGBA{R: 50, A: 255})
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	remover := &stubRemover{out: tinyPNG(t, color.NRGBA{A: 255})}
	synth := &stubSynth{background: tinyPNG(t, color.NRGBA{A: 255})}

	p := newTestPipeline(&stubResolver{}, remover, synth, &recordingEmitter{})
	res := p.Run(context.Background(), Request{JobID: uuid.New(), ImageURL: path})

	require.False(t, res.Failed())
	assert.Equal(t, raw, remover.src.Bytes)
}

func TestRunUnreadableLocalFileFails(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(&stubResolver{}, &stubRemover{}, &stubSynth{}, &recordingEmitter{})
	res := p.Run(context.Background(), Request{JobID: uuid.New(), ImageURL: "/does/not/exist.png"})

	require.True(t, res.Failed())
	assert.Contains(t, res.ErrorMessage, "이미지 URL(https://...)")
	assert.Empty(t, res.DataURL)
}

func TestRunScrapeFailureProducesUserMessage(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{err: thumbnail.ErrNotFound}
	emitter := &recordingEmitter{}
	p := newTestPipeline(resolver, &stubRemover{}, &stubSynth{}, emitter)
	res := p.Run(context.Background(), Request{JobID: uuid.New(), URL: "https://smartstore.naver.com/s/products/1"})

	require.True(t, res.Failed())
	assert.Equal(t, "상품 이미지를 찾을 수 없습니다. 이미지 URL(https://...)을 직접 입력해주세요.", res.ErrorMessage)
	stages := emitter.stages()
	assert.Equal(t, progress.StageError, stages[len(stages)-1])
}

func TestRunAnalysisFailureFallsBackToDefaultConcept(t *testing.T) {
	t.Parallel()

	remover := &stubRemover{out: tinyPNG(t, color.NRGBA{A: 255})}
	synth := &stubSynth{
		conceptErr: errors.New("model overloaded"),
		background: tinyPNG(t, color.NRGBA{A: 255}),
	}
	p := newTestPipeline(&stubResolver{candidate: thumbnail.ImageCandidate{URL: "https://x/i.jpg"}}, remover, synth, &recordingEmitter{})
	res := p.Run(context.Background(), Request{JobID: uuid.New(), URL: "https://x/p/1"})

	require.False(t, res.Failed(), "analysis failure must not fail the run: %s", res.ErrorMessage)
}

func TestRunBackgroundFailureFallsBackToGradient(t *testing.T) {
	t.Parallel()

	remover := &stubRemover{out: tinyPNG(t, color.NRGBA{R: 120, G: 60, B: 60, A: 255})}
	synth := &stubSynth{
		concept: thumbnail.ProductConcept{CoreColors: []string{"#ffcc00", "#112233"}},
		bgErr:   errors.New("image model unavailable"),
	}
	var gotBackground []byte
	p := New(Config{}, &stubResolver{candidate: thumbnail.ImageCandidate{URL: "https://x/i.jpg"}}, remover, synth, &recordingEmitter{}, nil)
	p.composite = func(cutoutPNG, backgroundPNG []byte) ([]byte, error) {
		gotBackground = backgroundPNG
		return []byte("final"), nil
	}

	res := p.Run(context.Background(), Request{JobID: uuid.New(), URL: "https://x/p/1"})
	require.False(t, res.Failed())
	require.NotEmpty(t, gotBackground)
	_, err := png.Decode(bytes.NewReader(gotBackground))
	assert.NoError(t, err, "gradient fallback must be a decodable png")
}

func TestRunQuotaErrorCarriesBillingHint(t *testing.T) {
	t.Parallel()

	remover := &stubRemover{err: thumbnail.ErrServiceQuota}
	p := newTestPipeline(&stubResolver{candidate: thumbnail.ImageCandidate{URL: "https://x/i.jpg"}}, remover, &stubSynth{}, &recordingEmitter{})
	res := p.Run(context.Background(), Request{JobID: uuid.New(), URL: "https://x/p/1"})

	require.True(t, res.Failed())
	assert.Contains(t, res.ErrorMessage, "replicate.com/account/billing")
}

func TestRunCompositeFailure(t *testing.T) {
	t.Parallel()

	remover := &stubRemover{out: tinyPNG(t, color.NRGBA{A: 255})}
	synth := &stubSynth{background: tinyPNG(t, color.NRGBA{A: 255})}
	p := New(Config{}, &stubResolver{candidate: thumbnail.ImageCandidate{URL: "https://x/i.jpg"}}, remover, synth, &recordingEmitter{}, nil)
	p.composite = func([]byte, []byte) ([]byte, error) {
		return nil, errors.New("broken")
	}

	res := p.Run(context.Background(), Request{JobID: uuid.New(), URL: "https://x/p/1"})
	require.True(t, res.Failed())
	assert.Equal(t, "합성 실패", res.ErrorMessage)
}

func TestRunSurvivesPanickingEmitter(t *testing.T) {
	t.Parallel()

	remover := &stubRemover{out: tinyPNG(t, color.NRGBA{A: 255})}
	synth := &stubSynth{background: tinyPNG(t, color.NRGBA{A: 255})}
	p := newTestPipeline(&stubResolver{candidate: thumbnail.ImageCandidate{URL: "https://x/i.jpg"}}, remover, synth, panickingEmitter{})

	res := p.Run(context.Background(), Request{JobID: uuid.New(), URL: "https://x/p/1"})
	assert.False(t, res.Failed())
}

type panickingEmitter struct{}

func (panickingEmitter) Emit(progress.Event) { panic("sink exploded") }
