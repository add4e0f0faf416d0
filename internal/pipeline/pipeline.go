// Package pipeline orchestrates a full thumbnail run: resolve the product
// image, cut out the background, analyze the product, synthesize a matching
// background, and composite the final 1000x1000 PNG.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wavaa/thumbforge/internal/compose"
	"github.com/wavaa/thumbforge/internal/concept"
	"github.com/wavaa/thumbforge/internal/cutout"
	"github.com/wavaa/thumbforge/internal/metrics"
	"github.com/wavaa/thumbforge/internal/progress"
	"github.com/wavaa/thumbforge/internal/resolve"
	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// Request is one thumbnail run.
type Request struct {
	JobID       uuid.UUID
	URL         string
	ImageURL    string
	Credentials thumbnail.Credentials
}

// ImageResolver finds a product image for a page URL.
type ImageResolver interface {
	Resolve(ctx context.Context, target resolve.Target) (thumbnail.ImageCandidate, error)
}

// BackgroundRemover produces a transparent cutout for a source image.
type BackgroundRemover interface {
	Remove(ctx context.Context, src cutout.Source, token string) ([]byte, error)
}

// ConceptSynthesizer analyzes the cutout and generates a background image.
type ConceptSynthesizer interface {
	Analyze(ctx context.Context, apiKey string, cutoutPNG []byte, title string) (thumbnail.ProductConcept, error)
	GenerateBackground(ctx context.Context, apiKey string, c thumbnail.ProductConcept) ([]byte, error)
}

// Config tunes the pipeline.
type Config struct {
	ScrapeBudget time.Duration
	CPUWorkers   int
}

// Pipeline wires the stages together. CPU-heavy stages share a bounded
// semaphore so concurrent jobs do not thrash the host.
type Pipeline struct {
	cfg       Config
	resolver  ImageResolver
	remover   BackgroundRemover
	synth     ConceptSynthesizer
	composite func(cutoutPNG, backgroundPNG []byte) ([]byte, error)
	emitter   progress.Emitter
	cpuSlots  chan struct{}
	logger    *zap.Logger
}

// New builds a Pipeline.
func New(cfg Config, resolver ImageResolver, remover BackgroundRemover, synth ConceptSynthesizer, emitter progress.Emitter, logger *zap.Logger) *Pipeline {
	if cfg.ScrapeBudget <= 0 {
		cfg.ScrapeBudget = 50 * time.Second
	}
	if cfg.CPUWorkers <= 0 {
		cfg.CPUWorkers = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:       cfg,
		resolver:  resolver,
		remover:   remover,
		synth:     synth,
		composite: compose.Thumbnail,
		emitter:   emitter,
		cpuSlots:  make(chan struct{}, cfg.CPUWorkers),
		logger:    logger,
	}
}

// Run executes the full pipeline and always returns a Result carrying either
// a data URL or a user-facing error message, never both.
func (p *Pipeline) Run(ctx context.Context, req Request) thumbnail.Result {
	p.emit(req.JobID, progress.StageScrape, 0, "")

	source, title, res := p.acquireSource(ctx, req)
	if res != nil {
		return *res
	}

	stageStart := time.Now()
	p.emit(req.JobID, progress.StageCutout, 0, "")
	cutoutPNG, err := p.removeBackground(ctx, source, req.Credentials.ReplicateToken)
	if err != nil {
		return p.fail(req.JobID, cutoutErrorMessage(err))
	}
	metrics.ObserveStage(string(progress.StageCutout), time.Since(stageStart))

	stageStart = time.Now()
	p.emit(req.JobID, progress.StageAnalyze, 0, "")
	productConcept, err := p.synth.Analyze(ctx, req.Credentials.GeminiAPIKey, cutoutPNG, title)
	if err != nil {
		p.logger.Debug("concept analysis failed, using default", zap.Error(err))
		productConcept = thumbnail.DefaultConcept()
	}
	metrics.ObserveStage(string(progress.StageAnalyze), time.Since(stageStart))

	stageStart = time.Now()
	p.emit(req.JobID, progress.StageBackground, 0, "")
	backgroundPNG, err := p.synth.GenerateBackground(ctx, req.Credentials.GeminiAPIKey, productConcept)
	if err != nil || len(backgroundPNG) == 0 {
		if err != nil {
			p.logger.Debug("background generation failed, using gradient", zap.Error(err))
		}
		backgroundPNG = concept.Gradient(productConcept.CoreColors, cutoutPNG)
	}
	if len(backgroundPNG) == 0 {
		return p.fail(req.JobID, "배경 생성 실패")
	}
	metrics.ObserveStage(string(progress.StageBackground), time.Since(stageStart))

	stageStart = time.Now()
	p.emit(req.JobID, progress.StageComposite, 0, "")
	finalPNG, err := p.runOnCPU(ctx, func() ([]byte, error) {
		return p.composite(cutoutPNG, backgroundPNG)
	})
	if err != nil {
		p.logger.Warn("composite failed", zap.Error(err))
		return p.fail(req.JobID, "합성 실패")
	}
	metrics.ObserveStage(string(progress.StageComposite), time.Since(stageStart))

	p.emit(req.JobID, progress.StageDone, 0, "")
	metrics.ObserveJob("completed")
	return thumbnail.Result{
		DataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(finalPNG),
	}
}

// acquireSource resolves what image the pipeline should cut out: a direct
// image URL, a local file, or the scraped product page image. A non-nil
// Result means the run already failed with a user-facing message.
func (p *Pipeline) acquireSource(ctx context.Context, req Request) (cutout.Source, string, *thumbnail.Result) {
	if raw := strings.Trim(strings.TrimSpace(req.ImageURL), `"'`); raw != "" {
		if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
			return cutout.Source{URL: raw}, "", nil
		}
		// Anything else is treated as a local file path.
		data, err := os.ReadFile(raw)
		if err != nil {
			res := p.fail(req.JobID,
				"이미지 URL(https://...) 또는 로컬 파일 경로를 입력해주세요.\n\n예: https://shop-phinf.pstatic.net/... 또는 C:\\Users\\...\\image.jpg")
			return cutout.Source{}, "", &res
		}
		return cutout.Source{Bytes: data}, "", nil
	}

	if strings.HasPrefix(req.URL, "http://") || strings.HasPrefix(req.URL, "https://") {
		scrapeCtx, cancel := context.WithTimeout(ctx, p.cfg.ScrapeBudget)
		defer cancel()
		start := time.Now()
		candidate, err := p.resolver.Resolve(scrapeCtx, resolve.Target{URL: req.URL, Credentials: req.Credentials})
		metrics.ObserveStage(string(progress.StageScrape), time.Since(start))
		if err == nil && candidate.Found() {
			return cutout.Source{URL: candidate.URL}, candidate.Title, nil
		}
		if err != nil {
			p.logger.Info("scraping failed", zap.String("url", req.URL), zap.Error(err))
		}
	}

	res := p.fail(req.JobID, "상품 이미지를 찾을 수 없습니다. 이미지 URL(https://...)을 직접 입력해주세요.")
	return cutout.Source{}, "", &res
}

func (p *Pipeline) removeBackground(ctx context.Context, src cutout.Source, token string) ([]byte, error) {
	return p.runOnCPU(ctx, func() ([]byte, error) {
		return p.remover.Remove(ctx, src, token)
	})
}

// runOnCPU runs fn while holding one of the bounded CPU slots.
func (p *Pipeline) runOnCPU(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	select {
	case p.cpuSlots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: cpu slot wait: %v", thumbnail.ErrTimeout, ctx.Err())
	}
	defer func() { <-p.cpuSlots }()
	return fn()
}

func (p *Pipeline) fail(jobID uuid.UUID, message string) thumbnail.Result {
	p.emit(jobID, progress.StageError, 0, message)
	metrics.ObserveJob("failed")
	return thumbnail.Result{ErrorMessage: message}
}

// emit publishes a progress event. Delivery is fire-and-forget: a panicking
// or missing emitter never takes the pipeline down.
func (p *Pipeline) emit(jobID uuid.UUID, stage progress.Stage, dur time.Duration, note string) {
	if p.emitter == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	p.emitter.Emit(progress.Event{
		JobID:   jobID,
		TS:      time.Now().UTC(),
		Stage:   stage,
		Percent: stage.Percent(),
		Dur:     dur,
		Note:    note,
	})
}

// cutoutErrorMessage maps removal failures to the user-facing message,
// attaching the billing hint on quota errors.
func cutoutErrorMessage(err error) string {
	msg := err.Error()
	if errors.Is(err, thumbnail.ErrServiceQuota) {
		return msg + "\n\n💳 Replicate 크레딧 충전: https://replicate.com/account/billing"
	}
	if errors.Is(err, thumbnail.ErrServiceAuth) {
		return msg
	}
	if strings.Contains(msg, "누끼") || strings.Contains(msg, "로컬") {
		return msg
	}
	return "누끼 처리 실패: " + msg
}
