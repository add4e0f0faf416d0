package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wavaa/thumbforge/internal/metrics"
	"github.com/wavaa/thumbforge/internal/pipeline"
	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// Runner executes a full thumbnail pipeline for one request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) thumbnail.Result
}

// PoolConfig controls the worker pool.
type PoolConfig struct {
	Workers int
	// MockStepDelay paces the simulated progress ramp on the mock path.
	// Tests shrink it; production keeps the default.
	MockStepDelay time.Duration
}

// Pool consumes the queue and drives jobs through the pipeline. Jobs without
// usable AI credentials take the deterministic mock path instead.
type Pool struct {
	cfg    PoolConfig
	queue  *Queue
	store  *Store
	runner Runner
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewPool builds a Pool.
func NewPool(cfg PoolConfig, queue *Queue, store *Store, runner Runner, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MockStepDelay <= 0 {
		cfg.MockStepDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{cfg: cfg, queue: queue, store: store, runner: runner, logger: logger}
}

// Start launches the worker goroutines. They exit when ctx is canceled or
// the queue closes.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	logger := p.logger.With(zap.Int("worker", id))
	for {
		item, err := p.queue.Dequeue(ctx)
		if err != nil {
			logger.Debug("worker stopping", zap.Error(err))
			return
		}
		p.process(ctx, item, logger)
	}
}

func (p *Pool) process(ctx context.Context, item Item, logger *zap.Logger) {
	metrics.WorkerStarted()
	defer metrics.WorkerFinished()

	job, err := p.store.Get(item.JobID)
	if err != nil {
		logger.Warn("dequeued unknown job", zap.String("job_id", item.JobID))
		return
	}
	if err := p.store.SetStatus(job.ID, StatusProcessing); err != nil {
		logger.Warn("job vanished before processing", zap.String("job_id", job.ID))
		return
	}

	if !hasRealCredentials(item.Credentials) {
		p.runMock(ctx, job)
		return
	}

	jobUUID, err := uuid.Parse(job.ID)
	if err != nil {
		jobUUID = uuid.New()
	}
	result := p.runner.Run(ctx, pipeline.Request{
		JobID:       jobUUID,
		URL:         job.URL,
		ImageURL:    job.ImageURL,
		Credentials: item.Credentials,
	})
	if result.Failed() {
		if err := p.store.Fail(job.ID, result.ErrorMessage); err != nil {
			logger.Warn("failed to record job failure", zap.String("job_id", job.ID), zap.Error(err))
		}
		logger.Info("job failed", zap.String("job_id", job.ID), zap.String("error", result.ErrorMessage))
		return
	}
	meta := map[string]string{"pipeline": "scrape_cutout_gemini_composite"}
	if err := p.store.Complete(job.ID, result.DataURL, meta); err != nil {
		logger.Warn("failed to record job result", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	logger.Info("job completed", zap.String("job_id", job.ID))
}

// runMock simulates a short progress ramp and stores the placeholder SVG.
func (p *Pool) runMock(ctx context.Context, job Job) {
	for _, pct := range []int{15, 35, 55, 75, 92} {
		select {
		case <-ctx.Done():
			_ = p.store.Fail(job.ID, "서버가 종료되었습니다. 다시 시도해주세요.")
			return
		case <-time.After(p.cfg.MockStepDelay):
		}
		_ = p.store.SetProgress(job.ID, pct)
	}
	svg := BuildMockSVG(job.URL)
	meta := map[string]string{
		"pipeline": "mock",
		"note":     "Gemini/Replicate 키를 설정하면 실제 파이프라인이 실행됩니다.",
	}
	_ = p.store.Complete(job.ID, "data:image/svg+xml;charset=utf-8,"+svg, meta)
	metrics.ObserveJob("mock")
}

// hasRealCredentials mirrors the gate for the real pipeline: both AI keys
// must look plausible, otherwise the mock path runs.
func hasRealCredentials(c thumbnail.Credentials) bool {
	return len(c.GeminiAPIKey) > 10 && len(c.ReplicateToken) > 10
}
