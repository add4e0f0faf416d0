package resolve

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/wavaa/thumbforge/internal/extract"
	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// HTTPConfig controls the lightweight collector strategy.
type HTTPConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// httpStrategy fetches the raw page HTML with a Colly collector and runs the
// extractor over it. Storefront pages often embed the hero image in the
// initial HTML, so this cheap path succeeds surprisingly often.
type httpStrategy struct {
	cfg           HTTPConfig
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewHTTPStrategy builds the collector-backed strategy.
func NewHTTPStrategy(cfg HTTPConfig, logger *zap.Logger) Strategy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &httpStrategy{cfg: cfg, baseCollector: c, logger: logger}
}

func (s *httpStrategy) Name() string { return "http" }

// Attempt tries the mobile variant first for smartstore URLs because the
// mobile pages render the hero image without JavaScript.
func (s *httpStrategy) Attempt(ctx context.Context, target Target) (thumbnail.ImageCandidate, error) {
	urls := []string{target.URL}
	if mobile := mobileVariant(target.URL); mobile != "" {
		urls = []string{mobile, target.URL}
	}

	var lastErr error
	for _, pageURL := range urls {
		body, err := s.fetch(ctx, pageURL)
		if err != nil {
			lastErr = err
			continue
		}
		if candidate := extract.FromHTML(string(body)); candidate.Found() {
			return candidate, nil
		}
	}
	if lastErr != nil {
		return thumbnail.ImageCandidate{}, lastErr
	}
	return thumbnail.ImageCandidate{}, nil
}

func (s *httpStrategy) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	collector := s.baseCollector.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(s.cfg.Timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("http fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("http visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("http response failed: %w", fetchErr)
		}
		return body, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
