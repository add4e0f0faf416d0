// Package resolve locates a product image for a page URL by running an ordered
// chain of scraping strategies. Cheap strategies run first; each failure is
// isolated and logged before the next strategy gets its attempt.
package resolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wavaa/thumbforge/internal/metrics"
	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// Target carries the page URL plus per-job credentials some strategies need.
type Target struct {
	URL         string
	Credentials thumbnail.Credentials
}

// Strategy is a single way of obtaining an image candidate for a target.
// Attempt returns an empty candidate (no error) when the strategy ran but
// found nothing usable.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, target Target) (thumbnail.ImageCandidate, error)
}

// Resolver drives the strategy chain.
type Resolver struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewResolver builds a Resolver over an explicit strategy order.
func NewResolver(logger *zap.Logger, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{strategies: strategies, logger: logger}
}

// Resolve tries each strategy in order and returns the first candidate that
// carries a URL. A strategy error or panic never aborts the chain.
func (r *Resolver) Resolve(ctx context.Context, target Target) (thumbnail.ImageCandidate, error) {
	if target.URL == "" {
		return thumbnail.ImageCandidate{}, fmt.Errorf("%w: empty target url", thumbnail.ErrUnsupportedInput)
	}
	for _, strategy := range r.strategies {
		if err := ctx.Err(); err != nil {
			return thumbnail.ImageCandidate{}, fmt.Errorf("%w: resolve budget exhausted: %v", thumbnail.ErrTimeout, err)
		}
		start := time.Now()
		candidate, err := r.attempt(ctx, strategy, target)
		switch {
		case err != nil:
			metrics.ObserveStrategy(strategy.Name(), "error")
			r.logger.Debug("scrape strategy failed",
				zap.String("strategy", strategy.Name()),
				zap.String("url", target.URL),
				zap.Duration("dur", time.Since(start)),
				zap.Error(err),
			)
		case candidate.Found():
			metrics.ObserveStrategy(strategy.Name(), "hit")
			r.logger.Info("scrape strategy succeeded",
				zap.String("strategy", strategy.Name()),
				zap.String("image_url", candidate.URL),
				zap.Duration("dur", time.Since(start)),
			)
			return candidate, nil
		default:
			metrics.ObserveStrategy(strategy.Name(), "miss")
		}
	}
	return thumbnail.ImageCandidate{}, fmt.Errorf("%w: all scrape strategies exhausted for %s", thumbnail.ErrNotFound, target.URL)
}

func (r *Resolver) attempt(ctx context.Context, strategy Strategy, target Target) (candidate thumbnail.ImageCandidate, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("strategy %s panicked: %v", strategy.Name(), rec)
		}
	}()
	return strategy.Attempt(ctx, target)
}

// isSmartstore reports whether the URL belongs to one of the storefront
// domains that require warm-up visits and mobile fallbacks.
func isSmartstore(url string) bool {
	return strings.Contains(url, "smartstore.naver.com") ||
		strings.Contains(url, "brand.naver.com") ||
		strings.Contains(url, "shopping.naver.com")
}

// mobileVariant rewrites a desktop smartstore URL to its mobile subdomain.
// It returns "" when no rewrite applies.
func mobileVariant(url string) string {
	if strings.Contains(url, "smartstore.naver.com") && !strings.Contains(url, "m.smartstore") {
		return strings.Replace(url, "smartstore.naver.com", "m.smartstore.naver.com", 1)
	}
	return ""
}
