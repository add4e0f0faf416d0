package resolve

import (
	"context"
	"time"

	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// ResolveFunc re-enters a resolver chain; the mobile strategy uses it to run
// the full chain against the rewritten URL.
type ResolveFunc func(ctx context.Context, target Target) (thumbnail.ImageCandidate, error)

// MobileStrategy retries the whole chain against the storefront's mobile
// subdomain. Mobile pages skip most of the bot-walling the desktop site does.
type MobileStrategy struct {
	timeout time.Duration
	resolve ResolveFunc
}

// NewMobileStrategy builds the strategy. Bind must be called with the parent
// resolver before the first Attempt.
func NewMobileStrategy(timeout time.Duration) *MobileStrategy {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &MobileStrategy{timeout: timeout}
}

// Bind supplies the re-entry point. Separate from the constructor because the
// resolver that owns this strategy does not exist yet when it is built.
func (s *MobileStrategy) Bind(resolve ResolveFunc) {
	s.resolve = resolve
}

func (s *MobileStrategy) Name() string { return "mobile" }

func (s *MobileStrategy) Attempt(ctx context.Context, target Target) (thumbnail.ImageCandidate, error) {
	mobile := mobileVariant(target.URL)
	if mobile == "" || s.resolve == nil {
		return thumbnail.ImageCandidate{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.resolve(ctx, Target{URL: mobile, Credentials: target.Credentials})
}
