package resolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// StealthConfig controls the anti-automation browser strategy.
type StealthConfig struct {
	UserAgent string
	Timeout   time.Duration
	WarmupURL string
}

// stealthStrategy launches a dedicated Chrome with automation markers
// disabled. The storefront blocks ordinary headless sessions; this profile
// with a portal pre-visit for session cookies gets through far more often.
// It is the most expensive strategy, so it runs late in the chain.
type stealthStrategy struct {
	cfg    StealthConfig
	logger *zap.Logger
}

// NewStealthStrategy builds the strategy. Unlike the regular browser strategy
// the allocator is created per attempt so each run gets a fresh profile.
func NewStealthStrategy(cfg StealthConfig, logger *zap.Logger) Strategy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.WarmupURL == "" {
		cfg.WarmupURL = "https://www.naver.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &stealthStrategy{cfg: cfg, logger: logger}
}

func (s *stealthStrategy) Name() string { return "stealth" }

func (s *stealthStrategy) Attempt(ctx context.Context, target Target) (thumbnail.ImageCandidate, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("lang", "ko-KR"),
		chromedp.Flag("window-position", "-2400,-2400"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.Timeout)
	defer cancel()

	actions := []chromedp.Action{s.setupAction()}
	if isSmartstore(target.URL) {
		actions = append(actions,
			chromedp.Navigate(s.cfg.WarmupURL),
			chromedp.Sleep(time.Second),
		)
	}
	actions = append(actions,
		chromedp.Navigate(target.URL),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(`window.scrollTo(0, 400)`, nil),
		chromedp.Sleep(time.Second),
	)

	var scan domScan
	actions = append(actions, chromedp.Evaluate(imgScanScript, &scan))
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return thumbnail.ImageCandidate{}, fmt.Errorf("stealth chromedp run: %w", err)
	}
	if img := validDOMImage(scan.Img); img != "" {
		return thumbnail.ImageCandidate{URL: img, Title: strings.TrimSpace(scan.Title)}, nil
	}
	return thumbnail.ImageCandidate{Title: strings.TrimSpace(scan.Title)}, nil
}

func (s *stealthStrategy) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		headers := network.Headers{"Accept-Language": "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"}
		if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	})
}
