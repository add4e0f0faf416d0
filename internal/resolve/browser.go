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

	"github.com/wavaa/thumbforge/internal/extract"
	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// BrowserConfig controls the headless browser strategy.
type BrowserConfig struct {
	UserAgent   string
	MaxParallel int
	Timeout     time.Duration
	WarmupURL   string
}

// browserStrategy renders the page in headless Chrome. It reads open-graph
// metadata from the live DOM, retries after a portal warm-up visit when the
// storefront serves a block page, scans <img> elements by priority, and
// passively sniffs JSON API responses for CDN image URLs.
type browserStrategy struct {
	cfg         BrowserConfig
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewBrowserStrategy builds the chromedp-backed strategy with a shared
// exec allocator. Close releases the allocator.
func NewBrowserStrategy(cfg BrowserConfig, logger *zap.Logger) (*browserStrategy, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.WarmupURL == "" {
		cfg.WarmupURL = "https://www.naver.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &browserStrategy{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (s *browserStrategy) Close() {
	s.allocCancel()
}

func (s *browserStrategy) Name() string { return "browser" }

func (s *browserStrategy) Attempt(ctx context.Context, target Target) (thumbnail.ImageCandidate, error) {
	if err := s.acquire(ctx); err != nil {
		return thumbnail.ImageCandidate{}, err
	}
	defer s.release()

	taskCtx, taskCancel := chromedp.NewContext(s.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.Timeout)
	defer cancel()

	sniffer := newResponseSniffer(taskCtx)

	// Direct visit first; the warm-up round trip is only paid on a miss.
	candidate, err := s.visitAndScan(taskCtx, target.URL, false)
	if err != nil {
		return thumbnail.ImageCandidate{}, err
	}
	if !candidate.Found() && isSmartstore(target.URL) {
		candidate, err = s.visitAndScan(taskCtx, target.URL, true)
		if err != nil {
			return thumbnail.ImageCandidate{}, err
		}
	}
	if candidate.Found() {
		return candidate, nil
	}

	// Last resort inside the browser session: JSON API payloads captured
	// while the page loaded.
	for _, body := range sniffer.bodies(taskCtx) {
		if c := extract.FromHTML(body); c.Found() {
			c.Title = candidate.Title
			return c, nil
		}
	}
	return candidate, nil
}

type domScan struct {
	Img   string `json:"img"`
	Title string `json:"title"`
}

func (s *browserStrategy) visitAndScan(ctx context.Context, pageURL string, warmup bool) (thumbnail.ImageCandidate, error) {
	actions := []chromedp.Action{s.networkSetupAction()}
	if warmup {
		actions = append(actions,
			chromedp.Navigate(s.cfg.WarmupURL),
			chromedp.Sleep(1500*time.Millisecond),
		)
	}
	actions = append(actions,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	)

	var og domScan
	actions = append(actions, chromedp.Evaluate(ogScanScript, &og))
	if err := chromedp.Run(ctx, actions...); err != nil {
		return thumbnail.ImageCandidate{}, fmt.Errorf("chromedp run: %w", err)
	}
	if img := validDOMImage(og.Img); img != "" {
		return thumbnail.ImageCandidate{URL: img, Title: strings.TrimSpace(og.Title)}, nil
	}

	// og metadata missing; scroll a little so lazy images attach, then scan
	// <img> elements by selector priority.
	var scan domScan
	err := chromedp.Run(ctx,
		chromedp.Evaluate(`window.scrollTo(0, 400)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.Evaluate(imgScanScript, &scan),
	)
	if err != nil {
		return thumbnail.ImageCandidate{}, fmt.Errorf("chromedp dom scan: %w", err)
	}
	title := strings.TrimSpace(scan.Title)
	if title == "" {
		title = strings.TrimSpace(og.Title)
	}
	if img := validDOMImage(scan.Img); img != "" {
		return thumbnail.ImageCandidate{URL: img, Title: title}, nil
	}
	return thumbnail.ImageCandidate{Title: title}, nil
}

func (s *browserStrategy) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		headers := network.Headers{
			"Accept-Language": "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		}
		if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	})
}

func (s *browserStrategy) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (s *browserStrategy) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}

// validDOMImage filters candidates produced by in-page scripts.
func validDOMImage(src string) string {
	src = strings.TrimSpace(src)
	if !strings.HasPrefix(src, "http") {
		return ""
	}
	return src
}

const ogScanScript = `(() => {
	const og = document.querySelector('meta[property="og:image"]');
	const ogTitle = document.querySelector('meta[property="og:title"]');
	return {
		img: og && og.content ? og.content : "",
		title: ogTitle && ogTitle.content ? ogTitle.content : "",
	};
})()`

const imgScanScript = `(() => {
	let img = null, title = null;
	const tryImg = (s) => {
		if (s && s.startsWith('http') && !/logo|icon|banner|ad|spinner|1x1|pixel/i.test(s)) return s;
		return null;
	};
	const rep = document.querySelector('img[alt="대표이미지"]');
	if (rep) img = tryImg(rep.src || rep.getAttribute('data-src') || rep.getAttribute('data-original'));
	const ogTitle = document.querySelector('meta[property="og:title"]');
	if (ogTitle && ogTitle.content) title = ogTitle.content;
	if (!img) {
		const selectors = [
			'img[src*="shop-phinf.pstatic.net"]', 'img[src*="shop-phinf"]', 'img[src*="phinf.pstatic"]', 'img[src*="pstatic.net"]',
			'img[data-src*="shop-phinf"]', 'img[data-src*="phinf"]', 'img[data-original*="phinf"]',
			'[class*="product"] img', '[class*="Product"] img', '[class*="thumb"] img',
			'[class*="goods"] img', '[class*="detail"] img', '[class*="slick"] img',
			'main img', '[role="main"] img', '.product-detail img', '#content img'
		];
		for (const sel of selectors) {
			const el = document.querySelector(sel);
			if (el) {
				const s = (el.src || el.getAttribute('data-src') || el.getAttribute('data-original') || '').trim();
				img = tryImg(s);
				if (img) break;
			}
		}
	}
	if (!img) {
		for (const el of document.querySelectorAll('img[src]')) {
			const s = (el.src || '').trim();
			if (s && /phinf|pstatic|shop-phinf/i.test(s) && !/logo|icon|banner|ad/i.test(s)) {
				img = s;
				break;
			}
		}
	}
	return { img: img || "", title: title || "" };
})()`
