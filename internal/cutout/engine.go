package cutout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wavaa/thumbforge/internal/metrics"
	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// Source identifies the image to cut out: either raw bytes (local file input)
// or a URL still to be downloaded.
type Source struct {
	Bytes []byte
	URL   string
}

// Engine runs background removal with the free in-process path first and the
// remote service as fallback when a token is available.
type Engine struct {
	local      *LocalEngine
	remote     *RemoteClient
	downloader *http.Client
	userAgent  string
	logger     *zap.Logger
}

// NewEngine wires the two removal paths together.
func NewEngine(local *LocalEngine, remote *RemoteClient, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/131.0.0.0 Safari/537.36"
	if remote != nil {
		ua = remote.cfg.UserAgent
	}
	return &Engine{
		local:      local,
		remote:     remote,
		downloader: &http.Client{Timeout: 30 * time.Second},
		userAgent:  ua,
		logger:     logger,
	}
}

// Remove produces a transparent PNG cutout for the source image. The local
// engine runs first; the remote service only sees URL-based sources because
// it needs a fetchable input. Terminal auth/quota errors from the remote path
// propagate unchanged so the caller can surface billing hints.
func (e *Engine) Remove(ctx context.Context, src Source, token string) ([]byte, error) {
	var localErr error
	if e.local != nil {
		raw := src.Bytes
		if raw == nil && src.URL != "" {
			var err error
			raw, err = e.downloadSource(ctx, src.URL)
			if err != nil {
				localErr = err
			}
		}
		if raw != nil {
			out, err := e.local.Remove(ctx, raw)
			if err == nil {
				metrics.ObserveCutout("local", "ok")
				return out, nil
			}
			localErr = err
			metrics.ObserveCutout("local", "error")
			e.logger.Debug("local background removal failed", zap.Error(err))
		}
	}

	if e.remote != nil && token != "" && src.URL != "" {
		out, err := e.remote.Remove(ctx, src.URL, token)
		if err == nil {
			metrics.ObserveCutout("remote", "ok")
			return out, nil
		}
		metrics.ObserveCutout("remote", "error")
		if errors.Is(err, thumbnail.ErrServiceAuth) || errors.Is(err, thumbnail.ErrServiceQuota) {
			return nil, err
		}
		if localErr != nil {
			return nil, fmt.Errorf("로컬 누끼 실패: %v", localErr)
		}
		return nil, err
	}

	if localErr != nil {
		return nil, fmt.Errorf("로컬 누끼 실패: %v", localErr)
	}
	return nil, fmt.Errorf("%w: 누끼 처리 불가: 로컬 모델 또는 원격 토큰이 필요합니다", thumbnail.ErrProcessing)
}

// downloadSource fetches the source image with browser-like headers; the
// vendor CDN requires a storefront referer.
func (e *Engine) downloadSource(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Referer", "https://smartstore.naver.com/")
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := e.downloader.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download source image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source image status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
