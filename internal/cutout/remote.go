package cutout

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// Hosted model versions on the predictions API. The primary produces
// 256-level alpha tuned for product shots; the secondary is the generic
// segmentation fallback.
const (
	primaryModelVersion   = "063d41e5fbec2dcce4fa4ab5657f3ade0bf2c2625c73286a34af51cb181189c5"
	secondaryModelVersion = "fb8af171cfa1616ddcf1242c093f9c46bcada5ad4cf6f2fbe8b81b330ec5c003"
)

const (
	maxInlineImageBytes = 5 * 1024 * 1024
	pollAttempts        = 60
	pollInterval        = time.Second
)

// RemoteConfig controls the Replicate-backed removal client.
type RemoteConfig struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

// RemoteClient removes backgrounds through the Replicate predictions API.
type RemoteClient struct {
	cfg    RemoteConfig
	client *http.Client
	logger *zap.Logger
}

// NewRemoteClient builds the client.
func NewRemoteClient(cfg RemoteConfig, logger *zap.Logger) *RemoteClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.replicate.com/v1/predictions"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/131.0.0.0 Safari/537.36"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteClient{cfg: cfg, client: client, logger: logger}
}

// Remove runs background removal for the image at imageURL. Vendor CDN images
// are downloaded locally and inlined as data URIs because the CDN refuses
// requests without a storefront referer.
func (c *RemoteClient) Remove(ctx context.Context, imageURL, token string) ([]byte, error) {
	input := imageURL
	if needsInlining(imageURL) {
		raw, mime, err := c.download(ctx, imageURL)
		if err != nil {
			return nil, fmt.Errorf("download vendor image: %w", err)
		}
		if len(raw) < maxInlineImageBytes {
			input = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(raw))
		}
	}

	out, err := c.predict(ctx, input, token, primaryModelVersion)
	if err == nil {
		return out, nil
	}
	// Auth and quota failures will repeat identically; do not burn a second
	// prediction on them.
	if isTerminal(err) {
		return nil, err
	}
	c.logger.Debug("primary removal model failed, trying secondary", zap.Error(err))
	out, err2 := c.predict(ctx, input, token, secondaryModelVersion)
	if err2 != nil {
		return nil, err
	}
	return out, nil
}

func isTerminal(err error) bool {
	return errors.Is(err, thumbnail.ErrServiceAuth) || errors.Is(err, thumbnail.ErrServiceQuota)
}

type predictionResponse struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (c *RemoteClient) predict(ctx context.Context, imageInput, token, version string) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		"version": version,
		"input":   map[string]any{"image": imageInput},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build prediction request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait=60")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prediction request: %w", err)
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read prediction response: %w", readErr)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: 배경 제거 API 인증 실패 (HTTP %d). 토큰을 확인해주세요.",
			thumbnail.ErrServiceAuth, resp.StatusCode)
	case http.StatusPaymentRequired:
		return nil, fmt.Errorf("%w: 배경 제거 크레딧이 부족합니다 (HTTP 402). 결제 설정을 확인해주세요.",
			thumbnail.ErrServiceQuota)
	default:
		return nil, fmt.Errorf("prediction api status %d: %s", resp.StatusCode, truncate(string(body), 150))
	}

	var pred predictionResponse
	if err := json.Unmarshal(body, &pred); err != nil {
		return nil, fmt.Errorf("decode prediction response: %w", err)
	}

	outURL := outputURL(pred.Output)
	if outURL == "" && (pred.Status == "starting" || pred.Status == "processing") {
		pred, err = c.poll(ctx, pred.URLs.Get, token)
		if err != nil {
			return nil, err
		}
		outURL = outputURL(pred.Output)
	}
	if pred.Status == "failed" {
		return nil, fmt.Errorf("prediction failed: %s", truncate(pred.Error, 150))
	}
	if outURL == "" {
		return nil, fmt.Errorf("prediction produced no output image")
	}
	return c.fetchOutput(ctx, outURL)
}

func (c *RemoteClient) poll(ctx context.Context, getURL, token string) (predictionResponse, error) {
	var pred predictionResponse
	if getURL == "" {
		return pred, fmt.Errorf("prediction pending but no poll url provided")
	}
	for i := 0; i < pollAttempts; i++ {
		select {
		case <-ctx.Done():
			return pred, fmt.Errorf("%w: prediction poll canceled: %v", thumbnail.ErrTimeout, ctx.Err())
		case <-time.After(pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
		if err != nil {
			return pred, fmt.Errorf("build poll request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := c.client.Do(req)
		if err != nil {
			return pred, fmt.Errorf("poll prediction: %w", err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return pred, fmt.Errorf("read poll response: %w", readErr)
		}
		if resp.StatusCode != http.StatusOK {
			return pred, fmt.Errorf("poll status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(body, &pred); err != nil {
			return pred, fmt.Errorf("decode poll response: %w", err)
		}
		if pred.Status == "failed" {
			return pred, fmt.Errorf("prediction failed: %s", truncate(pred.Error, 150))
		}
		if outputURL(pred.Output) != "" || pred.Status == "succeeded" {
			return pred, nil
		}
	}
	return pred, fmt.Errorf("%w: prediction did not finish within %s", thumbnail.ErrTimeout, time.Duration(pollAttempts)*pollInterval)
}

func (c *RemoteClient) fetchOutput(ctx context.Context, outURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build output request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch prediction output: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prediction output status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// download fetches the source image with browser-like headers; the vendor CDN
// rejects requests without a storefront referer.
func (c *RemoteClient) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Referer", "https://smartstore.naver.com/")
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image download status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}
	return raw, mimeFromContentType(resp.Header.Get("Content-Type")), nil
}

// outputURL extracts the result URL from the API's output field, which is
// either a plain string or an object with a url key depending on the model.
func outputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.HasPrefix(s, "http") {
			return s
		}
		return ""
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && strings.HasPrefix(obj.URL, "http") {
		return obj.URL
	}
	return ""
}

func needsInlining(imageURL string) bool {
	return strings.Contains(imageURL, "pstatic.net") || strings.Contains(strings.ToLower(imageURL), "naver")
}

func mimeFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
		return "image/jpeg"
	case strings.Contains(ct, "png"):
		return "image/png"
	case strings.Contains(ct, "webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
