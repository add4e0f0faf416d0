package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wavaa/thumbforge/internal/thumbnail"
)

const defaultSearchEndpoint = "https://openapi.naver.com/v1/search/shop.json"

// SearchAPIConfig controls the vendor shopping search strategy.
type SearchAPIConfig struct {
	Endpoint string
	Timeout  time.Duration
	Client   *http.Client
}

var productIDRe = regexp.MustCompile(`/products/(\d+)`)

// searchAPIStrategy queries the vendor's shopping search API with the numeric
// product id pulled from the page URL. It only runs when the caller supplied
// API credentials.
type searchAPIStrategy struct {
	cfg    SearchAPIConfig
	client *http.Client
	logger *zap.Logger
}

// NewSearchAPIStrategy builds the strategy.
func NewSearchAPIStrategy(cfg SearchAPIConfig, logger *zap.Logger) Strategy {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultSearchEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &searchAPIStrategy{cfg: cfg, client: client, logger: logger}
}

func (s *searchAPIStrategy) Name() string { return "search_api" }

type searchItem struct {
	Title     string `json:"title"`
	Image     string `json:"image"`
	ProductID string `json:"productId"`
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

func (s *searchAPIStrategy) Attempt(ctx context.Context, target Target) (thumbnail.ImageCandidate, error) {
	creds := target.Credentials
	if creds.NaverClientID == "" || creds.NaverClientSecret == "" {
		return thumbnail.ImageCandidate{}, nil
	}
	m := productIDRe.FindStringSubmatch(target.URL)
	if m == nil {
		return thumbnail.ImageCandidate{}, nil
	}
	productID := m[1]

	reqURL := fmt.Sprintf("%s?%s", s.cfg.Endpoint, url.Values{
		"query":   {productID},
		"display": {"10"},
	}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return thumbnail.ImageCandidate{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("X-Naver-Client-Id", creds.NaverClientID)
	req.Header.Set("X-Naver-Client-Secret", creds.NaverClientSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return thumbnail.ImageCandidate{}, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return thumbnail.ImageCandidate{}, fmt.Errorf("search api status %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return thumbnail.ImageCandidate{}, fmt.Errorf("decode search response: %w", err)
	}

	// Exact product id match first, then the top result as a weaker guess.
	for _, item := range payload.Items {
		if item.ProductID == productID && strings.HasPrefix(item.Image, "http") {
			return thumbnail.ImageCandidate{URL: item.Image, Title: stripBold(item.Title)}, nil
		}
	}
	if len(payload.Items) > 0 && strings.HasPrefix(payload.Items[0].Image, "http") {
		first := payload.Items[0]
		return thumbnail.ImageCandidate{URL: first.Image, Title: stripBold(first.Title)}, nil
	}
	return thumbnail.ImageCandidate{}, nil
}

// stripBold removes the search API's query highlight markers.
func stripBold(title string) string {
	title = strings.ReplaceAll(title, "<b>", "")
	return strings.ReplaceAll(title, "</b>", "")
}
