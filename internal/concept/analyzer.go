// Package concept analyzes product cutouts with Gemini and synthesizes
// matching thumbnail backgrounds.
package concept

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// Config names the generative models the synthesizer calls.
type Config struct {
	AnalysisModel      string
	ImageModel         string
	ImageFallbackModel string
}

// Synthesizer owns the Gemini calls for concept analysis and background
// generation. API keys arrive per call because each job carries its own.
type Synthesizer struct {
	cfg    Config
	logger *zap.Logger
}

// NewSynthesizer builds the synthesizer.
func NewSynthesizer(cfg Config, logger *zap.Logger) *Synthesizer {
	if cfg.AnalysisModel == "" {
		cfg.AnalysisModel = "gemini-2.0-flash"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "gemini-2.5-flash-image"
	}
	if cfg.ImageFallbackModel == "" {
		cfg.ImageFallbackModel = "gemini-3-pro-image-preview"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{cfg: cfg, logger: logger}
}

func (s *Synthesizer) newClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// Analyze asks the vision model to classify the cutout and propose background
// styling. The model is instructed to answer with JSON only; the response is
// still scanned for the first balanced JSON object because models pad their
// answers with prose anyway.
func (s *Synthesizer) Analyze(ctx context.Context, apiKey string, cutoutPNG []byte, title string) (thumbnail.ProductConcept, error) {
	if apiKey == "" {
		return thumbnail.ProductConcept{}, fmt.Errorf("%w: missing gemini api key", thumbnail.ErrServiceAuth)
	}
	client, err := s.newClient(ctx, apiKey)
	if err != nil {
		return thumbnail.ProductConcept{}, err
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{
			genai.NewPartFromBytes(cutoutPNG, "image/png"),
			genai.NewPartFromText(analysisPrompt(title)),
		},
	}}
	resp, err := client.Models.GenerateContent(ctx, s.cfg.AnalysisModel, contents, nil)
	if err != nil {
		return thumbnail.ProductConcept{}, fmt.Errorf("analysis generate: %w", err)
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}

	obj := firstJSONObject(text.String())
	if obj == "" {
		return thumbnail.ProductConcept{}, fmt.Errorf("analysis response contains no JSON object")
	}
	var concept thumbnail.ProductConcept
	if err := json.Unmarshal([]byte(obj), &concept); err != nil {
		return thumbnail.ProductConcept{}, fmt.Errorf("decode analysis json: %w", err)
	}
	if concept.Category == "" && len(concept.CoreColors) == 0 && concept.BackgroundConcept == "" {
		return thumbnail.ProductConcept{}, fmt.Errorf("analysis json carries no usable fields")
	}
	return concept, nil
}

func analysisPrompt(title string) string {
	if title == "" {
		title = "(없음)"
	}
	return fmt.Sprintf(`다음 상품 이미지와 상품명을 분석해서, 아래 JSON 형식으로만 답변해줘. 다른 텍스트 없이 JSON만.

상품명: %s

JSON 형식:
{
  "category": "상품 카테고리 (예: 화장품, 패션, 식품 등)",
  "core_colors": ["#hex1", "#hex2", "#hex3"],
  "background_concept": "이 상품에 어울리는 배경 (예: 부드러운 그라데이션, 은은한 텍스처. 제품 누끼와 자연스럽게 어울리도록 단순하고 평평한 느낌)"
}
core_colors는 반드시 hex 코드(예: #ffcc00, #e8f4f8)로, 제품의 대표 색상 2~3개를 넣어줘.`, title)
}

// firstJSONObject returns the first balanced top-level JSON object in text,
// or "" when none exists. Brace counting skips string literals so embedded
// braces do not break the scan.
func firstJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
