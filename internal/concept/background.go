package concept

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// GenerateBackground produces a 1000x1000 background image for the concept
// via the image generation model, retrying once with the fallback model. The
// first inline image payload in the response wins.
func (s *Synthesizer) GenerateBackground(ctx context.Context, apiKey string, concept thumbnail.ProductConcept) ([]byte, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing gemini api key", thumbnail.ErrServiceAuth)
	}
	client, err := s.newClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{genai.NewPartFromText(backgroundPrompt(concept))},
	}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	img, err := s.generateImage(ctx, client, s.cfg.ImageModel, contents, config)
	if err == nil {
		return img, nil
	}
	s.logger.Debug("image model failed, trying fallback",
		zap.String("model", s.cfg.ImageModel), zap.Error(err))

	img, fbErr := s.generateImage(ctx, client, s.cfg.ImageFallbackModel, contents, config)
	if fbErr != nil {
		return nil, fmt.Errorf("background generation failed: %w", err)
	}
	return img, nil
}

func (s *Synthesizer) generateImage(ctx context.Context, client *genai.Client, model string, contents []*genai.Content, config *genai.GenerateContentConfig) ([]byte, error) {
	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generate with %s: %w", model, err)
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, fmt.Errorf("model %s returned no inline image", model)
}

func backgroundPrompt(concept thumbnail.ProductConcept) string {
	bg := concept.BackgroundConcept
	if bg == "" {
		bg = "미니멀하고 깔끔한 광고 배경"
	}
	colors := concept.CoreColors
	if len(colors) > 3 {
		colors = colors[:3]
	}
	colorStr := strings.Join(colors, ", ")
	if colorStr == "" {
		colorStr = "soft neutral"
	}
	return fmt.Sprintf("Create a 1000x1000 square background for product thumbnail. "+
		"Concept: %s. "+
		"Colors: %s. "+
		"Flat, soft gradient or subtle texture only. No dramatic lighting, no spotlights, no strong shadows. "+
		"No text, no products, no people. "+
		"Must blend naturally with product cutout placed on top - avoid complex scenes that clash with cutouts.",
		bg, colorStr)
}
