package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"sitbrief/internal/config"
	"sitbrief/internal/domain"
	"sitbrief/internal/ports"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli         *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

var _ ports.Classifier = (*GeminiClient)(nil)

// NewGeminiClient builds a client. Without an API key the SDK client is not
// created and Complete reports a configuration error instead.
func NewGeminiClient(ctx context.Context, cfg config.ClassifierConfig) (*GeminiClient, error) {
	g := &GeminiClient{
		model:       cfg.Model,
		maxTokens:   int32(cfg.MaxTokens),
		temperature: float32(cfg.Temperature),
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return g, nil
	}

	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.Endpoint != "" {
		cc.HTTPOptions.BaseURL = cfg.Endpoint
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	g.cli = cli
	return g, nil
}

func (g *GeminiClient) Name() string { return config.ProviderGemini + ":" + g.model }

func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	if g.cli == nil {
		return "", domain.ConfigError(config.ProviderGemini, "api key")
	}

	temperature := g.temperature
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
			Temperature:       &temperature,
			MaxOutputTokens:   g.maxTokens,
			ResponseMIMEType:  "application/json",
		},
	)
	if err != nil {
		out := &domain.TransportError{Provider: config.ProviderGemini, Err: err}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			out.StatusCode = apiErr.Code
			out.Body = apiErr.Message
		}
		return "", out
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", domain.ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", domain.ErrEmptyResponse
	}
	return sb.String(), nil
}
