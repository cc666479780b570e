package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrGenerationFailed is returned when the generation API fails after all
// retries. Callers on the query path degrade to a deterministic fallback
// answer instead of surfacing this to the user.
var ErrGenerationFailed = errors.New("failed to generate content")

// Generator completes a prompt into text.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

const (
	generateEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

	// Prompts beyond this are truncated to stay inside the context window.
	maxPromptChars = 30000
)

// GeminiGenerator implements Generator over the Gemini generateContent API.
type GeminiGenerator struct {
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
	logger      *slog.Logger
}

// GeneratorOption is a functional option for GeminiGenerator.
type GeneratorOption func(*GeminiGenerator)

// GeneratorWithTemperature sets the sampling temperature.
func GeneratorWithTemperature(t float64) GeneratorOption {
	return func(g *GeminiGenerator) { g.temperature = t }
}

// GeneratorWithLogger sets the structured logger.
func GeneratorWithLogger(l *slog.Logger) GeneratorOption {
	return func(g *GeminiGenerator) { g.logger = l }
}

// NewGeminiGenerator creates a generator for the given model.
func NewGeminiGenerator(apiKey, model string, opts ...GeneratorOption) *GeminiGenerator {
	g := &GeminiGenerator{
		apiKey:      apiKey,
		model:       model,
		temperature: 0.2,
		client:      &http.Client{Timeout: 120 * time.Second},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Model returns the configured model identifier.
func (g *GeminiGenerator) Model() string { return g.model }

// Complete generates text for a prompt, retrying transient failures.
func (g *GeminiGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if capped, cut := capRunes(prompt, maxPromptChars); cut {
		g.logger.Warn("truncating prompt",
			"component", "generator", "stage", "generate",
			"original_chars", utf8.RuneCountInString(prompt), "max_chars", maxPromptChars)
		prompt = capped + "\n\n[Contenido truncado por longitud...]"
	}

	var content string
	var err error
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
		}

		content, err = g.call(ctx, prompt)
		if err == nil && content != "" {
			return content, nil
		}
		if err != nil && errors.Is(err, context.Canceled) {
			return "", err
		}
	}

	if err != nil {
		return "", fmt.Errorf("%w after %d attempts: %v", ErrGenerationFailed, maxRetries, err)
	}
	return "", ErrGenerationFailed
}

func (g *GeminiGenerator) call(ctx context.Context, prompt string) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY not set")
	}

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]interface{}{{"text": prompt}}},
		},
		"generationConfig": map[string]interface{}{
			"temperature": g.temperature,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf(generateEndpoint, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		g.logger.Error("generation API error",
			"component", "generator", "stage", "generate",
			"status", resp.StatusCode, "body", string(bodyBytes[:min(500, len(bodyBytes))]))
		return "", fmt.Errorf("API error: %d", resp.StatusCode)
	}

	var apiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason,omitempty"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason,omitempty"`
		} `json:"promptFeedback,omitempty"`
	}
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("API blocked prompt: %s", apiResp.PromptFeedback.BlockReason)
	}
	if len(apiResp.Candidates) == 0 {
		return "", fmt.Errorf("API returned no candidates")
	}

	var out strings.Builder
	for _, candidate := range apiResp.Candidates {
		if candidate.FinishReason != "" && candidate.FinishReason != "STOP" {
			g.logger.Warn("candidate finished abnormally",
				"component", "generator", "finish_reason", candidate.FinishReason)
		}
		for _, part := range candidate.Content.Parts {
			out.WriteString(part.Text)
		}
	}

	result := out.String()
	if result == "" {
		return "", fmt.Errorf("API returned empty content")
	}
	return result, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
