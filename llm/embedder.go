// Package llm adapts the Gemini REST API behind the two narrow interfaces
// the core consumes: an Embedder and a Generator.
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
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

var (
	// ErrEmbeddingFailed is returned when embedding generation fails after
	// all retries.
	ErrEmbeddingFailed = errors.New("failed to generate embedding")

	// ErrBadDimension is returned when the provider emits a vector of the
	// wrong length. This is a fatal invariant violation, never retried.
	ErrBadDimension = errors.New("embedding has wrong dimension")
)

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	embedEndpoint      = "https://generativelanguage.googleapis.com/v1beta/models/%s:embedContent"
	batchEmbedEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:batchEmbedContents"

	maxRetries     = 3
	initialBackoff = time.Second
)

// EmbeddingRequest is the embedContent request body.
type EmbeddingRequest struct {
	Model                string       `json:"model"`
	Content              ContentInput `json:"content"`
	TaskType             string       `json:"task_type,omitempty"`
	OutputDimensionality int          `json:"output_dimensionality,omitempty"`
}

// ContentInput wraps the text parts of a request.
type ContentInput struct {
	Parts []PartInput `json:"parts"`
}

// PartInput is one text part.
type PartInput struct {
	Text string `json:"text"`
}

// EmbeddingResponse is the embedContent response body.
type EmbeddingResponse struct {
	Embedding EmbeddingData `json:"embedding"`
}

// EmbeddingData holds the vector values.
type EmbeddingData struct {
	Values []float32 `json:"values"`
}

type batchEmbeddingRequest struct {
	Requests []EmbeddingRequest `json:"requests"`
}

type batchEmbeddingResponse struct {
	Embeddings []EmbeddingData `json:"embeddings"`
}

// GeminiEmbedder implements Embedder over the Gemini embedding API with
// truncation, retry with doubling backoff, and provider-rate pacing.
type GeminiEmbedder struct {
	apiKey   string
	model    string
	dim      int
	maxChars int
	taskType string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// EmbedderOption is a functional option for GeminiEmbedder.
type EmbedderOption func(*GeminiEmbedder)

// EmbedderWithTaskType sets the Gemini task type (RETRIEVAL_DOCUMENT for
// ingestion, RETRIEVAL_QUERY for queries).
func EmbedderWithTaskType(t string) EmbedderOption {
	return func(e *GeminiEmbedder) { e.taskType = t }
}

// EmbedderWithRate sets the provider pacing; requests per second.
func EmbedderWithRate(rps float64) EmbedderOption {
	return func(e *GeminiEmbedder) { e.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// EmbedderWithLogger sets the structured logger.
func EmbedderWithLogger(l *slog.Logger) EmbedderOption {
	return func(e *GeminiEmbedder) { e.logger = l }
}

// NewGeminiEmbedder creates an embedder for the given model and canonical
// dimension. maxChars is the per-text character budget; longer inputs are
// truncated and logged.
func NewGeminiEmbedder(apiKey, model string, dim, maxChars int, opts ...EmbedderOption) *GeminiEmbedder {
	e := &GeminiEmbedder{
		apiKey:   apiKey,
		model:    model,
		dim:      dim,
		maxChars: maxChars,
		taskType: "RETRIEVAL_DOCUMENT",
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(5), 1),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *GeminiEmbedder) truncate(text string) string {
	capped, cut := capRunes(text, e.maxChars)
	if cut {
		e.logger.Warn("truncating embedding input",
			"component", "embedder", "stage", "embed",
			"original_chars", utf8.RuneCountInString(text), "max_chars", e.maxChars)
	}
	return capped
}

// capRunes cuts s to at most max characters. The cut counts runes, not
// bytes, so a multibyte character is never split.
func capRunes(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s, false
	}
	return string(runes[:max]), true
}

func (e *GeminiEmbedder) request(text string) EmbeddingRequest {
	return EmbeddingRequest{
		Model:                "models/" + e.model,
		Content:              ContentInput{Parts: []PartInput{{Text: e.truncate(text)}}},
		TaskType:             e.taskType,
		OutputDimensionality: e.dim,
	}
}

// Embed returns the vector for one text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(e.request(text))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var apiResp EmbeddingResponse
	url := fmt.Sprintf(embedEndpoint, e.model)
	if err := e.call(ctx, url, jsonData, &apiResp); err != nil {
		return nil, err
	}

	if len(apiResp.Embedding.Values) != e.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadDimension, len(apiResp.Embedding.Values), e.dim)
	}
	return apiResp.Embedding.Values, nil
}

// EmbedBatch returns vectors for a batch of texts, preserving order.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batch := batchEmbeddingRequest{Requests: make([]EmbeddingRequest, len(texts))}
	for i, t := range texts {
		batch.Requests[i] = e.request(t)
	}

	jsonData, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	var apiResp batchEmbeddingResponse
	url := fmt.Sprintf(batchEmbedEndpoint, e.model)
	if err := e.call(ctx, url, jsonData, &apiResp); err != nil {
		return nil, err
	}

	if len(apiResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("batch returned %d embeddings for %d texts", len(apiResp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range apiResp.Embeddings {
		if len(emb.Values) != e.dim {
			return nil, fmt.Errorf("%w: item %d got %d, want %d", ErrBadDimension, i, len(emb.Values), e.dim)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// call performs one POST with retry. 4xx responses other than 429 are
// permanent; everything else retries with doubling backoff.
func (e *GeminiEmbedder) call(ctx context.Context, url string, body []byte, dest interface{}) error {
	if e.apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY not set")
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			err := json.NewDecoder(resp.Body).Decode(dest)
			resp.Body.Close()
			if err != nil {
				lastErr = fmt.Errorf("failed to decode response: %w", err)
				continue
			}
			return nil
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return fmt.Errorf("embedding API error: %d - %s", resp.StatusCode, string(respBody))
		}
		lastErr = fmt.Errorf("embedding API error: %d", resp.StatusCode)
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrEmbeddingFailed, maxRetries, lastErr)
}
