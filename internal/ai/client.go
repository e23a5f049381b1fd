// Package ai wraps a streaming chat model behind a JSON-returning completion
// call with a bounded worker pool, per-attempt timeouts and backoff retries.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	goopenai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/semaphore"

	"github.com/loadgenie/loadgenie/internal/metrics"
)

var (
	// ErrDisabled is returned when no API key is configured.
	ErrDisabled = errors.New("ai: disabled, no API key configured")
	// ErrPermanent marks responses that parsed but violate the expected
	// contract, and requests the endpoint rejected with a 4xx status.
	// They are never retried.
	ErrPermanent = errors.New("ai: permanent failure")
)

// StreamingModel is the subset of an eino chat model the client needs.
type StreamingModel interface {
	Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error)
}

// Config configures the client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	// Timeout bounds one attempt, including stream assembly.
	Timeout    time.Duration
	MaxRetries int
	Workers    int
	// Backoff is the first retry delay; each later retry doubles it.
	Backoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	return c
}

// Client issues JSON completions. It is safe for concurrent use; at most
// Config.Workers calls are in flight at once.
type Client struct {
	model   StreamingModel
	cfg     Config
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
}

// New wraps an existing model.
func New(m StreamingModel, cfg Config, met *metrics.Metrics) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		model:   m,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
		metrics: met,
	}
}

// NewOpenAI builds a client over an OpenAI-compatible endpoint.
func NewOpenAI(ctx context.Context, cfg Config, met *metrics.Metrics) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrDisabled
	}
	cfg = cfg.withDefaults()

	chatConfig := &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		Temperature: &cfg.Temperature,
	}
	if cfg.BaseURL != "" {
		chatConfig.BaseURL = cfg.BaseURL
	}

	cm, err := openai.NewChatModel(ctx, chatConfig)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return New(cm, cfg, met), nil
}

// CompleteJSON sends system and prompt to the model and returns the single
// JSON object it answers with, validated against jsonSchema.
func (c *Client) CompleteJSON(ctx context.Context, system, prompt, jsonSchema string) (json.RawMessage, error) {
	messages := []*schema.Message{
		schema.SystemMessage(system + "\n\nRespond with a single JSON object that matches this JSON schema:\n" + jsonSchema),
		schema.UserMessage(prompt),
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		out, err := c.pooledAttempt(ctx, messages, jsonSchema)
		if err == nil {
			c.metrics.AIRequest(metrics.OutcomeSuccess)
			return out, nil
		}
		lastErr = err

		if errors.Is(err, ErrPermanent) || ctx.Err() != nil || attempt == c.cfg.MaxRetries {
			break
		}

		delay := c.cfg.Backoff << (attempt - 1)
		c.metrics.AIRequest(metrics.OutcomeRetry)
		slog.Warn("AI completion failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	c.metrics.AIRequest(metrics.OutcomeFailure)
	return nil, lastErr
}

// pooledAttempt holds a worker slot for one attempt only, so backoff
// between attempts does not occupy the pool.
func (c *Client) pooledAttempt(ctx context.Context, messages []*schema.Message, jsonSchema string) (json.RawMessage, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	out, err := c.attempt(ctx, messages, jsonSchema)
	if err != nil && rejected(err) {
		return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	return out, err
}

// rejected reports whether err carries a 4xx status the endpoint will
// answer the same way again. Timeouts and rate limiting stay retryable.
func rejected(err error) bool {
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}

func (c *Client) attempt(ctx context.Context, messages []*schema.Message, jsonSchema string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	stream, err := c.model.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	var content strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("receive chunk: %w", err)
		}
		if chunk != nil {
			content.WriteString(chunk.Content)
		}
	}

	raw := extractJSON(content.String())
	if raw == "" {
		return nil, errors.New("empty response")
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("response is not valid JSON: %.80q", raw)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(jsonSchema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: schema check: %v", ErrPermanent, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: response does not match schema: %s", ErrPermanent, strings.Join(msgs, "; "))
	}

	return json.RawMessage(raw), nil
}

// extractJSON strips surrounding whitespace and markdown code fences.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	return s
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
