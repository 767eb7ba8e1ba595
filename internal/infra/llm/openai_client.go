package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"go.opentelemetry.io/otel/attribute"

	"nudge/internal/infra/httpclient"
	"nudge/internal/observability"
	"nudge/internal/shared/config"
	nerrors "nudge/internal/shared/errors"
	"nudge/internal/shared/logging"
)

const (
	maxResponseBytes = 1 << 20
	systemPrompt     = "You write short, friendly phone notifications. Reply with a single JSON object only."
)

// Client is an OpenAI-compatible Generator. Each call is bounded by the
// configured timeout, retried on transient failures, and guarded by a
// circuit breaker.
type Client struct {
	model      string
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *nerrors.Breaker
	retry      nerrors.RetryConfig
	logger     logging.Logger
	metrics    *observability.MetricsCollector
	tracer     *observability.TracerProvider
}

var _ Generator = (*Client)(nil)

// New builds a Client from cfg. It returns ErrDisabled when cfg.Enabled is
// false so callers can fall back to deterministic copy.
func New(cfg config.LLMConfig, logger logging.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.Model == "" {
		return nil, errors.New("llm: model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger = logging.OrNop(logger)

	retry := nerrors.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries

	return &Client{
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		httpClient: httpclient.New(cfg.Timeout, "nudge"),
		breaker:    nerrors.NewBreaker(nerrors.DefaultBreakerConfig("llm"), logger),
		retry:      retry,
		logger:     logger,
	}, nil
}

// WithObservability attaches metrics and tracing.
func (c *Client) WithObservability(m *observability.MetricsCollector, t *observability.TracerProvider) *Client {
	c.metrics = m
	c.tracer = t
	return c
}

// WithRetry overrides the retry policy.
func (c *Client) WithRetry(cfg nerrors.RetryConfig) *Client {
	c.retry = cfg
	return c
}

// Generate sends prompt and returns the model's reply as a JSON object.
// Malformed replies are repaired when possible.
func (c *Client) Generate(ctx context.Context, prompt string) (out json.RawMessage, err error) {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanLLMGenerate, attribute.String(observability.AttrModel, c.model))
	defer func() { observability.EndSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err = nerrors.ExecuteFunc(c.breaker, ctx, func(ctx context.Context) (json.RawMessage, error) {
		return nerrors.RetryWithResult(ctx, c.retry, func(ctx context.Context) (json.RawMessage, error) {
			return c.complete(ctx, prompt)
		}, c.logger)
	})
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		c.logger.Warn("LLM: generate failed (%s): %v", status, err)
	}
	c.metrics.RecordAIRequest(ctx, c.model, status, time.Since(start))
	return out, err
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, prompt string) (json.RawMessage, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.7,
		MaxTokens:      300,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, nerrors.NewPermanentError(fmt.Errorf("marshal request: %w", err), 0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, nerrors.NewPermanentError(err, 0)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("LLM: POST %s/chat/completions model=%s", c.baseURL, c.model)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mapHTTPError(resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, nerrors.NewPermanentError(fmt.Errorf("decode response: %w", err), resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, nerrors.NewPermanentError(errors.New("response has no choices"), resp.StatusCode)
	}
	return extractJSON(parsed.Choices[0].Message.Content)
}

// extractJSON pulls the JSON object out of a model reply, stripping code
// fences and repairing common syntax slips.
func extractJSON(content string) (json.RawMessage, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '{'); i > 0 {
		s = s[i:]
	}
	if s == "" {
		return nil, nerrors.NewPermanentError(errors.New("empty completion"), 0)
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	fixed, err := jsonrepair.JSONRepair(s)
	if err != nil || !json.Valid([]byte(fixed)) {
		return nil, nerrors.NewPermanentError(fmt.Errorf("completion is not JSON: %q", truncate(s, errorPreviewLimit)), 0)
	}
	return json.RawMessage(fixed), nil
}
