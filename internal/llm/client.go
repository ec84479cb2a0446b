package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/tailorworks/tailor-api/internal/config"
	"github.com/tailorworks/tailor-api/internal/domain"
	"github.com/tailorworks/tailor-api/internal/platform/metrics"
	"github.com/tailorworks/tailor-api/internal/store"
)

// Retry policy: up to 5 total attempts against 429/5xx/network failures,
// exponential backoff from 200ms doubling to a 4000ms cap, plus up to
// 20% random jitter on each wait.
const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 200 * time.Millisecond
	defaultBackoffCap  = 4000 * time.Millisecond
	jitterFraction     = 0.2
)

// maxErrorBodyBytes bounds how much of an error reply is kept for logs.
const maxErrorBodyBytes = 2048

// Client is a synchronous wrapper around an OpenAI-compatible
// chat-completions endpoint. It retries transient failures, optionally
// consumes streamed responses, and meters usage/cost into the ledger
// after every successful call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int

	usageStore store.UsageStore
	tariffs    map[string]Tariff
	logger     *slog.Logger

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	rng         *rand.Rand
}

// CallOptions tune a single call. A zero Model falls back to the
// client's configured default; Temperature is the generation's
// thinking-time parameter.
type CallOptions struct {
	Model       string
	Temperature float64
}

// NewClient creates a Client from configuration. usageStore may be nil,
// in which case metering is disabled (useful in tests).
func NewClient(cfg config.LLMConfig, usageStore store.UsageStore, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key cannot be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model cannot be empty")
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxOutputTokens,
		usageStore:  usageStore,
		tariffs:     defaultTariffs,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Plan asks the model to compare the source posting against the target
// document and returns the decoded tailoring plan. The response must
// match the plan schema exactly; anything else is ErrMalformedResponse.
func (c *Client) Plan(ctx context.Context, sourceText, targetText string, opts CallOptions) (*PlanResult, *Usage, error) {
	model := c.resolveModel(opts)
	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: planSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Job posting:\n%s\n\nCandidate CV:\n%s", sourceText, targetText)},
		},
		Temperature:    opts.Temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	start := time.Now()
	content, usage, err := c.completeWithRetry(ctx, "plan", req, nil)
	if err != nil {
		return nil, nil, err
	}
	metrics.ObserveAIDuration("plan", model, time.Since(start))

	plan, err := decodePlan(content)
	if err != nil {
		return nil, nil, err
	}

	c.meter(ctx, "plan", model, usage)
	return plan, usage, nil
}

// Draft asks the model for the tailored document as free-form markdown.
// When onDelta is non-nil the call streams: the callback is invoked
// synchronously once per incremental content chunk, and usage is taken
// from the stream's final usage-bearing fragment.
func (c *Client) Draft(ctx context.Context, plan *PlanResult, constraints string, opts CallOptions, onDelta StreamFunc) (string, *Usage, error) {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal plan for draft prompt: %w", err)
	}

	model := c.resolveModel(opts)
	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: draftSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Tailoring plan:\n%s\n\nConstraints:\n%s", planJSON, constraints)},
		},
		Temperature: opts.Temperature,
		MaxTokens:   c.maxTokens,
	}
	if onDelta != nil {
		req.Stream = true
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	start := time.Now()
	content, usage, err := c.completeWithRetry(ctx, "draft", req, onDelta)
	if err != nil {
		return "", nil, err
	}
	metrics.ObserveAIDuration("draft", model, time.Since(start))

	c.meter(ctx, "draft", model, usage)
	return content, usage, nil
}

func (c *Client) resolveModel(opts CallOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.model
}

// completeWithRetry issues the call, retrying per the policy above.
// Only network failures, 429 and 5xx are retried; everything else
// propagates immediately.
func (c *Client) completeWithRetry(ctx context.Context, op string, req chatRequest, onDelta StreamFunc) (string, *Usage, error) {
	log := c.logger.With("operation", op, "model", req.Model)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		content, usage, err := c.doOnce(ctx, op, req, onDelta)
		if err == nil {
			if attempt > 1 {
				log.Info("call succeeded after retry", "attempt", attempt)
			}
			return content, usage, nil
		}
		lastErr = err

		if !retryable(err) {
			return "", nil, err
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := c.backoffDelay(attempt)
		log.Warn("transient provider failure, backing off",
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", nil, fmt.Errorf("%w: cancelled during retry wait: %v", errNoResponse, ctx.Err())
		}
	}

	return "", nil, fmt.Errorf("%s call failed after %d attempts: %w", op, c.maxAttempts, lastErr)
}

// backoffDelay returns the wait before the next attempt: the nominal
// exponential value plus up to 20% jitter.
func (c *Client) backoffDelay(attempt int) time.Duration {
	nominal := c.backoffBase << (attempt - 1)
	if nominal > c.backoffCap {
		nominal = c.backoffCap
	}
	jitter := time.Duration(c.rng.Float64() * jitterFraction * float64(nominal))
	return nominal + jitter
}

func retryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return errors.Is(err, errNoResponse)
}

// doOnce performs a single HTTP exchange. With onDelta set it consumes
// the SSE stream; otherwise it decodes the buffered response.
func (c *Client) doOnce(ctx context.Context, op string, req chatRequest, onDelta StreamFunc) (string, *Usage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errNoResponse, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Operation:  op,
			Body:       string(snippet),
		}
	}

	if onDelta != nil && req.Stream {
		return c.consumeStream(resp.Body, onDelta)
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", nil, malformedf("%s response is not valid JSON: %v", op, err)
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message.Content == "" {
		return "", nil, fmt.Errorf("%w: %s returned no choice content", ErrEmptyResponse, op)
	}

	usage := payload.Usage
	if usage == nil {
		usage = &Usage{}
	}
	return payload.Choices[0].Message.Content, usage, nil
}

// consumeStream reads SSE data fragments until the [DONE] sentinel,
// invoking the callback per content delta and accumulating the full
// text. Usage metadata arrives in the final usage-bearing chunk.
func (c *Client) consumeStream(r io.Reader, onDelta StreamFunc) (string, *Usage, error) {
	var content strings.Builder
	usage := &Usage{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return content.String(), usage, nil
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", nil, malformedf("stream fragment is not valid JSON: %v", err)
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			delta := chunk.Choices[0].Delta.Content
			content.WriteString(delta)
			onDelta(delta)
		}
		if chunk.Usage != nil {
			*usage = *chunk.Usage
		}
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("stream read failed: %w", err)
	}

	// Stream ended without the sentinel; treat what we have as complete
	// rather than discarding already-delivered content.
	return content.String(), usage, nil
}

// meter appends a usage ledger entry for a successful call. Ledger
// failures are logged and swallowed; metering must never fail the
// primary operation.
func (c *Client) meter(ctx context.Context, op, model string, usage *Usage) {
	if c.usageStore == nil || usage == nil {
		return
	}

	cost := Cost(c.tariffs, model, *usage)
	metrics.ObserveAICall(op, model, usage.PromptTokens, usage.CompletionTokens, cost, true)

	metadata, _ := json.Marshal(map[string]string{"model": model})
	rec := &domain.UsageRecord{
		Provider:         "openai",
		Operation:        op,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		CostCents:        cost,
		Metadata:         metadata,
		CreatedAt:        time.Now().UTC(),
	}

	if err := c.usageStore.Append(ctx, rec); err != nil {
		c.logger.Warn("failed to record usage ledger entry",
			"operation", op,
			"model", model,
			"error", err)
	}
}
