package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnTengye/contractrisk/config"
	"github.com/AnTengye/contractrisk/pkg/logger"
)

// CompletionRequest is a provider-neutral chat completion call
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Completer sends one system+user exchange and returns the completion text
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

var errEmptyCompletion = errors.New("empty completion")

// ServiceError is a failure reaching or invoking the AI provider
type ServiceError struct {
	Provider string
	Cause    error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// Response is the outcome of one provider call: Text on success, Failure otherwise
type Response struct {
	Text    string
	Failure *ServiceError
}

// OK reports whether the provider returned a completion
func (r Response) OK() bool { return r.Failure == nil }

// Display returns the completion, or the user-facing failure message
func (r Response) Display() string {
	if r.Failure != nil {
		return "Errore nell'analisi AI: " + r.Failure.Cause.Error()
	}
	return r.Text
}

// Client asks the configured provider for a contract risk assessment
type Client struct {
	completer Completer
	provider  string
	model     string
	timeout   time.Duration
}

// NewClient builds the completer selected by cfg.Provider
func NewClient(cfg *config.AIConfig) (*Client, error) {
	var completer Completer
	switch cfg.Provider {
	case config.ProviderAnthropic:
		completer = NewAnthropicCompleter(cfg.APIKey, cfg.BaseURL)
	case config.ProviderOpenAI:
		completer = NewOpenAICompleter(cfg.APIKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
	return NewClientWithCompleter(completer, cfg), nil
}

// NewClientWithCompleter wraps an existing completer
func NewClientWithCompleter(completer Completer, cfg *config.AIConfig) *Client {
	return &Client{
		completer: completer,
		provider:  cfg.Provider,
		model:     cfg.Model,
		timeout:   cfg.Timeout,
	}
}

// Analyze never returns an error: provider failures, timeouts included,
// come back as Response.Failure.
func (c *Client) Analyze(ctx context.Context, text string) Response {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.completer.Complete(ctx, BuildRequest(c.model, text))
	if err == nil && strings.TrimSpace(out) == "" {
		err = errEmptyCompletion
	}
	elapsed := time.Since(start)

	if err != nil {
		aiRequestDuration.WithLabelValues(c.provider, "error").Observe(elapsed.Seconds())
		logger.Warn(ctx, "AI request failed",
			"provider", c.provider,
			"model", c.model,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return Response{Failure: &ServiceError{Provider: c.provider, Cause: err}}
	}

	aiRequestDuration.WithLabelValues(c.provider, "ok").Observe(elapsed.Seconds())
	logger.Debug(ctx, "AI request completed",
		"provider", c.provider,
		"model", c.model,
		"duration_ms", elapsed.Milliseconds(),
		"response_chars", len(out),
	)
	return Response{Text: out}
}
