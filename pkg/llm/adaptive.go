package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/kadirpekel/maestro/pkg/retry"
)

// Default bounds for adaptive token expansion.
const (
	DefaultMaxTokenLimit   = 32768
	DefaultAdaptiveRetries = 10
)

// AdaptiveConfig tunes the adaptive client.
type AdaptiveConfig struct {
	// MaxTokenLimit caps token-budget doubling. 0 means DefaultMaxTokenLimit.
	MaxTokenLimit int
	// MaxAttempts bounds the combined retry loop. 0 means DefaultAdaptiveRetries.
	MaxAttempts int
	// Policy drives backoff between retriable-error attempts.
	Policy retry.Policy
}

func (c *AdaptiveConfig) setDefaults() {
	if c.MaxTokenLimit <= 0 {
		c.MaxTokenLimit = DefaultMaxTokenLimit
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultAdaptiveRetries
	}
	if c.Policy.MaxAttempts == 0 {
		c.Policy = retry.DefaultPolicy()
	}
}

// AdaptiveClient wraps a provider with two recovery behaviors: exponential
// backoff on retriable errors, and token-budget doubling when the provider
// reports finish_reason "length".
type AdaptiveClient struct {
	provider Provider
	cfg      AdaptiveConfig
}

// NewAdaptiveClient wraps a provider.
func NewAdaptiveClient(provider Provider, cfg AdaptiveConfig) (*AdaptiveClient, error) {
	if provider == nil {
		return nil, retry.New(retry.KindConfig, "provider is required")
	}
	cfg.setDefaults()
	return &AdaptiveClient{provider: provider, cfg: cfg}, nil
}

// Provider returns the wrapped provider.
func (c *AdaptiveClient) Provider() Provider {
	return c.provider
}

// Complete calls the provider, doubling the token budget each time the
// response is truncated, up to MaxTokenLimit. Retriable transport errors are
// retried with backoff; everything else is surfaced immediately.
func (c *AdaptiveClient) Complete(ctx context.Context, messages []Message, cfg RequestConfig) (*Response, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		resp, err := c.provider.Complete(ctx, messages, cfg)
		if err != nil {
			if !retry.IsRetryable(err) {
				return nil, err
			}
			lastErr = err
			delay := c.cfg.Policy.Delay(attempt)
			slog.Warn("LLM call failed, retrying",
				"provider", c.provider.Name(),
				"attempt", attempt,
				"delay", delay,
				"error", err)
			select {
			case <-ctx.Done():
				return nil, retry.Wrap(retry.KindTimeout, "llm retry cancelled", ctx.Err())
			case <-time.After(delay):
			}
			continue
		}

		if !resp.Truncated() {
			return resp, nil
		}

		if cfg.MaxTokens >= c.cfg.MaxTokenLimit {
			slog.Warn("LLM response truncated at token limit",
				"provider", c.provider.Name(),
				"max_tokens", cfg.MaxTokens)
			return resp, nil
		}

		next := cfg.MaxTokens * 2
		if next > c.cfg.MaxTokenLimit {
			next = c.cfg.MaxTokenLimit
		}
		slog.Debug("LLM response truncated, expanding token budget",
			"provider", c.provider.Name(),
			"from", cfg.MaxTokens,
			"to", next)
		cfg.MaxTokens = next
	}

	if lastErr != nil {
		return nil, retry.Wrap(retry.KindProvider, "llm call failed after retries", lastErr)
	}
	return nil, retry.Newf(retry.KindProvider, "llm call did not complete within %d attempts", c.cfg.MaxAttempts)
}
