// Package llm provides completion-service clients for classification and
// extraction. Providers are selected by configuration; every client maps
// throttling and server failures to retryable errors so callers can apply the
// shared retry policy.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config holds configuration for completion clients.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

// NewClient creates a completion client based on the provided configuration.
func NewClient(cfg Config) (Client, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	return &rateLimitedClient{
		inner:   client,
		limiter: newRateLimiter(cfg.RateLimit),
	}, nil
}

// rateLimitedClient enforces a requests-per-minute budget in front of the
// provider client.
type rateLimitedClient struct {
	inner   Client
	limiter *rateLimiter
}

func (c *rateLimitedClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return "", err
	}
	return c.inner.Complete(ctx, systemPrompt, userPrompt)
}
