package textgen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Completer is the narrow boundary to a generative text provider.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type Config struct {
	Provider     string
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	Timeout      time.Duration
	RateLimitRPS float64
}

// New builds the configured provider and applies the global rate limit.
func New(ctx context.Context, cfg Config) (Completer, error) {
	var (
		completer Completer
		err       error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		completer, err = NewOpenAI(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case "gemini":
		completer, err = NewGemini(ctx, GeminiConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return RateLimited(completer, cfg.RateLimitRPS), nil
}

type rateLimited struct {
	next    Completer
	limiter *rate.Limiter
}

// RateLimited caps calls to next at rps requests per second. rps <= 0 disables the limit.
func RateLimited(next Completer, rps float64) Completer {
	if rps <= 0 {
		return next
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (r *rateLimited) Complete(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limiter: %w", err)
	}
	return r.next.Complete(ctx, prompt)
}
