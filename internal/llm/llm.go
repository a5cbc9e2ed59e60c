package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/config"
)

var (
	// ErrParse marks a response that was received but could not be used:
	// not JSON, not an object, or missing required keys.
	ErrParse = errors.New("unparseable model response")
	// ErrRateLimited is returned when the service answered 429.
	ErrRateLimited = errors.New("model rate limited")
	// ErrOffline is returned by clients that never reach a remote model.
	ErrOffline = errors.New("model client is offline")
)

// Request is one completion call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the provider for a JSON object response where it supports that.
	JSON bool
}

// Client is the analysis/synthesis service boundary.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// New builds the client selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLM, log *zap.Logger) (Client, error) {
	timeout := config.Duration(cfg.Timeout, 60*time.Second)
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}, log), nil
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model, log)
	case "mock":
		return &Mock{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// IsOffline reports whether c never reaches a remote model. Callers fall
// back to local heuristics for such clients.
func IsOffline(c Client) bool {
	o, ok := c.(interface{ Offline() bool })
	return ok && o.Offline()
}
