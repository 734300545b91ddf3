package provider

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/ori/internal/stages"
	"github.com/mohammad-safakhou/ori/provider/models"
	openai_provider "github.com/mohammad-safakhou/ori/provider/openai"
)

// Client represents different completion backends
type Client string

const (
	// OpenAI covers any OpenAI-compatible chat completions API (Groq included).
	OpenAI Client = "openai"
)

// Completer is the interface every completion backend must satisfy.
type Completer interface {
	Complete(ctx context.Context, history []models.Message, stage stages.Stage, originalText string) (string, error)
}

// Options carries the per-deployment settings; the API key is supplied per caller.
type Options struct {
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Factory builds a Completer for the given API key.
type Factory func(apiKey string) Completer

// NewFactory returns a Factory for the requested backend.
func NewFactory(client Client, opts Options) (Factory, error) {
	switch client {
	case OpenAI, "":
		return func(apiKey string) Completer {
			return openai_provider.NewClient(apiKey, opts.BaseURL, opts.Model, opts.MaxTokens, opts.Timeout)
		}, nil
	default:
		return nil, errors.New("unsupported completion provider")
	}
}
