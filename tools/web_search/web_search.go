package web_search

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/ori/tools/web_search/duckduckgo"
)

// WebSearcher turns model output carrying a [[query]] marker into result text.
// Implementations fail soft and return placeholder text instead of an error.
type WebSearcher interface {
	Search(ctx context.Context, modelOutput string) string
}

type Provider string

const (
	DuckDuckGoProvider Provider = "duckduckgo"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

func NewWebSearcher(provider Provider, endpoint string, timeout time.Duration, logger *zap.Logger) (WebSearcher, error) {
	switch provider {
	case DuckDuckGoProvider, "":
		return duckduckgo.New(endpoint, timeout, logger), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
