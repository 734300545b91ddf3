package duckduckgo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-shiori/dom"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/mohammad-safakhou/ori/internal/helpers"
	"github.com/mohammad-safakhou/ori/internal/metrics"
)

const DefaultEndpoint = "https://html.duckduckgo.com/html"

const maxBody = 2 << 20

// browserHeaders mirrors a desktop Firefox navigation; the HTML endpoint rejects bare clients.
// Accept-Encoding is left to net/http so gzip is decoded transparently.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/png,image/svg+xml,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Connection":                "keep-alive",
	"Content-Type":              "application/x-www-form-urlencoded",
	"Origin":                    "https://html.duckduckgo.com",
	"Priority":                  "u=0, i",
	"Referer":                   "https://html.duckduckgo.com/",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "same-origin",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
	"User-Agent":                "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:130.0) Gecko/20100101 Firefox/130.0",
}

type Search struct {
	Endpoint string
	Client   *http.Client
	Logger   *zap.Logger
}

// New returns a Search against endpoint (DefaultEndpoint when empty).
func New(endpoint string, timeout time.Duration, logger *zap.Logger) Search {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Search{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}, Logger: logger}
}

// Search derives a query from modelOutput and returns the result page as plain text.
// It never fails: errors come back as a "Search failed" placeholder.
func (s Search) Search(ctx context.Context, modelOutput string) string {
	raw, found := helpers.ExtractBracketQuery(modelOutput)
	if !found {
		s.logger().Warn("no bracketed query in model output, searching with full text")
	}
	query := helpers.NormalizeQuery(raw)

	text, err := s.fetch(ctx, query)
	if err != nil {
		metrics.SearchRequests.WithLabelValues("failed").Inc()
		s.logger().Warn("web search failed", zap.String("query", query), zap.Error(err))
		return "Search failed: " + err.Error()
	}
	metrics.SearchRequests.WithLabelValues("ok").Inc()
	return fmt.Sprintf("Search results for query '%s':\n\n%s", query, text)
}

func (s Search) fetch(ctx context.Context, query string) (string, error) {
	form := "q=" + query + "&b=&kl=&df="
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, strings.NewReader(form))
	if err != nil {
		return "", err
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("search endpoint returned status %d", resp.StatusCode)
	}
	return ExtractText(io.LimitReader(resp.Body, maxBody))
}

// ExtractText parses an HTML document and returns its body text with whitespace collapsed.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	body := dom.QuerySelector(doc, "body")
	if body == nil {
		return "", nil
	}
	return helpers.CollapseWhitespace(dom.TextContent(body)), nil
}

func (s Search) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
