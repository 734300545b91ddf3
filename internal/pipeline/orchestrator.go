package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/ori/internal/helpers"
	"github.com/mohammad-safakhou/ori/internal/metrics"
	"github.com/mohammad-safakhou/ori/internal/stages"
	"github.com/mohammad-safakhou/ori/internal/store"
	"github.com/mohammad-safakhou/ori/provider"
	"github.com/mohammad-safakhou/ori/provider/models"
	"github.com/mohammad-safakhou/ori/tools/web_search"
)

// NewChatID is the chat identifier a caller sends to start a conversation.
const NewChatID = "new"

// FailMode selects what a push run does after a stage fails.
type FailMode string

const (
	// FailOpen reports the failure and moves on to the next stage.
	FailOpen FailMode = "open"
	// FailClosed reports the failure and stops the run.
	FailClosed FailMode = "closed"
)

// Settings tunes the orchestrator.
type Settings struct {
	FailMode FailMode
	// MaxRetries is the number of extra attempts for retryable upstream errors.
	MaxRetries   int
	RetryBackoff time.Duration
	TitleLength  int
	// FallbackAPIKey is used when the user has no key of their own.
	FallbackAPIKey string
}

func (s Settings) withDefaults() Settings {
	if s.FailMode == "" {
		s.FailMode = FailOpen
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.RetryBackoff <= 0 {
		s.RetryBackoff = 500 * time.Millisecond
	}
	if s.TitleLength <= 0 {
		s.TitleLength = 50
	}
	return s
}

var pipelineTracer trace.Tracer = otel.Tracer("ori/internal/pipeline")

// Orchestrator drives chats through the stage catalog. It holds no
// per-run state and is safe for concurrent use.
type Orchestrator struct {
	gateway    Gateway
	creds      CredentialSource
	completers provider.Factory
	searcher   web_search.WebSearcher
	events     EventAppender
	settings   Settings
	logger     *zap.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Orchestrator)

func WithSettings(s Settings) Option { return func(o *Orchestrator) { o.settings = s.withDefaults() } }

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEventLog records every push-mode event before it reaches the sink.
func WithEventLog(a EventAppender) Option { return func(o *Orchestrator) { o.events = a } }

// New builds an Orchestrator. creds may be nil when only the fallback key is used.
func New(gateway Gateway, creds CredentialSource, completers provider.Factory, searcher web_search.WebSearcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:    gateway,
		creds:      creds,
		completers: completers,
		searcher:   searcher,
		settings:   Settings{}.withDefaults(),
		logger:     zap.NewNop(),
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Settings() Settings { return o.settings }

// resolveChat loads an existing chat and checks ownership. It returns a zero
// chat and ok=false for the new-chat sentinel.
func (o *Orchestrator) resolveChat(ctx context.Context, userID, chatID string) (store.Chat, bool, error) {
	if chatID == NewChatID || chatID == "" {
		return store.Chat{}, false, nil
	}
	chat, ok, err := o.gateway.GetChat(ctx, chatID)
	if err != nil {
		return store.Chat{}, false, fmt.Errorf("load chat: %w", err)
	}
	if !ok {
		return store.Chat{}, false, ErrNotFound
	}
	if chat.UserID != userID {
		return store.Chat{}, false, ErrForbidden
	}
	return chat, true, nil
}

func (o *Orchestrator) completerFor(ctx context.Context, userID string) (provider.Completer, error) {
	key := ""
	if o.creds != nil {
		k, err := o.creds.GetUserAPIKey(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load api key: %w", err)
		}
		key = strings.TrimSpace(k)
	}
	if key == "" {
		key = strings.TrimSpace(o.settings.FallbackAPIKey)
	}
	if key == "" {
		return nil, ErrMissingCredential
	}
	return o.completers(key), nil
}

func (o *Orchestrator) title(text string) string {
	return helpers.Truncate(strings.TrimSpace(text), o.settings.TitleLength)
}

// stageRun is everything one stage execution needs.
type stageRun struct {
	chat      store.Chat
	completer provider.Completer
	stage     stages.Stage
	history   []models.Message
	original  string
	mode      string
}

// runStage calls the completion backend, then the searcher for the search
// stage, and persists the assistant message.
func (o *Orchestrator) runStage(ctx context.Context, r stageRun) (store.Message, error) {
	name := r.stage.Name()
	ctx, span := pipelineTracer.Start(ctx, "pipeline.stage",
		trace.WithAttributes(
			attribute.String("ori.chat_id", r.chat.ID),
			attribute.String("ori.stage", name),
			attribute.String("ori.mode", r.mode),
		))
	defer span.End()

	log := o.logger.With(zap.String("chat_id", r.chat.ID), zap.String("stage", name), zap.String("mode", r.mode))
	start := o.now()
	defer func() { metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds()) }()
	log.Debug("stage started", zap.Int("context_len", len(r.history)))

	fail := func(err error) (store.Message, error) {
		metrics.StageFailures.WithLabelValues(name).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("stage failed", zap.Error(err))
		return store.Message{}, err
	}

	content, err := o.complete(ctx, r.completer, r.history, r.stage, r.original)
	if err != nil {
		return fail(err)
	}
	var results string
	if r.stage.SearchesWeb() {
		results = o.searcher.Search(ctx, content)
		span.SetAttributes(attribute.Int("ori.search_results_len", len(results)))
	}
	msg, err := o.gateway.CreateMessage(ctx, store.NewMessage{
		ChatID:        r.chat.ID,
		UserID:        r.chat.UserID,
		Role:          store.RoleAssistant,
		Content:       content,
		Stage:         name,
		SearchResults: results,
	})
	if err != nil {
		return fail(fmt.Errorf("persist stage message: %w", err))
	}
	log.Debug("stage finished", zap.String("message_id", msg.ID))
	return msg, nil
}

// complete applies the retry policy around a single completion call.
func (o *Orchestrator) complete(ctx context.Context, c provider.Completer, history []models.Message, stage stages.Stage, original string) (string, error) {
	for attempt := 0; ; attempt++ {
		out, err := c.Complete(ctx, history, stage, original)
		if err == nil {
			return out, nil
		}
		var upErr *models.UpstreamError
		if attempt >= o.settings.MaxRetries || !errors.As(err, &upErr) || !upErr.Retryable() {
			return "", err
		}
		metrics.CompletionRetries.WithLabelValues(stage.Name()).Inc()
		wait := backoff(o.settings.RetryBackoff, attempt)
		o.logger.Info("retrying completion",
			zap.String("stage", stage.Name()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err))
		if err := o.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}

// maxRetryBackoff bounds a single wait between completion attempts.
const maxRetryBackoff = 30 * time.Second

// backoff doubles base per attempt, clamped to maxRetryBackoff.
func backoff(base time.Duration, attempt int) time.Duration {
	if base >= maxRetryBackoff {
		return maxRetryBackoff
	}
	wait := base
	for i := 0; i < attempt && wait < maxRetryBackoff; i++ {
		wait *= 2
	}
	if wait > maxRetryBackoff {
		return maxRetryBackoff
	}
	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func stringPtr(s string) *string { return &s }
func boolPtr(b bool) *bool       { return &b }
