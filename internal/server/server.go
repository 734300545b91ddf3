package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/ori/config"
	"github.com/mohammad-safakhou/ori/internal/pipeline"
	"github.com/mohammad-safakhou/ori/internal/runtime"
	"github.com/mohammad-safakhou/ori/internal/store"
	"github.com/mohammad-safakhou/ori/internal/streaming"
	"github.com/mohammad-safakhou/ori/provider"
	"github.com/mohammad-safakhou/ori/tools/web_search"
)

const shutdownTimeout = 15 * time.Second

// Options are the dependencies of the HTTP API.
type Options struct {
	Repo          Repository
	Users         UserRepository
	Orch          *pipeline.Orchestrator
	Events        EventStore
	Secret        []byte
	SecureCookies bool
	Logger        *zap.Logger
}

// New builds the echo instance with every route mounted.
func New(opts Options) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "Last-Event-ID"},
		ExposeHeaders:    []string{"X-Chat-Id", echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	auth := &AuthHandler{Users: opts.Users, Secret: opts.Secret, SecureCookies: opts.SecureCookies}
	auth.Register(api.Group("/auth"))

	chats := &ChatHandler{Repo: opts.Repo, Orch: opts.Orch, Events: opts.Events, Logger: logger}
	chats.Register(api, opts.Secret)
	return e
}

// Backend is a storage implementation serving both chats and accounts.
type Backend interface {
	Repository
	UserRepository
}

// Deps are the long-lived resources built from configuration.
type Deps struct {
	Backend  Backend
	EventLog *streaming.EventLog
	Orch     *pipeline.Orchestrator
	closers  []func() error
}

// Close releases the storage and redis connections.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

// Build wires storage, the optional redis event log and the orchestrator.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Deps, error) {
	d := &Deps{}
	switch cfg.Storage.Driver {
	case "memory":
		d.Backend = store.NewMemory()
	default:
		dsn, err := runtime.BuildPostgresDSN(cfg)
		if err != nil {
			return nil, err
		}
		st, err := store.NewWithDSN(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.Backend = st
		d.closers = append(d.closers, st.Close)
	}

	if cfg.Storage.Redis.Enabled() {
		rc := cfg.Storage.Redis
		rdb := redis.NewClient(&redis.Options{
			Addr:         rc.Addr(),
			Password:     rc.Password,
			DB:           rc.DB,
			DialTimeout:  rc.Timeout,
			ReadTimeout:  rc.Timeout,
			WriteTimeout: rc.Timeout,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			_ = d.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		d.closers = append(d.closers, rdb.Close)
		d.EventLog = streaming.NewEventLog(rdb, rc.StreamMaxLen, rc.EventTTL, logger)
	}

	orch, err := NewOrchestrator(cfg, d.Backend, d.EventLog, logger)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Orch = orch
	return d, nil
}

// NewOrchestrator builds the pipeline from the llm, search and pipeline sections.
// events may be nil.
func NewOrchestrator(cfg *config.Config, repo Repository, events *streaming.EventLog, logger *zap.Logger) (*pipeline.Orchestrator, error) {
	factory, err := provider.NewFactory(provider.Client(cfg.LLM.Provider), provider.Options{
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, err
	}
	searcher, err := web_search.NewWebSearcher(web_search.Provider(cfg.Search.Provider), cfg.Search.Endpoint, cfg.Search.Timeout, logger)
	if err != nil {
		return nil, err
	}
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithSettings(pipeline.Settings{
			FailMode:       pipeline.FailMode(cfg.Pipeline.FailMode),
			MaxRetries:     cfg.Pipeline.MaxRetries,
			RetryBackoff:   cfg.Pipeline.RetryBackoff,
			TitleLength:    cfg.Pipeline.TitleLength,
			FallbackAPIKey: cfg.LLM.APIKey,
		}),
	}
	if events != nil {
		opts = append(opts, pipeline.WithEventLog(events))
	}
	return pipeline.New(repo, repo, factory, searcher, opts...), nil
}

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, version string, logger *zap.Logger) error {
	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}
	tele, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, version, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tele.Shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	deps, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("close resources", zap.Error(err))
		}
	}()

	opts := Options{
		Repo:          deps.Backend,
		Users:         deps.Backend,
		Orch:          deps.Orch,
		Secret:        secret,
		SecureCookies: !cfg.General.Debug,
		Logger:        logger,
	}
	if deps.EventLog != nil {
		opts.Events = deps.EventLog
	}
	e := New(opts)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("address", cfg.Server.Address), zap.String("storage", cfg.Storage.Driver))
		errCh <- e.Start(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down http server")
	return e.Shutdown(sctx)
}
