// Package app wires configuration, the backend client and the HTTP server
// into a runnable application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/handcrafted-haven/marketplace/internal/api"
	"github.com/handcrafted-haven/marketplace/internal/cache"
	"github.com/handcrafted-haven/marketplace/internal/config"
	"github.com/handcrafted-haven/marketplace/internal/logging"
	"github.com/handcrafted-haven/marketplace/internal/metrics"
	"github.com/handcrafted-haven/marketplace/internal/services"
	"github.com/handcrafted-haven/marketplace/internal/supabase"
)

// Application manages the HTTP server lifecycle and its dependencies.
type Application struct {
	cfg        *config.Config
	log        *logging.Logger
	api        *api.Server
	httpServer *http.Server
	cache      *cache.Cache
}

// New constructs an application from configuration.
func New(cfg *config.Config) (*Application, error) {
	log := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	m := metrics.New()

	backend, err := supabase.New(supabase.Config{
		ProjectURL: cfg.Supabase.ProjectURL,
		AnonKey:    cfg.Supabase.AnonKey,
		ServiceKey: cfg.Supabase.ServiceKey,
		Timeout:    cfg.Supabase.Timeout.Std(),
		Retry:      retryConfig(cfg),
		Breaker:    supabase.DefaultCircuitBreakerConfig(),
		OnRetry:    m.RecordBackendRetry,
		OnCircuitStateChange: func(from, to supabase.CircuitState) {
			m.SetCircuitState(float64(to))
			log.Warnf("backend circuit breaker %s -> %s", from, to)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	c := cache.New(cfg.Cache.RedisAddr, cfg.Cache.TTL.Std())
	if c.Enabled() {
		log.Infof("listing cache enabled at %s", cfg.Cache.RedisAddr)
	}

	bucket := cfg.Supabase.StorageBucket
	server := api.NewServer(api.Deps{
		Accounts: services.NewAccountService(backend, bucket, log, m),
		Profiles: services.NewProfileService(backend, bucket, log, m),
		Products: services.NewProductService(backend, c, bucket, log, m),
		Reviews:  services.NewReviewService(backend, log, m),
		Messages: services.NewMessageService(backend, log, m),
		Cache:    c,
		Logger:   log,
		Metrics:  m,
		Config:   cfg,
	})

	return &Application{
		cfg: cfg,
		log: log,
		api: server,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      server.Router(),
			ReadTimeout:  cfg.Server.ReadTimeout.Std(),
			WriteTimeout: cfg.Server.WriteTimeout.Std(),
		},
		cache: c,
	}, nil
}

func retryConfig(cfg *config.Config) supabase.RetryConfig {
	retry := supabase.DefaultRetryConfig()
	if cfg.Supabase.MaxRetries > 0 {
		retry.MaxRetries = cfg.Supabase.MaxRetries
	}
	return retry
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.log.Infof("marketplace API listening on %s", a.cfg.Server.Addr())
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains in-flight requests and releases resources.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout.Std()
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.api.Close()
	if err := a.cache.Close(); err != nil {
		a.log.Warnf("closing cache: %v", err)
	}
	return nil
}
