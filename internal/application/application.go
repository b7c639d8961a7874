package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/coffee-shop/internal/api"
	"github.com/eugenenazirov/coffee-shop/internal/auth"
	"github.com/eugenenazirov/coffee-shop/internal/config"
	"github.com/eugenenazirov/coffee-shop/internal/environment"
	"github.com/eugenenazirov/coffee-shop/internal/storage"
)

const sqliteBusyTimeout = 5 * time.Second

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage  storage.Storage
	verifier api.TokenVerifier
	handler  *api.Handler
	router   http.Handler
	logger   *zap.Logger
	server   *http.Server
}

// Option customises App construction.
type Option func(*options)

type options struct {
	verifier api.TokenVerifier
	storage  storage.Storage
}

// WithTokenVerifier replaces the JWKS-backed verifier, primarily for tests.
func WithTokenVerifier(v api.TokenVerifier) Option {
	return func(o *options) {
		o.verifier = v
	}
}

// WithStorage supplies an already opened store instead of one built from
// the configured driver.
func WithStorage(s storage.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// New initializes the application with all dependencies from the provided
// configuration and environment record.
func New(ctx context.Context, cfg config.Config, env environment.Environment, logger *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := o.storage
	if store == nil {
		var err error
		store, err = openStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	if cfg.ResetDatabase || cfg.StorageDriver == config.StorageMemory {
		if err := store.Reset(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("reset storage: %w", err)
		}
		logger.Info("storage reset", zap.String("driver", cfg.StorageDriver))
	}

	verifier := o.verifier
	if verifier == nil {
		keys := auth.NewJWKSCache(env.JWKSURL(), nil, cfg.JWKSCacheTTL)
		verifier = auth.NewVerifier(keys, env.Issuer(), env.Auth0.Audience)
	}

	handler := api.NewHandler(store, verifier, env, api.WithHandlerLogger(logger))
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithCORSOrigin(cfg.CORSAllowedOrigin),
	)

	server, err := NewServer(cfg, env, apiRouter)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{
		storage:  store,
		verifier: verifier,
		handler:  handler,
		router:   apiRouter,
		logger:   logger,
		server:   server,
	}, nil
}

func openStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return storage.NewMemoryStorage(), nil
	case config.StorageSQLite:
		store, err := storage.OpenSQLite(ctx, storage.SQLiteConfig{
			Path:        cfg.DatabasePath,
			WALMode:     true,
			BusyTimeout: sqliteBusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// NewServer creates and configures an HTTP server. The listen port is
// cfg.Port when set, otherwise the port of env.APIServerURL.
func NewServer(cfg config.Config, env environment.Environment, handler http.Handler) (*http.Server, error) {
	addr, err := ListenAddr(cfg, env)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}, nil
}

// ListenAddr resolves the address the server binds to.
func ListenAddr(cfg config.Config, env environment.Environment) (string, error) {
	addr := strings.TrimSpace(cfg.Port)
	if addr == "" {
		u, err := url.Parse(env.APIServerURL)
		if err != nil {
			return "", fmt.Errorf("derive port from apiServerUrl: %w", err)
		}
		addr = u.Port()
		if addr == "" {
			switch u.Scheme {
			case "https":
				addr = "443"
			case "http":
				addr = "80"
			default:
				return "", fmt.Errorf("derive port from apiServerUrl %q: no port", env.APIServerURL)
			}
		}
	}
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	return addr, nil
}

// Start binds the listener and serves requests in a goroutine. Bind errors
// are returned to the caller.
func (a *App) Start() error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}
	a.logger.Info("server listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the fully wired HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Close releases the storage backend.
func (a *App) Close() error {
	return a.storage.Close()
}
