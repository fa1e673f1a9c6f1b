package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artpar/fnhost/internal/core/crypto"
	"github.com/artpar/fnhost/internal/shell/api"
	"github.com/artpar/fnhost/internal/shell/cache"
	"github.com/artpar/fnhost/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitCacheError      = 3
	ExitHTTPServerError = 4
)

// cacheConnectTimeout bounds the startup ping to Redis.
const cacheConnectTimeout = 5 * time.Second

// =============================================================================
// Server
// =============================================================================

// Server represents the fnhost application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	redis      *redis.Client
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	if err := ensureDataDir(cfg.Database.DSN); err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	db, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	var (
		s           store.Store = db
		redisClient *redis.Client
	)
	if cfg.Cache.Enabled {
		pingCtx, cancel := context.WithTimeout(ctx, cacheConnectTimeout)
		redisClient, err = cache.NewClient(pingCtx, cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		cancel()
		if err != nil {
			db.Close()
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitCacheError}
		}
		s = cache.New(db, redisClient, cfg.Cache.TTL, logger)
		logger.Info("function cache enabled", "addr", cfg.Cache.Addr, "ttl", cfg.Cache.TTL)
	}

	opts := []api.Option{api.WithAuthToken(cfg.Server.AuthToken)}
	if cfg.Credentials.EncryptionKey != "" {
		key, err := crypto.DeriveKey(cfg.Credentials.EncryptionKey)
		if err != nil {
			db.Close()
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
		}
		opts = append(opts, api.WithSecretKey(key))
	} else {
		logger.Warn("credentials.encryption_key not set, credential endpoints disabled")
	}
	if cfg.Server.AuthToken == "" {
		logger.Warn("server.auth_token not set, API is unauthenticated")
	}

	handler := api.NewHandler(s, logger, opts...)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		redis:      redisClient,
		logger:     logger,
	}, nil
}

// ensureDataDir creates the directory holding a file-backed database.
func ensureDataDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.close()
		return &ServerError{Op: "Start", Err: err, ExitCode: ExitHTTPServerError}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.close()
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.close()
	s.logger.Info("shutdown complete")
	return nil
}

func (s *Server) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
