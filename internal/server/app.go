// Package server assembles the share server from its configuration: the
// repositories, blob store, rate limiters, audit trail, HTTP API and the
// background sweeper. It also handles graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/logging"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/audit"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/blobstore"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/config"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/httpapi"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/ratelimit"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/repositories/repomanager"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/services"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	closers []io.Closer
	server  *httpapi.HTTPServer
	sweeper *services.Sweeper
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app := &App{config: cfg, logger: logger}
	if err := app.init(ctx); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	cfg := app.config

	repos, err := app.openRepositories(ctx)
	if err != nil {
		return err
	}
	app.repos = repos
	app.closers = append(app.closers, repos)

	blobs, err := app.openBlobStore(ctx)
	if err != nil {
		return fmt.Errorf("blob store init error: %w", err)
	}

	requests, passwords, err := app.openLimiters(ctx)
	if err != nil {
		return fmt.Errorf("rate limiter init error: %w", err)
	}

	fieldKey, err := cfg.FieldKey()
	if err != nil {
		return err
	}
	auditSvc, err := audit.NewService(repos, audit.Config{
		IPSalt:    []byte(cfg.AuditIPSalt),
		FieldKey:  fieldKey,
		Retention: cfg.AuditRetention,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("audit init error: %w", err)
	}

	shares := services.NewShareService(repos, blobs, passwords, auditSvc, services.NewLogNotifier(app.logger), services.ShareConfig{
		BaseURL:          cfg.BaseURL,
		DefaultExpiry:    cfg.DefaultExpiry,
		MaxExpiry:        cfg.MaxExpiry,
		MaxUploadSize:    cfg.MaxUploadSize,
		PasswordAttempts: cfg.PasswordAttempts,
		ExhaustedGrace:   cfg.ExhaustedGrace,
	}, app.logger)

	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return err
	}

	app.server = httpapi.NewHTTPServer(httpapi.Options{
		Address:           cfg.HTTPAddr,
		SecretKey:         cfg.SecretKey,
		RequestsPerMinute: cfg.RequestsPerMinute,
		MaxUploadSize:     cfg.MaxUploadSize,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		TrustedProxies:    proxies,
	}, app.logger, shares, auditSvc, requests)

	app.sweeper = services.NewSweeper(shares, auditSvc, cfg.SweepInterval, app.logger)
	return nil
}

func (app *App) openRepositories(ctx context.Context) (repomanager.RepositoryManager, error) {
	if app.config.DatabaseDSN == "" {
		app.logger.Warn(ctx, "no database configured, using in-memory repositories")
		return repomanager.NewInMemoryRepositoryManager(), nil
	}

	rm, err := repomanager.NewPostgresRepositoryManager(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx); err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}
	return rm, nil
}

func (app *App) openBlobStore(ctx context.Context) (blobstore.Store, error) {
	cfg := app.config
	if cfg.StorageType == config.StorageS3 {
		return blobstore.NewS3Store(ctx, blobstore.S3Config{
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	}
	return blobstore.NewFSStore(cfg.StorageDir)
}

// openLimiters returns the per-route request limiter and the password
// attempt limiter.
func (app *App) openLimiters(ctx context.Context) (ratelimit.Limiter, ratelimit.Limiter, error) {
	cfg := app.config
	if cfg.LimiterType != config.LimiterRedis {
		return ratelimit.NewMemoryLimiter(time.Minute), ratelimit.NewMemoryLimiter(cfg.PasswordWindow), nil
	}

	client, err := ratelimit.NewRedisClient(ctx, &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	app.closers = append(app.closers, client)

	return ratelimit.NewRedisLimiter(client, "requests", time.Minute),
		ratelimit.NewRedisLimiter(client, "password", cfg.PasswordWindow), nil
}

func (app *App) close() {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i].Close())
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error(context.Background(), "close failed", "error", err)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until a termination signal arrives or the HTTP server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, "HTTP server failed", "error", err)
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()
	app.close()
	app.logger.Info(context.Background(), "App stopped")
}
