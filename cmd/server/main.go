package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/filevault/internal/cache"
	"github.com/iliyamo/filevault/internal/config"
	"github.com/iliyamo/filevault/internal/database"
	"github.com/iliyamo/filevault/internal/handler"
	"github.com/iliyamo/filevault/internal/middleware"
	"github.com/iliyamo/filevault/internal/queue"
	"github.com/iliyamo/filevault/internal/repository"
	"github.com/iliyamo/filevault/internal/router"
	"github.com/iliyamo/filevault/internal/service"
	"github.com/iliyamo/filevault/internal/storage"
)

func main() {
	cfg, cfgErr := config.Load() // Load environment config

	zl, err := newLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()
	if cfgErr != nil {
		log.Errorw("invalid configuration", "error", cfgErr)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorw("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) error {
	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	// Redis is optional: without it there is no revocation cache and the
	// rate limiter runs in-process.
	rdb := config.NewRedisClient(cfg.Redis)
	var revCache service.RevocationCache
	if rdb != nil {
		defer rdb.Close()
		revCache = cache.NewRevocationCache(rdb, cfg.Redis.Prefix, cfg.RevocationCacheTTL)
	} else {
		log.Warnw("redis unavailable; revocation cache disabled", "addr", cfg.Redis.Address())
	}

	var events service.EventPublisher = queue.Nop{}
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, log)
		defer pub.Close()
		events = pub
	}
	if cfg.AuditConsumer {
		go func() {
			if err := queue.StartAuditConsumer(ctx, cfg.RabbitURL, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("audit consumer stopped", "error", err)
			}
		}()
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	tokens := service.NewTokenService(repository.NewTokenRepo(db), revCache, events, service.TokenConfig{
		Secret:     []byte(cfg.JWTSecret),
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	}, log)
	creds := service.NewCredentialService(repository.NewUserRepo(db), events, cfg.BcryptCost, log)
	files := service.NewFileService(repository.NewFileRepo(db), blobs, events, log)

	go service.NewSweeper(tokens, cfg.SweepInterval, log).Run(ctx)

	e := router.New(router.Deps{
		Auth:      handler.NewAuthHandler(creds, tokens, log),
		Files:     handler.NewFileHandler(files, cfg.MaxUploadBytes(), log),
		Verifier:  tokens,
		RateLimit: middleware.RateLimit(cfg.RateLimit, rdb, log),
		DB:        db,
		Log:       log,
	})

	addr := ":" + cfg.Port
	log.Infow("listening", "addr", addr, "env", cfg.Env, "storage", cfg.StorageBackend)

	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(addr) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Infow("shutting down")
	return e.Shutdown(shutdownCtx)
}

func newBlobStore(ctx context.Context, cfg config.Config) (service.BlobStore, error) {
	if cfg.StorageBackend == "s3" {
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	}
	return storage.NewDiskStore(cfg.StorageDir)
}
