// Package main запускает HTTP-сервер журнала лояльности клиники.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/clinic-ledger/internal/config"
	"github.com/mmeshcher/clinic-ledger/internal/handler"
	"github.com/mmeshcher/clinic-ledger/internal/ledger"
	"github.com/mmeshcher/clinic-ledger/internal/lock"
	"github.com/mmeshcher/clinic-ledger/internal/model"
	"github.com/mmeshcher/clinic-ledger/internal/repository"
	"github.com/mmeshcher/clinic-ledger/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		sugar.Info("using postgres storage")
	} else {
		repo = repository.NewMemoryRepository(model.Snapshot{})
		sugar.Info("using in-memory storage")
	}

	var locker lock.Locker = lock.NewMutexLocker()
	if cfg.RedisAddress != "" {
		client, err := lock.ConnectRedis(ctx, cfg.RedisAddress, cfg.RedisPassword)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer client.Close()

		locker = lock.NewRedisLocker(client, cfg.LockTTL, logger)
		sugar.Infow("using redis writer lock", "addr", cfg.RedisAddress, "ttl", cfg.LockTTL)
	}

	svc := service.NewService(repo, locker, logger)
	defer svc.Close()

	if cfg.SeedDemo {
		seeded, err := svc.Seed(ctx, ledger.DemoSnapshot())
		if err != nil {
			sugar.Fatalw("seed demo clinic error", "error", err.Error())
		}
		sugar.Infow("demo clinic", "seeded", seeded)
	}

	h := handler.NewHandler(svc, logger)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting clinic ledger server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
