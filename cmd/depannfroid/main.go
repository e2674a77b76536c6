// Package main запускает HTTP-сервер сервиса отчётов о вмешательствах.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/depannfroid-reports/internal/config"
	"github.com/mmeshcher/depannfroid-reports/internal/handler"
	"github.com/mmeshcher/depannfroid-reports/internal/repository"
	"github.com/mmeshcher/depannfroid-reports/internal/service"
	"github.com/mmeshcher/depannfroid-reports/internal/signature"
	"github.com/mmeshcher/depannfroid-reports/internal/workflow"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func newDraftRepository(dsn string) (service.DraftRepository, error) {
	if dsn == "" {
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(dsn)
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	drafts, err := newDraftRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	if cfg.WorkflowEndpoint == "" {
		sugar.Warn("WORKFLOW_ENDPOINT is not set, remote operations will fail")
	}
	if cfg.SignatureSecret == "" {
		sugar.Warn("SIGNATURE_SECRET is not set, signature links expire on restart")
	}

	wf := workflow.NewClient(cfg.WorkflowEndpoint, cfg.WorkflowTimeout)
	signer := signature.NewSigner(cfg.SignatureSecret)

	svc := service.NewService(wf, drafts, cfg.Settings(), signer, logger)
	defer svc.Close()

	h := handler.NewHandler(svc, logger, signer)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if cfg.WorkflowEndpoint != "" {
			if err := svc.RefreshClients(ctx); err != nil {
				sugar.Warnw("initial client directory load failed", "error", err)
			}
		}
		svc.StartBackgroundSync(ctx, cfg.ClientSyncInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting depannfroid server", "addr", cfg.RunAddress, "drafts_db", cfg.DatabaseURI != "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

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
