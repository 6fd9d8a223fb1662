package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"astrogems/backend/internal/aiparse"
	"astrogems/backend/internal/config"
	"astrogems/backend/internal/httpapi"
	"astrogems/backend/internal/kv"
	"astrogems/backend/internal/registry"
	"astrogems/backend/internal/service"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.Environment)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var store kv.Store
	closers := make([]func() error, 0, 2)

	switch {
	case cfg.DatabaseURL != "":
		pg, err := kv.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set, refusing in-memory fallback", zap.Error(err))
		}
		store = pg
		closers = append(closers, pg.Close)
		logger.Info("storage: postgres")
	case cfg.RedisAddr != "":
		rd := kv.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rd.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using in-memory storage", zap.Error(err))
			store = kv.NewMemory()
		} else {
			store = rd
			closers = append(closers, rd.Close)
			logger.Info("storage: redis")
		}
	default:
		store = kv.NewMemory()
		logger.Info("storage: in-memory")
	}

	var parser aiparse.Parser = aiparse.NoopParser{}
	if cfg.GeminiAPIKey != "" {
		parser = aiparse.NewGeminiParser(cfg.GeminiAPIKey, cfg.GeminiModel,
			time.Duration(cfg.GeminiTimeoutSeconds)*time.Second, logger)
		logger.Info("smart-add parser: gemini")
	} else {
		logger.Info("smart-add parser: disabled (no GEMINI_API_KEY)")
	}

	svc := service.New(registry.NewStore(store, logger), parser, logger)
	api := httpapi.New(svc, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("billing backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func newLogger(environment string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return logger
}
