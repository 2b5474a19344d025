// Package main wires together the price tracker service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/priceloom/priceloom/internal/api"
	"github.com/priceloom/priceloom/internal/clock/system"
	"github.com/priceloom/priceloom/internal/config"
	"github.com/priceloom/priceloom/internal/crawler"
	"github.com/priceloom/priceloom/internal/discount"
	collyfetcher "github.com/priceloom/priceloom/internal/fetcher/colly"
	"github.com/priceloom/priceloom/internal/logging"
	"github.com/priceloom/priceloom/internal/ratelimit"
	"github.com/priceloom/priceloom/internal/store/postgres"
	"github.com/priceloom/priceloom/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime(),
	})
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer store.Close()

	clock := system.New()
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.RequestsPerSec,
		DefaultBurst: cfg.Crawler.Burst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}, limiter)

	cr := crawler.New(fetcher, store, crawler.NewHeuristicClassifier(), clock, crawler.Config{
		BaseURL:     cfg.Crawler.BaseURL,
		Keyword:     cfg.Crawler.Keyword,
		Concurrency: cfg.Crawler.Concurrency,
	}, logger.Named("crawler"))

	workflow := discount.NewWorkflow(store)
	activator := discount.NewActivator(store, clock, logger.Named("discount"))
	wk := worker.New(fetcher, store, store, store, workflow, activator, clock, worker.Config{
		BatchSize: cfg.Crawler.ScrapeBatchSize,
	}, logger.Named("worker"))

	apiServer := api.NewServer(cr, wk, store, store, store, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}
