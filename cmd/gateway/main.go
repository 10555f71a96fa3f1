// Package main wires together the analyzer gateway binary.
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

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/siteinsight/analyzer-gateway/internal/api"
	"github.com/siteinsight/analyzer-gateway/internal/backend"
	"github.com/siteinsight/analyzer-gateway/internal/cache"
	gcscache "github.com/siteinsight/analyzer-gateway/internal/cache/gcs"
	memorycache "github.com/siteinsight/analyzer-gateway/internal/cache/memory"
	rediscache "github.com/siteinsight/analyzer-gateway/internal/cache/redis"
	"github.com/siteinsight/analyzer-gateway/internal/clock/system"
	"github.com/siteinsight/analyzer-gateway/internal/config"
	"github.com/siteinsight/analyzer-gateway/internal/gateway"
	"github.com/siteinsight/analyzer-gateway/internal/logging"
	"github.com/siteinsight/analyzer-gateway/internal/metrics"
	"github.com/siteinsight/analyzer-gateway/internal/notify"
	memorynotify "github.com/siteinsight/analyzer-gateway/internal/notify/memory"
	pubsubnotify "github.com/siteinsight/analyzer-gateway/internal/notify/pubsub"
	"github.com/siteinsight/analyzer-gateway/internal/observe"
	"github.com/siteinsight/analyzer-gateway/internal/screenshot"
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
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := backend.NewClient(backend.Config{
		BaseURL:        cfg.Backend.BaseURL,
		RequestTimeout: cfg.RequestTimeout(),
	}, logger.Named("backend"))
	if err != nil {
		logger.Fatal("backend client init failed", zap.Error(err))
	}

	var observer observe.Observer
	switch cfg.Observe.Mode {
	case "stream":
		open := func(ctx context.Context, jobID string) (observe.SnapshotReader, error) {
			return client.StreamStatus(ctx, jobID)
		}
		observer = observe.NewStreamer(open, logger.Named("stream"))
	default:
		observer = observe.NewPoller(client, observe.PollerConfig{
			Interval:         cfg.PollInterval(),
			FailureThreshold: cfg.Observe.FailureThreshold,
		}, logger.Named("poll"))
	}

	clock := system.New()
	var artifactCache cache.Cache
	switch cfg.Cache.Provider {
	case "memory":
		artifactCache = memorycache.New(cfg.CacheTTL(), clock)
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		defer func() {
			_ = rdb.Close()
		}()
		artifactCache = rediscache.New(rdb, cfg.CacheTTL())
	case "gcs":
		gcs, err := gcscache.New(ctx, cfg.Cache.GCS.Bucket, cfg.Cache.GCS.Prefix, cfg.CacheTTL(), clock)
		if err != nil {
			logger.Fatal("gcs cache init failed", zap.Error(err))
		}
		defer func() {
			_ = gcs.Close()
		}()
		artifactCache = gcs
	}

	var notifier notify.Publisher
	switch cfg.Notify.Provider {
	case "memory":
		notifier = memorynotify.New()
	case "pubsub":
		pub, err := pubsubnotify.New(ctx, cfg.Notify.ProjectID, cfg.Notify.Topic)
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
		defer func() {
			_ = pub.Close()
		}()
		notifier = pub
	}

	svc := gateway.NewService(client, observer, notifier, logger.Named("gateway"))
	proxy := screenshot.NewProxy(client, artifactCache, screenshot.Config{
		FetchTimeout: cfg.RequestTimeout(),
	}, logger.Named("screenshot"))
	apiServer := api.NewServer(svc, proxy, logger.Named("api"))

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
	logger.Info("shutdown complete")
}
