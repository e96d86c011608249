package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"candidate-pipeline/internal/api"
	"candidate-pipeline/internal/config"
	"candidate-pipeline/internal/events"
	"candidate-pipeline/internal/export"
	"candidate-pipeline/internal/ratelimit"
	"candidate-pipeline/internal/store"
	"candidate-pipeline/internal/telemetry"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	shutdownTracing, err := telemetry.InitTracing("pipeline-api", cfg.OTelExporter, cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	repo, closeRepo, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeRepo()

	stages, err := cfg.Stages()
	if err != nil {
		log.Fatalf("stage template: %v", err)
	}
	if seeded, err := store.EnsureStages(ctx, repo, stages); err != nil {
		log.Fatalf("seed stages: %v", err)
	} else if seeded {
		log.Printf("seeded %d stages", len(stages))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	limiter := ratelimit.NewTokenBucket(rdb, cfg.RateLimitCapacity, cfg.RateLimitRefill, cfg.RateLimitBatch, time.Hour)
	feed := events.NewRedisFeed(rdb, cfg.ActivityFeedSize)

	publisher, err := export.NewPublisher(ctx, cfg)
	if err != nil {
		log.Fatalf("export publisher: %v", err)
	}

	server := api.New(cfg, repo, limiter, feed, publisher)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("api listening on :%s store=%s", cfg.HTTPPort, cfg.StoreDriver)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
