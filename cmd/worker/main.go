package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"clip-compiler/internal"
	"clip-compiler/internal/compile"
	"clip-compiler/internal/ffmpeg"
	"clip-compiler/internal/logging"
	"clip-compiler/internal/media"
	"clip-compiler/internal/queue"
	"clip-compiler/internal/s3"
	"clip-compiler/internal/status"
	"clip-compiler/internal/upload"
)

func main() {
	// Load .env file if it exists (try multiple paths)
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, path := range envPaths {
		_ = godotenv.Load(path)
	}

	log, err := logging.New("errors.log")
	if err != nil {
		panic(err)
	}
	defer log.Close()

	cfg, err := internal.LoadConfig()
	if err != nil {
		log.Errorf("config: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("shutdown signal received")
		cancel()
	}()

	store, err := s3.New(cfg)
	if err != nil {
		log.Errorf("s3: %v", err)
		os.Exit(1)
	}

	origin, err := media.NewOrigin(cfg, store)
	if err != nil {
		log.Errorf("media origin: %v", err)
		os.Exit(1)
	}
	resolver, err := media.NewResolver(cfg, origin, log)
	if err != nil {
		log.Errorf("media resolver: %v", err)
		os.Exit(1)
	}

	runner, err := ffmpeg.NewRunner(cfg, log)
	if err != nil {
		log.Errorf("ffmpeg: %v", err)
		os.Exit(1)
	}

	tracker := status.NewTracker(cfg)
	defer tracker.Close()
	if err := tracker.Ping(ctx); err != nil {
		log.Errorf("redis: %v", err)
		os.Exit(1)
	}

	orch := compile.NewOrchestrator(
		cfg,
		runner,
		compile.NewProcessor(cfg, runner, resolver, log),
		compile.NewCompositor(runner, resolver, log),
		tracker,
		tracker,
		upload.NewS3Uploader(cfg, store, log),
		upload.NewLocalUploader(cfg, log),
		tracker,
		log,
	)
	worker := queue.NewWorker(orch, log)

	// Cache janitor: evict downloaded media nobody has touched recently.
	janitor := cron.New()
	if _, err := janitor.AddFunc(cfg.CacheSweep, func() { resolver.Sweep(cfg.CacheMaxAge) }); err != nil {
		log.Errorf("janitor: %v", err)
		os.Exit(1)
	}
	janitor.Start()
	defer janitor.Stop()

	consumer, err := queue.NewConsumer(cfg, log)
	if err != nil {
		log.Errorf("kafka: %v", err)
		os.Exit(1)
	}
	defer consumer.Close()

	log.Infof("worker: ready (topic=%s, cache=%s)", cfg.KafkaTopic, cfg.CacheDir)
	if err := consumer.Consume(ctx, func(key, value []byte) error {
		return worker.Handle(ctx, key, value)
	}); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("worker stopped: %v", err)
		os.Exit(1)
	}
}
