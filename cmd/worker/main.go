package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/punchamoorthee/inapppay/internal/app"
	"github.com/punchamoorthee/inapppay/internal/config"
	"github.com/punchamoorthee/inapppay/internal/events"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := app.NewLogger(cfg, "worker")
	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required; without it the api runs tasks in-process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notices, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to open notice store: %v", err)
	}
	defer notices.Close()

	queue, err := app.OpenQueue(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to open task queue: %v", err)
	}
	defer queue.Close()

	worker, err := app.NewWorker(cfg, queue, notices, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer worker.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := worker.Runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("task runner stopped", "error", err)
		}
	}()

	if len(cfg.KafkaBrokers) > 0 {
		consumer, err := events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaEventTopics)
		if err != nil {
			log.Fatal(err)
		}
		defer consumer.Close()
		cw := events.NewConsumerWorker(logger, consumer, worker.Trigger, cfg.PollInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event consumer stopped", "error", err)
			}
		}()
	} else {
		logger.Warn("KAFKA_BROKERS not set; transaction events will not be consumed")
	}

	logger.Info("worker started", "max_retries", cfg.MaxRetries, "poll_interval", cfg.PollInterval.String())
	wg.Wait()
	logger.Info("worker stopped")
}
