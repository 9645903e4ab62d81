package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/inapppay/internal/api"
	"github.com/punchamoorthee/inapppay/internal/app"
	"github.com/punchamoorthee/inapppay/internal/config"
	"github.com/punchamoorthee/inapppay/internal/service"
	"github.com/punchamoorthee/inapppay/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := app.NewLogger(cfg, "api")

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

	// Without Redis nobody else can see our queue, so run the tasks here.
	var trigger *service.Trigger
	if queue.Shared {
		trigger = service.NewTrigger(cfg.Service(), tasks.NewClient(queue.Tasks), logger)
	} else {
		worker, err := app.NewWorker(cfg, queue, notices, logger)
		if err != nil {
			log.Fatalf("Unable to start in-process worker: %v", err)
		}
		defer worker.Close()
		trigger = worker.Trigger
		go func() {
			if err := worker.Runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("in-process worker stopped", "error", err)
			}
		}()
	}

	handler := api.NewHandler(trigger, notices, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("server starting", "port", cfg.Port, "shared_queue", queue.Shared)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
