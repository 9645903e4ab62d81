// Package app wires configuration into the concrete adapters shared by the
// api and worker binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/punchamoorthee/inapppay/internal/billing"
	"github.com/punchamoorthee/inapppay/internal/config"
	"github.com/punchamoorthee/inapppay/internal/domain"
	"github.com/punchamoorthee/inapppay/internal/events"
	"github.com/punchamoorthee/inapppay/internal/icons"
	"github.com/punchamoorthee/inapppay/internal/service"
	"github.com/punchamoorthee/inapppay/internal/store"
	"github.com/punchamoorthee/inapppay/internal/tasks"
	"github.com/redis/go-redis/v9"
)

// NoticeStore is implemented by both store backends.
type NoticeStore interface {
	SaveNotice(ctx context.Context, n domain.Notice) error
	ListNotices(ctx context.Context, transactionUUID string) ([]domain.Notice, error)
	Close() error
}

func NewLogger(cfg *config.Config, binary string) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Env == "development" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", "inapppay-"+binary, "environment", cfg.Env)
	slog.SetDefault(logger)
	return logger
}

// OpenStore returns the Postgres store when DB_SOURCE is set, the Bolt file
// otherwise. The Postgres schema is applied on open.
func OpenStore(ctx context.Context, cfg *config.Config) (NoticeStore, error) {
	if cfg.DBSource != "" {
		s, err := store.NewStore(cfg.DBSource)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	}
	if dir := filepath.Dir(cfg.BoltPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bolt dir: %w", err)
		}
	}
	s, err := store.NewBoltStore(cfg.BoltPath)
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", cfg.BoltPath, err)
	}
	return s, nil
}

// Queue bundles the task queue with the provisioning lock that matches it.
type Queue struct {
	Tasks  tasks.Queue
	Locker service.Locker
	// Shared is false for the in-memory queue, which only the current
	// process can see.
	Shared bool
	redis  *redis.Client
}

func (q *Queue) Close() error {
	if q.redis != nil {
		return q.redis.Close()
	}
	return nil
}

func OpenQueue(ctx context.Context, cfg *config.Config) (*Queue, error) {
	if cfg.RedisURL == "" {
		return &Queue{Tasks: tasks.NewMemoryQueue(), Locker: tasks.NewMemoryLocker()}, nil
	}
	client, err := tasks.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return &Queue{
		Tasks:  tasks.NewRedisQueue(client, ""),
		Locker: tasks.NewRedisLocker(client),
		Shared: true,
		redis:  client,
	}, nil
}

// Worker is the task runner with the full pipeline registered.
type Worker struct {
	Runner  *tasks.Runner
	Trigger *service.Trigger
	closers []func() error
}

func (w *Worker) Close() {
	for _, c := range w.closers {
		_ = c()
	}
}

// NewWorker builds the provisioning and notification pipeline on top of q.
// Failure escalation goes to the billing backend and, when brokers are
// configured, to the Kafka alert topic.
func NewWorker(cfg *config.Config, q *Queue, notices NoticeStore, logger *slog.Logger) (*Worker, error) {
	if cfg.BillingURL == "" {
		return nil, fmt.Errorf("BILLING_API_URL is required to run tasks")
	}
	w := &Worker{}
	svcCfg := cfg.Service()
	billingClient := billing.NewHTTPClient(cfg.BillingURL, cfg.BillingTimeout, logger)

	var publisher events.Publisher = events.NewLoggingPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers)
		if err != nil {
			return nil, err
		}
		w.closers = append(w.closers, kp.Close)
		publisher = kp
	}
	escalator := events.FanOut{
		events.ReporterEscalator{Reporter: billingClient},
		events.NewAlertEscalator(publisher, cfg.KafkaAlertTopic),
	}

	provisioner := service.NewProvisioner(service.ProvisionerDeps{
		Config:  svcCfg,
		Billing: billingClient,
		Icons:   icons.NewResolver(billingClient, cfg.IconSize, logger),
		Locker:  q.Locker,
		Logger:  logger,
	})
	dispatcher := service.NewDispatcher(service.DispatcherDeps{
		Config:    svcCfg,
		Billing:   billingClient,
		Notices:   notices,
		Escalator: escalator,
		Logger:    logger,
	})

	w.Runner = tasks.NewRunner(q.Tasks, tasks.RunnerConfig{
		Interval:   cfg.PollInterval,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
	}, logger)
	tasks.Pipeline{Provisioner: provisioner, Dispatcher: dispatcher}.Register(w.Runner)
	w.Trigger = service.NewTrigger(svcCfg, tasks.NewClient(q.Tasks), logger)
	return w, nil
}
