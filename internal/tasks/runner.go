package tasks

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/inapppay/internal/domain"
)

// MaxBackoff caps the delay between two attempts.
const MaxBackoff = time.Hour

var taskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "inapppay_task_runs_total",
	Help: "Task executions, labeled by task name and outcome",
}, []string{"task", "outcome"})

// Handler runs one attempt of a task. A returned error is fatal for the task;
// only a Retryable outcome is rescheduled.
type Handler func(ctx context.Context, t Task) (domain.Outcome, error)

type RunnerConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	BaseDelay  time.Duration
}

type Runner struct {
	queue    Queue
	handlers map[string]Handler
	cfg      RunnerConfig
	logger   *slog.Logger
	nowFn    func() time.Time
}

func NewRunner(queue Queue, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		queue:    queue,
		handlers: map[string]Handler{},
		cfg:      cfg,
		logger:   logger.With("module", "tasks.runner", "layer", "adapter"),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *Runner) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Backoff is base * 2^attempt, capped at MaxBackoff.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(base) * math.Pow(2, float64(attempt))
	if d > float64(MaxBackoff) {
		return MaxBackoff
	}
	return time.Duration(d)
}

// Run polls the queue until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.ProcessOnce(ctx); err != nil {
			r.logger.ErrorContext(ctx, "task poll failed",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce runs every task that is due and returns how many ran. Tasks the
// queue handed out are run even when it also reported an error, since they
// are no longer claimable by anyone else.
func (r *Runner) ProcessOnce(ctx context.Context) (int, error) {
	due, err := r.queue.Due(ctx, r.nowFn(), r.cfg.BatchSize)
	for _, t := range due {
		r.run(ctx, t)
	}
	return len(due), err
}

func (r *Runner) run(ctx context.Context, t Task) {
	log := r.logger.With("task", t.Name, "task_id", t.ID, "attempt", t.Attempt)

	h, ok := r.handlers[t.Name]
	if !ok {
		taskRuns.WithLabelValues(t.Name, "unknown").Inc()
		log.ErrorContext(ctx, "no handler for task; dropping",
			"operation", "run_task",
			"outcome", "failure",
		)
		return
	}

	out, err := h(ctx, t)
	if err != nil {
		taskRuns.WithLabelValues(t.Name, "error").Inc()
		log.ErrorContext(ctx, "task failed",
			"operation", "run_task",
			"outcome", "failure",
			"error", err,
		)
		return
	}

	switch out.Kind {
	case domain.OutcomeSuccess:
		taskRuns.WithLabelValues(t.Name, "success").Inc()
		log.InfoContext(ctx, "task completed",
			"operation", "run_task",
			"outcome", "success",
		)
	case domain.OutcomeTerminal:
		taskRuns.WithLabelValues(t.Name, "terminal").Inc()
		log.WarnContext(ctx, "task finished unsuccessfully",
			"operation", "run_task",
			"outcome", "terminal",
			"reason", out.Reason,
		)
	case domain.OutcomeRetryable:
		r.retry(ctx, log, t, out.Reason)
	}
}

func (r *Runner) retry(ctx context.Context, log *slog.Logger, t Task, reason string) {
	if t.Attempt >= r.cfg.MaxRetries {
		taskRuns.WithLabelValues(t.Name, "exhausted").Inc()
		log.ErrorContext(ctx, "task retries exhausted",
			"operation", "run_task",
			"outcome", "failure",
			"reason", reason,
		)
		return
	}
	delay := Backoff(r.cfg.BaseDelay, t.Attempt)
	next := t
	next.Attempt++
	next.ETA = r.nowFn().Add(delay)
	next.LastError = reason
	if err := r.queue.Push(ctx, next); err != nil {
		taskRuns.WithLabelValues(t.Name, "error").Inc()
		log.ErrorContext(ctx, "could not reschedule task",
			"operation", "retry_task",
			"outcome", "failure",
			"error", err,
		)
		return
	}
	taskRuns.WithLabelValues(t.Name, "retry").Inc()
	log.WarnContext(ctx, "task retry scheduled",
		"operation", "retry_task",
		"outcome", "scheduled",
		"reason", reason,
		"delay", delay.String(),
	)
}
