package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/punchamoorthee/inapppay/internal/domain"
	"github.com/punchamoorthee/inapppay/internal/service"
)

// StateNotifier turns a transaction state change into a scheduled notice.
type StateNotifier interface {
	StateChanged(ctx context.Context, ev service.StateChange) (string, error)
}

// transactionEvent is the payload of every transaction.* topic.
type transactionEvent struct {
	TransactionUUID string `json:"transaction_uuid"`
	Status          string `json:"status"`
}

// ConsumerWorker polls transaction events and schedules the matching notices.
// A message is committed once its notice is scheduled or it is found to be
// unusable. A message that fails to schedule is held and retried before
// anything newer is fetched, so its offset is never committed past.
type ConsumerWorker struct {
	logger   *slog.Logger
	consumer Consumer
	notifier StateNotifier
	interval time.Duration
	pending  []Message
}

func NewConsumerWorker(logger *slog.Logger, consumer Consumer, notifier StateNotifier, interval time.Duration) *ConsumerWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerWorker{
		logger:   logger.With("module", "events.consumer_worker", "layer", "adapter"),
		consumer: consumer,
		notifier: notifier,
		interval: interval,
	}
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "consumer iteration failed",
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

// ProcessOnce handles the held messages, or a fresh batch when none are held.
func (w *ConsumerWorker) ProcessOnce(ctx context.Context) error {
	var pollErr error
	if len(w.pending) == 0 {
		msgs, err := w.consumer.Poll(ctx, 50)
		w.pending = msgs
		pollErr = err
	}

	for len(w.pending) > 0 {
		msg := w.pending[0]
		if err := w.handle(ctx, msg); err != nil {
			return errors.Join(pollErr, err)
		}
		w.pending = w.pending[1:]
		if err := w.consumer.Commit(ctx, msg); err != nil {
			return errors.Join(pollErr, err)
		}
	}
	w.pending = nil
	return pollErr
}

// handle returns an error only when the message should be tried again.
func (w *ConsumerWorker) handle(ctx context.Context, msg Message) error {
	ev, err := decodeStateChange(msg)
	if err != nil {
		w.logger.WarnContext(ctx, "skipping transaction event",
			"operation", "handle_event",
			"outcome", "failure",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	_, err = w.notifier.StateChanged(ctx, ev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidReason):
		w.logger.WarnContext(ctx, "skipping transaction event",
			"operation", "handle_event",
			"outcome", "failure",
			"topic", msg.Topic,
			"transaction_uuid", ev.TransactionUUID,
			"error", err,
		)
		return nil
	}
	w.logger.WarnContext(ctx, "failed to schedule notice; will retry",
		"operation", "handle_event",
		"outcome", "failure",
		"topic", msg.Topic,
		"offset", msg.Offset,
		"transaction_uuid", ev.TransactionUUID,
		"error", err,
	)
	return fmt.Errorf("schedule notice for %s: %w", ev.TransactionUUID, err)
}

func decodeStateChange(msg Message) (service.StateChange, error) {
	var ev transactionEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return service.StateChange{}, fmt.Errorf("decode %s: %w", msg.Topic, err)
	}
	if ev.TransactionUUID == "" {
		ev.TransactionUUID = string(msg.Key)
	}
	if ev.TransactionUUID == "" {
		return service.StateChange{}, fmt.Errorf("%s event has no transaction_uuid", msg.Topic)
	}

	out := service.StateChange{TransactionUUID: ev.TransactionUUID, Status: domain.TransactionStatus(ev.Status)}
	switch msg.Topic {
	case TopicTransactionCompleted:
		out.Status = domain.StatusCompleted
	case TopicTransactionRefunded:
		out.Reason = domain.ReasonRefund
	case TopicTransactionReversed:
		out.Reason = domain.ReasonReversal
	default:
		return service.StateChange{}, fmt.Errorf("unexpected topic %q", msg.Topic)
	}
	return out, nil
}
