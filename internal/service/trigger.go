package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/punchamoorthee/inapppay/internal/domain"
)

// Confirmation is what the front end reports once the buyer accepts a
// purchase.
type Confirmation struct {
	TransactionUUID string
	Notes           domain.Notes
	BuyerUUID       string
	// Simulate, when set, skips provisioning and sends a fake notice.
	Simulate *domain.Simulation
}

// StateChange is a transaction event emitted by the billing backend after
// provisioning has completed.
type StateChange struct {
	TransactionUUID string
	Status          domain.TransactionStatus
	// Reason is "refund" or "reversal" for chargebacks, empty for payments.
	Reason string
}

type Trigger struct {
	cfg       Config
	scheduler Scheduler
	logger    *slog.Logger
}

func NewTrigger(cfg Config, scheduler Scheduler, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		cfg:       cfg.withDefaults(),
		scheduler: scheduler,
		logger:    logger.With("module", "service.trigger", "layer", "application"),
	}
}

// Confirm schedules the work for a confirmed purchase. It returns the task id,
// or "" when nothing was scheduled.
func (t *Trigger) Confirm(ctx context.Context, c Confirmation) (string, error) {
	if c.Simulate != nil {
		return t.simulate(ctx, c)
	}
	if t.cfg.FakePayments {
		t.logger.InfoContext(ctx, "fake payments enabled; not provisioning",
			"operation", "confirm",
			"outcome", "skipped",
			"transaction_uuid", c.TransactionUUID,
		)
		return "", nil
	}
	if c.TransactionUUID == "" {
		return "", errors.New("confirm: transaction uuid is required")
	}
	id, err := t.scheduler.Enqueue(ctx, TaskStartPay, StartPayArgs{
		TransactionUUID: c.TransactionUUID,
		Notes:           c.Notes,
		BuyerUUID:       c.BuyerUUID,
	})
	if err != nil {
		return "", fmt.Errorf("schedule %s for %s: %w", TaskStartPay, c.TransactionUUID, err)
	}
	t.logger.InfoContext(ctx, "provisioning scheduled",
		"operation", "confirm",
		"outcome", "scheduled",
		"transaction_uuid", c.TransactionUUID,
		"task_id", id,
	)
	return id, nil
}

func (t *Trigger) simulate(ctx context.Context, c Confirmation) (string, error) {
	sim := *c.Simulate
	switch sim.Result {
	case string(domain.SimulatedPostback):
	case string(domain.SimulatedChargeback):
		if sim.Reason == "" {
			sim.Reason = domain.ReasonRefund
		}
	default:
		return "", fmt.Errorf("%w: result %q", domain.ErrInvalidSimulation, sim.Result)
	}
	if c.Notes.IssuerKey == "" {
		return "", domain.ErrMissingIssuerKey
	}
	txn := c.TransactionUUID
	if txn == "" {
		txn = uuid.NewString()
	}
	id, err := t.scheduler.Enqueue(ctx, TaskSimulateNotify, SimulateArgs{
		TransactionUUID: txn,
		IssuerKey:       c.Notes.IssuerKey,
		PayRequest:      c.Notes.PayRequest,
		Simulation:      sim,
	})
	if err != nil {
		return "", fmt.Errorf("schedule %s: %w", TaskSimulateNotify, err)
	}
	t.logger.InfoContext(ctx, "simulated notice scheduled",
		"operation", "simulate",
		"outcome", "scheduled",
		"transaction_uuid", txn,
		"task_id", id,
		"result", sim.Result,
	)
	return id, nil
}

// StateChanged schedules the notice that matches a transaction event.
// Events that need no notice are ignored.
func (t *Trigger) StateChanged(ctx context.Context, ev StateChange) (string, error) {
	var (
		name string
		args NotifyArgs
	)
	args.TransactionUUID = ev.TransactionUUID
	switch {
	case ev.Reason == domain.ReasonRefund || ev.Reason == domain.ReasonReversal:
		name = TaskChargebackNotify
		args.Reason = ev.Reason
	case ev.Reason != "":
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidReason, ev.Reason)
	case ev.Status == domain.StatusCompleted:
		name = TaskPaymentNotify
	default:
		t.logger.DebugContext(ctx, "no notice for state",
			"operation", "state_changed",
			"outcome", "ignored",
			"transaction_uuid", ev.TransactionUUID,
			"status", string(ev.Status),
		)
		return "", nil
	}
	id, err := t.scheduler.Enqueue(ctx, name, args)
	if err != nil {
		return "", fmt.Errorf("schedule %s for %s: %w", name, ev.TransactionUUID, err)
	}
	t.logger.InfoContext(ctx, "notice scheduled",
		"operation", "state_changed",
		"outcome", "scheduled",
		"transaction_uuid", ev.TransactionUUID,
		"task", name,
		"task_id", id,
	)
	return id, nil
}
