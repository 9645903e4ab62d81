package service

import (
	"context"
	"time"

	"github.com/punchamoorthee/inapppay/internal/domain"
)

// Task names understood by the worker.
const (
	TaskStartPay         = "start_pay"
	TaskPaymentNotify    = "payment_notify"
	TaskChargebackNotify = "chargeback_notify"
	TaskSimulateNotify   = "simulate_notify"
)

// Config is shared by the Provisioner, Dispatcher and Trigger.
type Config struct {
	IconsEnabled   bool
	RequireHTTPS   bool
	NotifyTimeout  time.Duration
	MaxRetries     int
	MarketplaceKey string
	// NotifyIssuer is the iss claim of every notice.
	NotifyIssuer string
	FakePayments bool
}

func (c Config) withDefaults() Config {
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// NoticeStore persists notice outcomes.
type NoticeStore interface {
	SaveNotice(ctx context.Context, n domain.Notice) error
}

// Escalator is the failure alerting hook. It is fire-and-forget: errors are
// logged by the caller and otherwise ignored.
type Escalator interface {
	NotifyFailure(ctx context.Context, transactionUUID, reason string) error
}

// Locker serialises provisioning of one transaction across workers.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// IconResolver returns a cached icon URL or "" when there is none yet.
type IconResolver interface {
	Resolve(ctx context.Context, icons map[string]string) (string, error)
}

// Scheduler enqueues a task for asynchronous execution.
type Scheduler interface {
	Enqueue(ctx context.Context, name string, payload any) (string, error)
}

// Attempt identifies one execution of a task. SequenceID is stable across
// retries; Number starts at 0.
type Attempt struct {
	SequenceID string
	Number     int
}

type StartPayArgs struct {
	TransactionUUID string       `json:"transaction_uuid"`
	Notes           domain.Notes `json:"notes"`
	BuyerUUID       string       `json:"buyer_uuid,omitempty"`
}

type NotifyArgs struct {
	TransactionUUID string `json:"transaction_uuid"`
	Reason          string `json:"reason,omitempty"`
}

type SimulateArgs struct {
	TransactionUUID string            `json:"transaction_uuid"`
	IssuerKey       string            `json:"issuer_key"`
	PayRequest      domain.PayRequest `json:"pay_request"`
	Simulation      domain.Simulation `json:"simulation"`
}
