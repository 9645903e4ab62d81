package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/punchamoorthee/inapppay/internal/service"
)

// NotifyFailureAlert is published for every failed, non-simulated notice
// attempt.
type NotifyFailureAlert struct {
	TransactionUUID string    `json:"transaction_uuid"`
	Reason          string    `json:"reason"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// AlertEscalator publishes failures to the alert topic.
type AlertEscalator struct {
	publisher Publisher
	topic     string
	nowFn     func() time.Time
}

func NewAlertEscalator(publisher Publisher, topic string) *AlertEscalator {
	if topic == "" {
		topic = TopicNotifyFailure
	}
	return &AlertEscalator{
		publisher: publisher,
		topic:     topic,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

func (e *AlertEscalator) NotifyFailure(ctx context.Context, transactionUUID, reason string) error {
	payload, err := json.Marshal(NotifyFailureAlert{
		TransactionUUID: transactionUUID,
		Reason:          reason,
		OccurredAt:      e.nowFn(),
	})
	if err != nil {
		return err
	}
	return e.publisher.Publish(ctx, e.topic, transactionUUID, payload)
}

// FailureReporter is the billing backend's failure report endpoint.
type FailureReporter interface {
	ReportNotifyFailure(ctx context.Context, transactionUUID, reason string) error
}

// ReporterEscalator forwards failures to the billing backend.
type ReporterEscalator struct {
	Reporter FailureReporter
}

func (e ReporterEscalator) NotifyFailure(ctx context.Context, transactionUUID, reason string) error {
	return e.Reporter.ReportNotifyFailure(ctx, transactionUUID, reason)
}

// FanOut calls every escalator and joins their errors.
type FanOut []service.Escalator

func (f FanOut) NotifyFailure(ctx context.Context, transactionUUID, reason string) error {
	var errs []error
	for _, e := range f {
		if err := e.NotifyFailure(ctx, transactionUUID, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
