package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/punchamoorthee/inapppay/internal/domain"
	"github.com/punchamoorthee/inapppay/internal/service"
)

// Pipeline is the set of entry points the worker runs.
type Pipeline struct {
	Provisioner *service.Provisioner
	Dispatcher  *service.Dispatcher
}

// Register binds every pipeline entry point to its task name.
func (p Pipeline) Register(r *Runner) {
	r.Register(service.TaskStartPay, p.startPay)
	r.Register(service.TaskPaymentNotify, p.paymentNotify)
	r.Register(service.TaskChargebackNotify, p.chargebackNotify)
	r.Register(service.TaskSimulateNotify, p.simulateNotify)
}

func attempt(t Task) service.Attempt {
	return service.Attempt{SequenceID: t.ID, Number: t.Attempt}
}

func decode(t Task, v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Name, err)
	}
	return nil
}

func (p Pipeline) startPay(ctx context.Context, t Task) (domain.Outcome, error) {
	var args service.StartPayArgs
	if err := decode(t, &args); err != nil {
		return domain.Outcome{}, err
	}
	if err := p.Provisioner.StartPay(ctx, args); err != nil {
		return domain.Outcome{}, err
	}
	return domain.Success(), nil
}

func (p Pipeline) paymentNotify(ctx context.Context, t Task) (domain.Outcome, error) {
	var args service.NotifyArgs
	if err := decode(t, &args); err != nil {
		return domain.Outcome{}, err
	}
	return p.Dispatcher.PaymentNotify(ctx, attempt(t), args)
}

func (p Pipeline) chargebackNotify(ctx context.Context, t Task) (domain.Outcome, error) {
	var args service.NotifyArgs
	if err := decode(t, &args); err != nil {
		return domain.Outcome{}, err
	}
	return p.Dispatcher.ChargebackNotify(ctx, attempt(t), args)
}

func (p Pipeline) simulateNotify(ctx context.Context, t Task) (domain.Outcome, error) {
	var args service.SimulateArgs
	if err := decode(t, &args); err != nil {
		return domain.Outcome{}, err
	}
	return p.Dispatcher.SimulateNotify(ctx, attempt(t), args)
}
