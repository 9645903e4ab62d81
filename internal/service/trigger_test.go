package service

import (
	"context"
	"errors"
	"testing"

	"github.com/punchamoorthee/inapppay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmation(sim *domain.Simulation) Confirmation {
	return Confirmation{
		TransactionUUID: "tx-1",
		BuyerUUID:       "buyer-1",
		Notes: domain.Notes{
			IssuerKey:  testIssuer,
			PayRequest: payRequest("", "https://issuer.example/postback", "https://issuer.example/chargeback"),
		},
		Simulate: sim,
	}
}

func TestConfirm_SchedulesStartPay(t *testing.T) {
	s := &fakeScheduler{}
	tr := NewTrigger(Config{}, s, nil)

	id, err := tr.Confirm(context.Background(), confirmation(nil))
	require.NoError(t, err)
	assert.Equal(t, "task-start_pay", id)

	require.Len(t, s.tasks, 1)
	assert.Equal(t, TaskStartPay, s.tasks[0].name)
	args, ok := s.tasks[0].payload.(StartPayArgs)
	require.True(t, ok)
	assert.Equal(t, "tx-1", args.TransactionUUID)
	assert.Equal(t, "buyer-1", args.BuyerUUID)
	assert.Equal(t, testIssuer, args.Notes.IssuerKey)
}

func TestConfirm_FakePaymentsSkipsProvisioning(t *testing.T) {
	s := &fakeScheduler{}
	tr := NewTrigger(Config{FakePayments: true}, s, nil)

	id, err := tr.Confirm(context.Background(), confirmation(nil))
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, s.tasks)
}

func TestConfirm_SimulationSkipsProvisioning(t *testing.T) {
	s := &fakeScheduler{}
	tr := NewTrigger(Config{FakePayments: true}, s, nil)

	_, err := tr.Confirm(context.Background(), confirmation(&domain.Simulation{Result: "chargeback"}))
	require.NoError(t, err)

	require.Len(t, s.tasks, 1)
	assert.Equal(t, TaskSimulateNotify, s.tasks[0].name)
	args := s.tasks[0].payload.(SimulateArgs)
	assert.Equal(t, "tx-1", args.TransactionUUID)
	assert.Equal(t, "chargeback", args.Simulation.Result)
	assert.Equal(t, domain.ReasonRefund, args.Simulation.Reason)
}

func TestConfirm_SimulationGeneratesTransactionID(t *testing.T) {
	s := &fakeScheduler{}
	tr := NewTrigger(Config{}, s, nil)
	c := confirmation(&domain.Simulation{Result: "postback"})
	c.TransactionUUID = ""

	_, err := tr.Confirm(context.Background(), c)
	require.NoError(t, err)
	args := s.tasks[0].payload.(SimulateArgs)
	assert.Len(t, args.TransactionUUID, 36)
}

func TestConfirm_InvalidSimulation(t *testing.T) {
	s := &fakeScheduler{}
	tr := NewTrigger(Config{}, s, nil)

	_, err := tr.Confirm(context.Background(), confirmation(&domain.Simulation{Result: "maybe"}))
	assert.ErrorIs(t, err, domain.ErrInvalidSimulation)
	assert.Empty(t, s.tasks)
}

func TestConfirm_SchedulerError(t *testing.T) {
	boom := errors.New("queue down")
	tr := NewTrigger(Config{}, &fakeScheduler{err: boom}, nil)

	_, err := tr.Confirm(context.Background(), confirmation(nil))
	assert.ErrorIs(t, err, boom)
}

func TestStateChanged(t *testing.T) {
	cases := []struct {
		name     string
		event    StateChange
		wantTask string
		reason   string
	}{
		{name: "completed", event: StateChange{TransactionUUID: "tx-1", Status: domain.StatusCompleted}, wantTask: TaskPaymentNotify},
		{name: "refund", event: StateChange{TransactionUUID: "tx-1", Status: domain.StatusCompleted, Reason: "refund"}, wantTask: TaskChargebackNotify, reason: "refund"},
		{name: "reversal", event: StateChange{TransactionUUID: "tx-1", Reason: "reversal"}, wantTask: TaskChargebackNotify, reason: "reversal"},
		{name: "pending ignored", event: StateChange{TransactionUUID: "tx-1", Status: domain.StatusPending}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &fakeScheduler{}
			tr := NewTrigger(Config{}, s, nil)

			_, err := tr.StateChanged(context.Background(), tc.event)
			require.NoError(t, err)
			if tc.wantTask == "" {
				assert.Empty(t, s.tasks)
				return
			}
			require.Len(t, s.tasks, 1)
			assert.Equal(t, tc.wantTask, s.tasks[0].name)
			assert.Equal(t, NotifyArgs{TransactionUUID: "tx-1", Reason: tc.reason}, s.tasks[0].payload)
		})
	}
}

func TestStateChanged_UnknownReason(t *testing.T) {
	tr := NewTrigger(Config{}, &fakeScheduler{}, nil)
	_, err := tr.StateChanged(context.Background(), StateChange{TransactionUUID: "tx-1", Reason: "fraud"})
	assert.ErrorIs(t, err, domain.ErrInvalidReason)
}
