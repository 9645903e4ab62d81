package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/punchamoorthee/inapppay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newTestRunner(q Queue, maxRetries int) (*Runner, *fixedClock) {
	clock := &fixedClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	r := NewRunner(q, RunnerConfig{MaxRetries: maxRetries, BaseDelay: time.Minute}, nil)
	r.nowFn = clock.Now
	return r, clock
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, Backoff(time.Minute, 0))
	assert.Equal(t, 2*time.Minute, Backoff(time.Minute, 1))
	assert.Equal(t, 16*time.Minute, Backoff(time.Minute, 4))
	assert.Equal(t, MaxBackoff, Backoff(time.Minute, 10))
	assert.Equal(t, time.Minute, Backoff(time.Minute, -3))
}

func TestClientEnqueue(t *testing.T) {
	q := NewMemoryQueue()
	c := NewClient(q)

	id, err := c.Enqueue(context.Background(), "payment_notify", map[string]string{"transaction_uuid": "tx-1"})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, "payment_notify", pending[0].Name)
	assert.Zero(t, pending[0].Attempt)
	assert.JSONEq(t, `{"transaction_uuid":"tx-1"}`, string(pending[0].Payload))
}

func TestClientEnqueue_BadPayload(t *testing.T) {
	c := NewClient(NewMemoryQueue())
	_, err := c.Enqueue(context.Background(), "x", make(chan int))
	assert.Error(t, err)
}

func TestMemoryQueue_DueRespectsETAAndLimit(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Now()
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, Task{ID: "a", ETA: now.Add(-time.Second)}))
	require.NoError(t, q.Push(ctx, Task{ID: "b", ETA: now}))
	require.NoError(t, q.Push(ctx, Task{ID: "c", ETA: now.Add(time.Minute)}))

	due, err := q.Due(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "a", due[0].ID)

	due, err = q.Due(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "b", due[0].ID)

	assert.Equal(t, 1, q.Len())
}

func TestRunner_RetryableIsRescheduledWithBackoff(t *testing.T) {
	q := NewMemoryQueue()
	r, clock := newTestRunner(q, 3)
	r.Register("flaky", func(context.Context, Task) (domain.Outcome, error) {
		return domain.Retryable("HTTPError: HTTP Error 500: Internal Server Error"), nil
	})
	require.NoError(t, q.Push(context.Background(), Task{ID: "t1", Name: "flaky", ETA: clock.now}))

	n, err := r.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "t1", pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempt)
	assert.Equal(t, clock.now.Add(time.Minute), pending[0].ETA)
	assert.Contains(t, pending[0].LastError, "HTTP Error 500")

	// Not due yet.
	n, err = r.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.now = clock.now.Add(time.Minute)
	_, err = r.ProcessOnce(context.Background())
	require.NoError(t, err)
	pending = q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempt)
	assert.Equal(t, clock.now.Add(2*time.Minute), pending[0].ETA)
}

func TestRunner_StopsAfterMaxRetries(t *testing.T) {
	q := NewMemoryQueue()
	r, clock := newTestRunner(q, 2)
	calls := 0
	r.Register("flaky", func(_ context.Context, tk Task) (domain.Outcome, error) {
		calls++
		return domain.Retryable("Timeout: slow"), nil
	})
	require.NoError(t, q.Push(context.Background(), Task{ID: "t1", Name: "flaky", ETA: clock.now}))

	for i := 0; i < 10; i++ {
		_, err := r.ProcessOnce(context.Background())
		require.NoError(t, err)
		clock.now = clock.now.Add(MaxBackoff)
	}
	assert.Equal(t, 3, calls)
	assert.Zero(t, q.Len())
}

func TestRunner_TerminalAndErrorsAreNotRetried(t *testing.T) {
	q := NewMemoryQueue()
	r, clock := newTestRunner(q, 5)
	r.Register("terminal", func(context.Context, Task) (domain.Outcome, error) {
		return domain.Terminal("unconfirmed"), nil
	})
	r.Register("broken", func(context.Context, Task) (domain.Outcome, error) {
		return domain.Outcome{}, errors.New("seller not configured")
	})
	r.Register("ok", func(context.Context, Task) (domain.Outcome, error) {
		return domain.Success(), nil
	})
	ctx := context.Background()
	for _, name := range []string{"terminal", "broken", "ok", "unknown"} {
		require.NoError(t, q.Push(ctx, Task{ID: name, Name: name, ETA: clock.now}))
	}

	n, err := r.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Zero(t, q.Len())
}

// partialQueue hands out some claimed tasks together with a load error, the
// way RedisQueue does when one body in a batch cannot be read.
type partialQueue struct {
	*MemoryQueue
	claimed []Task
	err     error
}

func (q *partialQueue) Due(context.Context, time.Time, int) ([]Task, error) {
	out := q.claimed
	q.claimed = nil
	return out, q.err
}

func TestRunner_RunsClaimedTasksWhenBatchPartiallyFails(t *testing.T) {
	loadErr := errors.New("decode task bad: dropped: invalid character")
	q := &partialQueue{
		MemoryQueue: NewMemoryQueue(),
		claimed:     []Task{{ID: "good", Name: "payment_notify"}, {ID: "flaky", Name: "flaky"}},
		err:         loadErr,
	}
	r, _ := newTestRunner(q, 3)
	var ran []string
	r.Register("payment_notify", func(_ context.Context, tk Task) (domain.Outcome, error) {
		ran = append(ran, tk.ID)
		return domain.Success(), nil
	})
	r.Register("flaky", func(_ context.Context, tk Task) (domain.Outcome, error) {
		ran = append(ran, tk.ID)
		return domain.Retryable("Timeout: slow issuer"), nil
	})

	n, err := r.ProcessOnce(context.Background())
	assert.ErrorIs(t, err, loadErr)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"good", "flaky"}, ran)

	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "flaky", pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempt)
}

func TestRunner_PassesTaskToHandler(t *testing.T) {
	q := NewMemoryQueue()
	r, clock := newTestRunner(q, 1)
	var got Task
	r.Register("echo", func(_ context.Context, tk Task) (domain.Outcome, error) {
		got = tk
		return domain.Success(), nil
	})
	payload := json.RawMessage(`{"transaction_uuid":"tx-9"}`)
	require.NoError(t, q.Push(context.Background(), Task{ID: "t9", Name: "echo", Payload: payload, Attempt: 1, ETA: clock.now}))

	_, err := r.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t9", got.ID)
	assert.Equal(t, 1, got.Attempt)
	assert.JSONEq(t, string(payload), string(got.Payload))
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	r := NewRunner(NewMemoryQueue(), RunnerConfig{Interval: 10 * time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "start_pay:tx-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "start_pay:tx-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = l.Acquire(ctx, "start_pay:tx-2", time.Minute)
	assert.True(t, ok)

	release()
	_, ok, _ = l.Acquire(ctx, "start_pay:tx-1", time.Minute)
	assert.True(t, ok)
}

func TestMemoryLocker_Expires(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Now()
	l.nowFn = func() time.Time { return now }

	_, ok, _ := l.Acquire(context.Background(), "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = l.Acquire(context.Background(), "k", time.Second)
	assert.True(t, ok)
}
