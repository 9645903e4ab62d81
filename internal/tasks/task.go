// Package tasks is the asynchronous task queue that runs the provisioning and
// notification entry points. Retries are re-enqueued tasks with a later ETA.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is one scheduled invocation. ID stays the same across retries and
// doubles as the notice attempt-sequence id.
type Task struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	ETA       time.Time       `json:"eta"`
	LastError string          `json:"last_error,omitempty"`
}

// Queue holds tasks until their ETA. Due claims ready tasks: a task is
// handed to exactly one caller.
type Queue interface {
	Push(ctx context.Context, t Task) error
	// Due claims up to limit tasks whose ETA has passed. It may return
	// claimed tasks together with an error for the ones it could not load;
	// the returned tasks must still be run.
	Due(ctx context.Context, now time.Time, limit int) ([]Task, error)
}

// Client enqueues tasks by name.
type Client struct {
	queue Queue
	nowFn func() time.Time
}

func NewClient(queue Queue) *Client {
	return &Client{queue: queue, nowFn: func() time.Time { return time.Now().UTC() }}
}

// Enqueue schedules name to run as soon as a worker is free.
func (c *Client) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", name, err)
	}
	t := Task{
		ID:      uuid.NewString(),
		Name:    name,
		Payload: raw,
		ETA:     c.nowFn(),
	}
	if err := c.queue.Push(ctx, t); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", name, err)
	}
	return t.ID, nil
}

// MemoryQueue is an in-process Queue for tests and single-binary dev runs.
type MemoryQueue struct {
	mu    sync.Mutex
	tasks []Task
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(_ context.Context, t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *MemoryQueue) Due(_ context.Context, now time.Time, limit int) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due, rest []Task
	for _, t := range q.tasks {
		if !t.ETA.After(now) && (limit <= 0 || len(due) < limit) {
			due = append(due, t)
			continue
		}
		rest = append(rest, t)
	}
	q.tasks = rest
	return due, nil
}

// Len reports how many tasks are waiting, due or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Pending returns a copy of the waiting tasks.
func (q *MemoryQueue) Pending() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.tasks...)
}
