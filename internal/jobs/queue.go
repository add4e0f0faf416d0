package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// Item is a queued unit of work. Credentials ride in the queue rather than
// the store so they never appear in job JSON.
type Item struct {
	JobID       string
	Credentials thumbnail.Credentials
}

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan Item
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan Item, capacity)}
}

// ErrQueueFull is returned when the queue cannot accept more work.
var ErrQueueFull = errors.New("job queue full")

// Enqueue pushes a job without blocking; a full queue is an immediate error
// so the API can tell the caller to retry instead of hanging the request.
func (q *Queue) Enqueue(item Item) error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return errors.New("queue closed")
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (Item, error) {
	select {
	case <-ctx.Done():
		return Item{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return Item{}, errors.New("queue closed")
		}
		return item, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
