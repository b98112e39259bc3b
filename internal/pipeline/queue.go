package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Push after Close.
var ErrQueueClosed = errors.New("frame queue closed")

// Queue is the FIFO between producers and the commit worker. Push blocks while
// the queue is full, so with capacity 1 at most one frame waits behind the one
// being applied.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	frames   []*Frame
	capacity int
	closed   bool
}

// NewQueue creates a queue holding up to capacity frames.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends f, blocking while the queue is full.
func (q *Queue) Push(ctx context.Context, f *Frame) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.frames) >= q.capacity && !q.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.frames = append(q.frames, f)
	q.cond.Broadcast()
	return nil
}

// Pop removes the oldest frame, blocking while the queue is empty. It returns
// false once the queue is closed.
func (q *Queue) Pop() (*Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.frames) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}

	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	q.cond.Broadcast()
	return f, true
}

// Drain removes and returns every queued frame.
func (q *Queue) Drain() []*Frame {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.frames
	q.frames = nil
	q.cond.Broadcast()
	return out
}

// Close wakes every waiter. Queued frames stay until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
