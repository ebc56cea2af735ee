package relay

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueFull   = errors.New("audio queue full")
	ErrQueueEnded  = errors.New("audio queue ended")
	ErrQueueClosed = errors.New("audio queue closed")
	ErrPopTimeout  = errors.New("audio queue wait timed out")
)

// Item is either a base64 PCM16 16 kHz frame or the end-of-input sentinel.
type Item struct {
	Frame string
	End   bool
}

// Queue is a bounded FIFO of audio frames terminated by an end-of-input
// sentinel. Push never blocks; the sentinel bypasses the capacity limit.
type Queue struct {
	mu       sync.Mutex
	items    []string
	capacity int
	ended    bool
	closed   bool
	unacked  int
	notify   chan struct{}
}

// NewQueue creates a queue holding at most capacity frames.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{
		items:    make([]string, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push enqueues a frame without blocking.
func (q *Queue) Push(frame string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ended || q.closed {
		return ErrQueueEnded
	}
	if len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	q.items = append(q.items, frame)
	q.signal()
	return nil
}

// PushEnd appends the end-of-input sentinel. Frames already queued are still
// delivered first. Calling it again is a no-op.
func (q *Queue) PushEnd() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ended {
		return
	}
	q.ended = true
	q.signal()
}

// Pop returns the next item, waiting up to wait for one to arrive.
// Once the sentinel is reached every later Pop returns it again.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (Item, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		item, ok, err := q.take()
		if err != nil || ok {
			return item, err
		}
		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-timer.C:
			return Item{}, ErrPopTimeout
		case <-q.notify:
		}
	}
}

func (q *Queue) take() (Item, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return Item{}, false, ErrQueueClosed
	}
	if len(q.items) > 0 {
		frame := q.items[0]
		q.items[0] = ""
		q.items = q.items[1:]
		q.unacked++
		return Item{Frame: frame}, true, nil
	}
	if q.ended {
		return Item{End: true}, true, nil
	}
	return Item{}, false, nil
}

// Ack marks a popped frame as processed.
func (q *Queue) Ack() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unacked > 0 {
		q.unacked--
	}
}

// Pending counts frames queued or popped but not yet acked.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) + q.unacked
}

// Len counts frames waiting to be popped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close discards queued frames and wakes a blocked Pop with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	q.signal()
}

// signal must be called with mu held.
func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
