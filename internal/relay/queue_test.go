package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(8)
	for i := range 5 {
		if err := q.Push(fmt.Sprint(i)); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	for i := range 5 {
		item, err := q.Pop(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if item.End || item.Frame != fmt.Sprint(i) {
			t.Fatalf("Pop #%d = %+v", i, item)
		}
	}
}

func TestQueueFullDropsNewest(t *testing.T) {
	q := NewQueue(2)
	q.Push("a")
	q.Push("b")
	if err := q.Push("c"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d", q.Len())
	}
}

func TestQueueSentinelAfterFramesEvenWhenFull(t *testing.T) {
	q := NewQueue(2)
	q.Push("a")
	q.Push("b")
	q.PushEnd()
	q.PushEnd()

	if err := q.Push("late"); !errors.Is(err, ErrQueueEnded) {
		t.Fatalf("expected ErrQueueEnded, got %v", err)
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b"} {
		item, err := q.Pop(ctx, time.Second)
		if err != nil || item.End || item.Frame != want {
			t.Fatalf("Pop = %+v, %v; want frame %q", item, err, want)
		}
	}
	for range 2 {
		item, err := q.Pop(ctx, time.Second)
		if err != nil || !item.End {
			t.Fatalf("expected sentinel, got %+v, %v", item, err)
		}
	}
}

func TestQueuePopTimeout(t *testing.T) {
	q := NewQueue(1)
	start := time.Now()
	_, err := q.Pop(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrPopTimeout) {
		t.Fatalf("expected ErrPopTimeout, got %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("Pop returned before the wait elapsed")
	}
}

func TestQueuePopWakesOnPush(t *testing.T) {
	q := NewQueue(1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push("x")
	}()
	item, err := q.Pop(context.Background(), time.Second)
	if err != nil || item.Frame != "x" {
		t.Fatalf("Pop = %+v, %v", item, err)
	}
}

func TestQueueCloseWakesPop(t *testing.T) {
	q := NewQueue(1)
	errc := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background(), 5*time.Second)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrQueueClosed) {
			t.Fatalf("expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Close did not wake Pop")
	}
	if err := q.Push("x"); !errors.Is(err, ErrQueueEnded) {
		t.Fatalf("Push after Close: %v", err)
	}
}

func TestQueuePopHonoursContext(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Pop(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQueuePendingCountsUnacked(t *testing.T) {
	q := NewQueue(4)
	q.Push("a")
	q.Push("b")
	q.Pop(context.Background(), time.Second)
	if got := q.Pending(); got != 2 {
		t.Fatalf("Pending after pop = %d, want 2", got)
	}
	q.Ack()
	if got := q.Pending(); got != 1 {
		t.Fatalf("Pending after ack = %d, want 1", got)
	}
}
