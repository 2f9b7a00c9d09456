// Package dispatcher contains tests for watcher coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lflhelper/fixtures-bot/internal/payment"
	"github.com/lflhelper/fixtures-bot/internal/render"
	"github.com/lflhelper/fixtures-bot/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(queue, nil, nil, nil, render.Default(), payment.DefaultBackoff(), zap.NewNop())
	dispatch := New(queue, []Runner{w}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil, nil, nil)

	err := dispatch.Enqueue(context.Background(), payment.WatchItem{PaymentID: "pay-1"})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

// TestDispatcherWatchBuildsItem verifies ids and timestamps are stamped on queued items.
func TestDispatcherWatchBuildsItem(t *testing.T) {
	t.Parallel()

	queue := &recordingQueue{}
	dispatch := New(queue, nil, staticIDs("watch-1"), nil)
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dispatch.now = func() time.Time { return fixed }

	item, err := dispatch.Watch(context.Background(), "42", "pay-1", "chat-42")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	want := payment.WatchItem{ID: "watch-1", UserID: "42", PaymentID: "pay-1", ChatID: "chat-42", EnqueuedAt: fixed}
	if item != want || len(queue.items) != 1 || queue.items[0] != want {
		t.Fatalf("unexpected item %+v (queued %+v)", item, queue.items)
	}

	if _, err := dispatch.Watch(context.Background(), "42", "", "chat"); err == nil {
		t.Fatal("expected error for missing payment id")
	}
}

type staticIDs string

func (s staticIDs) NewID() (string, error) { return string(s), nil }

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ payment.WatchItem) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (payment.WatchItem, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return payment.WatchItem{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, payment.WatchItem) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (payment.WatchItem, error) {
	return payment.WatchItem{}, nil
}

type recordingQueue struct {
	items []payment.WatchItem
}

func (q *recordingQueue) Enqueue(_ context.Context, item payment.WatchItem) error {
	q.items = append(q.items, item)
	return nil
}

func (q *recordingQueue) Dequeue(ctx context.Context) (payment.WatchItem, error) {
	<-ctx.Done()
	return payment.WatchItem{}, ctx.Err()
}
