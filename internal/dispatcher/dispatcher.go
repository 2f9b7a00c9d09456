// Package dispatcher runs the payment watcher pool over the watch queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lflhelper/fixtures-bot/internal/payment"
)

// Runner is a long-lived queue consumer.
type Runner interface {
	Run(ctx context.Context)
}

// IDGenerator produces watch item ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Dispatcher fans out queued payment watches to a pool of workers.
type Dispatcher struct {
	queue   payment.Queue
	workers []Runner
	ids     IDGenerator
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue payment.Queue, workers []Runner, ids IDGenerator, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		ids:     ids,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.Named("dispatcher"),
	}
}

// Run starts all workers and blocks until every worker has returned, which
// happens when ctx ends or the queue is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("starting payment watchers", zap.Int("workers", len(d.workers)))
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk Runner) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
	d.logger.Info("payment watchers stopped")
}

// Watch queues a payment for settlement polling.
func (d *Dispatcher) Watch(ctx context.Context, userID, paymentID, chatID string) (payment.WatchItem, error) {
	if paymentID == "" {
		return payment.WatchItem{}, errors.New("payment id is required")
	}
	item := payment.WatchItem{
		UserID:     userID,
		PaymentID:  paymentID,
		ChatID:     chatID,
		EnqueuedAt: d.now(),
	}
	if d.ids != nil {
		id, err := d.ids.NewID()
		if err != nil {
			return payment.WatchItem{}, fmt.Errorf("watch id: %w", err)
		}
		item.ID = id
	}
	if err := d.Enqueue(ctx, item); err != nil {
		return payment.WatchItem{}, err
	}
	d.logger.Info("payment queued for watching",
		zap.String("watch_id", item.ID),
		zap.String("user_id", userID),
		zap.String("payment_id", paymentID),
	)
	return item, nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item payment.WatchItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
