// Package worker follows queued payments until the provider settles them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/lflhelper/fixtures-bot/internal/metrics"
	"github.com/lflhelper/fixtures-bot/internal/payment"
	"github.com/lflhelper/fixtures-bot/internal/render"
	"github.com/lflhelper/fixtures-bot/internal/subscription"
)

// Watch results recorded in metrics.
const (
	resultSucceeded = "succeeded"
	resultCanceled  = "canceled"
	resultExhausted = "exhausted"
	resultAborted   = "aborted"
)

// DefaultMaxInFlight is how many payments one Worker follows at once unless
// WithMaxInFlight says otherwise.
const DefaultMaxInFlight = 16

// Activator starts a subscription once a payment succeeds.
type Activator interface {
	Activate(ctx context.Context, userID string) (subscription.User, error)
}

// Messenger delivers chat messages.
type Messenger interface {
	Send(ctx context.Context, chatID, text string) error
}

// Worker consumes watch items and polls the payment provider for each.
type Worker struct {
	queue     payment.Queue
	provider  payment.Provider
	activator Activator
	messenger Messenger
	formatter render.Formatter
	backoff   payment.Backoff
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	maxInFlight int
}

// Option tunes a Worker.
type Option func(*Worker)

// WithMaxInFlight bounds how many payments the Worker polls concurrently.
// Non-positive values keep the default.
func WithMaxInFlight(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxInFlight = n
		}
	}
}

// New constructs a Worker.
func New(
	queue payment.Queue,
	provider payment.Provider,
	activator Activator,
	messenger Messenger,
	formatter render.Formatter,
	backoff payment.Backoff,
	logger *zap.Logger,
	opts ...Option,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		queue:       queue,
		provider:    provider,
		activator:   activator,
		messenger:   messenger,
		formatter:   formatter,
		backoff:     backoff,
		logger:      logger.Named("payment_watcher"),
		sleep:       sleepContext,
		maxInFlight: DefaultMaxInFlight,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, consuming queue items until the context finishes or the queue
// closes. Each item is polled on its own goroutine, at most maxInFlight at a
// time, so a payment that never settles does not hold up the ones behind it.
// Run returns once every watch it started has finished.
func (w *Worker) Run(ctx context.Context) {
	watches := pool.New().WithMaxGoroutines(w.maxInFlight)
	defer watches.Wait()
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, payment.ErrQueueClosed) {
				w.logger.Debug("watch queue closed and drained")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			if err := w.sleep(ctx, time.Second); err != nil {
				return
			}
			continue
		}
		w.logger.Debug("dequeued payment", zap.String("payment_id", item.PaymentID))
		watches.Go(func() {
			w.Watch(ctx, item)
		})
	}
}

// Watch polls one payment until it succeeds, is canceled, the attempt budget
// runs out or ctx ends. The user is notified of every final outcome.
func (w *Worker) Watch(ctx context.Context, item payment.WatchItem) {
	metrics.IncActiveWatchers()
	defer metrics.DecActiveWatchers()

	log := w.logger.With(
		zap.String("watch_id", item.ID),
		zap.String("user_id", item.UserID),
		zap.String("payment_id", item.PaymentID),
	)
	attempts := w.backoff.Attempts()
	for attempt := range attempts {
		status, err := w.provider.Status(ctx, item.PaymentID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				w.finish(log, resultAborted)
				return
			}
			log.Warn("payment status check failed",
				zap.Int("attempt", attempt+1),
				zap.Bool("transient", errors.Is(err, payment.ErrTransient)),
				zap.Error(err),
			)
		case status == payment.StatusSucceeded:
			w.activate(ctx, log, item)
			return
		case status == payment.StatusCanceled:
			w.notify(ctx, log, item.ChatID, render.PaymentCanceledText)
			w.finish(log, resultCanceled)
			return
		}

		if attempt == attempts-1 {
			break
		}
		if err := w.sleep(ctx, w.backoff.Delay(attempt)); err != nil {
			w.finish(log, resultAborted)
			return
		}
	}
	w.notify(ctx, log, item.ChatID, render.PaymentUnsettledText)
	w.finish(log, resultExhausted)
}

func (w *Worker) activate(ctx context.Context, log *zap.Logger, item payment.WatchItem) {
	user, err := w.activator.Activate(ctx, item.UserID)
	if err != nil {
		log.Error("activate subscription failed", zap.Error(err))
		w.notify(ctx, log, item.ChatID, render.PaymentUnsettledText)
		w.finish(log, resultAborted)
		return
	}
	text := render.PaymentUnsettledText
	if user.StartedAt != nil && user.ExpiresAt != nil {
		text = w.formatter.SubscriptionActivated(*user.StartedAt, *user.ExpiresAt)
	}
	w.notify(ctx, log, item.ChatID, text)
	w.finish(log, resultSucceeded)
}

func (w *Worker) notify(ctx context.Context, log *zap.Logger, chatID, text string) {
	if w.messenger == nil || chatID == "" {
		return
	}
	if err := w.messenger.Send(ctx, chatID, text); err != nil {
		log.Error("notify user failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func (w *Worker) finish(log *zap.Logger, result string) {
	metrics.ObservePaymentWatch(result)
	if result == resultAborted {
		log.Warn("payment watch interrupted before settlement", zap.String("result", result))
		return
	}
	log.Info("payment watch finished", zap.String("result", result))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
