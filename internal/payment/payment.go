// Package payment creates subscription payments and watches them until the
// provider settles or cancels them.
package payment

import (
	"context"
	"errors"
	"time"
)

// Status is the provider-side lifecycle state of a payment.
type Status string

// Payment statuses reported by the provider.
const (
	StatusPending           Status = "pending"
	StatusWaitingForCapture Status = "waiting_for_capture"
	StatusSucceeded         Status = "succeeded"
	StatusCanceled          Status = "canceled"
)

// Final reports whether no further status change is expected.
func (s Status) Final() bool {
	return s == StatusSucceeded || s == StatusCanceled
}

var (
	// ErrTransient marks provider failures worth retrying.
	ErrTransient = errors.New("payment provider transient failure")
	// ErrQueueClosed is returned by Queue.Dequeue once the queue is closed and
	// drained, and by Queue.Enqueue after Close.
	ErrQueueClosed = errors.New("queue closed")
)

// Amount is a decimal money value in a currency.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// CreateRequest describes a subscription purchase.
type CreateRequest struct {
	UserID      string
	Email       string
	Description string
	ItemName    string
	Amount      Amount
	ReturnURL   string
}

// Payment is a created payment awaiting user confirmation.
type Payment struct {
	ID              string `json:"id"`
	Status          Status `json:"status"`
	ConfirmationURL string `json:"confirmation_url"`
}

// Provider is a payment gateway.
type Provider interface {
	Create(ctx context.Context, req CreateRequest) (Payment, error)
	Status(ctx context.Context, paymentID string) (Status, error)
}

// WatchItem asks the watcher pool to follow one payment.
type WatchItem struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	PaymentID  string    `json:"payment_id"`
	ChatID     string    `json:"chat_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue buffers watch items between the API and the watcher pool.
type Queue interface {
	Enqueue(ctx context.Context, item WatchItem) error
	Dequeue(ctx context.Context) (WatchItem, error)
}
