// Package subscription gates bot features behind a paid, time-limited subscription.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultDuration is how long one payment keeps a subscription active.
const DefaultDuration = 30 * 24 * time.Hour

var (
	// ErrUserNotFound is returned when no record exists for a user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned by Store.Create for an existing user id.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUserID is returned for blank user ids.
	ErrInvalidUserID = errors.New("user id is required")
)

// User is the persisted subscription record of one chat user.
type User struct {
	ID            string     `json:"id"`
	Active        bool       `json:"active"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	LastPaymentID string     `json:"last_payment_id,omitempty"`
}

// ActiveAt reports whether the subscription is active and unexpired at now.
func (u User) ActiveAt(now time.Time) bool {
	return u.Active && u.ExpiresAt != nil && now.Before(*u.ExpiresAt)
}

// Store persists subscription records. Each write touches only the columns it
// owns so concurrent writers do not overwrite each other.
type Store interface {
	Create(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (User, error)
	List(ctx context.Context) ([]User, error)
	// Activate sets the active flag and the period bounds.
	Activate(ctx context.Context, id string, startedAt, expiresAt time.Time) error
	// Expire clears the active flag only while the stored expiry still equals
	// expiresAt. It reports whether the record was switched off.
	Expire(ctx context.Context, id string, expiresAt time.Time) (bool, error)
	SetLastPayment(ctx context.Context, id, paymentID string) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// Service implements registration, the active-subscription gate and activation.
type Service struct {
	store    Store
	clock    Clock
	duration time.Duration
	logger   *zap.Logger
}

// NewService builds a Service. A non-positive duration falls back to DefaultDuration.
func NewService(store Store, clock Clock, duration time.Duration, logger *zap.Logger) *Service {
	if clock == nil {
		clock = clockFunc(func() time.Time { return time.Now().UTC() })
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		clock:    clock,
		duration: duration,
		logger:   logger.Named("subscription"),
	}
}

// Register creates the user if absent and returns the current record.
func (s *Service) Register(ctx context.Context, id string) (User, error) {
	id, err := normalizeID(id)
	if err != nil {
		return User{}, err
	}
	if err := s.store.Create(ctx, id); err != nil && !errors.Is(err, ErrUserExists) {
		return User{}, fmt.Errorf("register user %s: %w", id, err)
	} else if err == nil {
		s.logger.Info("user registered", zap.String("user_id", id))
	}
	return s.Get(ctx, id)
}

// Get returns the stored record for id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	id, err := normalizeID(id)
	if err != nil {
		return User{}, err
	}
	user, err := s.store.Get(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return user, nil
}

// IsActive reports whether id holds an unexpired subscription. An expired
// subscription is switched off in the store before returning false.
func (s *Service) IsActive(ctx context.Context, id string) (bool, error) {
	user, err := s.Get(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !user.Active || user.ExpiresAt == nil {
		return false, nil
	}
	now := s.clock.Now()
	if user.ActiveAt(now) {
		return true, nil
	}
	expired, err := s.store.Expire(ctx, user.ID, *user.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("expire user %s: %w", user.ID, err)
	}
	if !expired {
		// Renewed since the read above; judge the current record instead.
		current, err := s.Get(ctx, user.ID)
		if err != nil {
			return false, err
		}
		return current.ActiveAt(now), nil
	}
	s.logger.Info("subscription expired",
		zap.String("user_id", user.ID),
		zap.Time("expired_at", *user.ExpiresAt),
	)
	return false, nil
}

// Activate starts a new subscription period for id, registering the user if
// the payment arrived for an unknown id.
func (s *Service) Activate(ctx context.Context, id string) (User, error) {
	user, err := s.Register(ctx, id)
	if err != nil {
		return User{}, err
	}
	start := s.clock.Now()
	end := start.Add(s.duration)
	if err := s.store.Activate(ctx, user.ID, start, end); err != nil {
		return User{}, fmt.Errorf("activate user %s: %w", user.ID, err)
	}
	user.Active = true
	user.StartedAt = &start
	user.ExpiresAt = &end
	s.logger.Info("subscription activated",
		zap.String("user_id", user.ID),
		zap.Time("expires_at", end),
	)
	return user, nil
}

// AttachPayment records the latest payment id for a user.
func (s *Service) AttachPayment(ctx context.Context, id, paymentID string) error {
	id, err := normalizeID(id)
	if err != nil {
		return err
	}
	if err := s.store.SetLastPayment(ctx, id, paymentID); err != nil {
		return fmt.Errorf("attach payment to user %s: %w", id, err)
	}
	return nil
}

// List returns every stored record ordered by user id.
func (s *Service) List(ctx context.Context) ([]User, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func normalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidUserID
	}
	return id, nil
}
