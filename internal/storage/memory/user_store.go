// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lflhelper/fixtures-bot/internal/subscription"
)

// UserStore keeps subscription records in a map.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]subscription.User
}

// NewUserStore constructs an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]subscription.User)}
}

// Create inserts an inactive record for id.
func (s *UserStore) Create(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[id]; exists {
		return subscription.ErrUserExists
	}
	s.users[id] = subscription.User{ID: id}
	return nil
}

// Get returns a copy of the record for id.
func (s *UserStore) Get(_ context.Context, id string) (subscription.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return subscription.User{}, subscription.ErrUserNotFound
	}
	return cloneUser(user), nil
}

// List returns copies of every record in no particular order.
func (s *UserStore) List(context.Context) ([]subscription.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]subscription.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, cloneUser(user))
	}
	return users, nil
}

// Activate marks id active for the given period.
func (s *UserStore) Activate(_ context.Context, id string, startedAt, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return subscription.ErrUserNotFound
	}
	user.Active = true
	user.StartedAt = &startedAt
	user.ExpiresAt = &expiresAt
	s.users[id] = user
	return nil
}

// Expire switches id off if its expiry still equals expiresAt.
func (s *UserStore) Expire(_ context.Context, id string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return false, subscription.ErrUserNotFound
	}
	if !user.Active || user.ExpiresAt == nil || !user.ExpiresAt.Equal(expiresAt) {
		return false, nil
	}
	user.Active = false
	s.users[id] = user
	return true, nil
}

// SetLastPayment records paymentID on id.
func (s *UserStore) SetLastPayment(_ context.Context, id, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return subscription.ErrUserNotFound
	}
	user.LastPaymentID = paymentID
	s.users[id] = user
	return nil
}

// Ping always succeeds.
func (s *UserStore) Ping(context.Context) error {
	return nil
}

func cloneUser(u subscription.User) subscription.User {
	u.StartedAt = pointerTime(u.StartedAt)
	u.ExpiresAt = pointerTime(u.ExpiresAt)
	return u
}

func pointerTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
