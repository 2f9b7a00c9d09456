package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	users     map[string]User
	updates   int
	updateErr error
	// afterGet runs once after the next Get returns, before the caller acts on it.
	afterGet func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]User{}}
}

func (s *fakeStore) Create(_ context.Context, id string) error {
	if _, ok := s.users[id]; ok {
		return ErrUserExists
	}
	s.users[id] = User{ID: id}
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (User, error) {
	u, ok := s.users[id]
	if hook := s.afterGet; hook != nil {
		s.afterGet = nil
		defer hook()
	}
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *fakeStore) List(context.Context) ([]User, error) {
	users := make([]User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

func (s *fakeStore) write(id string, fn func(*User) bool) (bool, error) {
	if s.updateErr != nil {
		return false, s.updateErr
	}
	u, ok := s.users[id]
	if !ok {
		return false, ErrUserNotFound
	}
	if !fn(&u) {
		return false, nil
	}
	s.updates++
	s.users[id] = u
	return true, nil
}

func (s *fakeStore) Activate(_ context.Context, id string, start, end time.Time) error {
	_, err := s.write(id, func(u *User) bool {
		u.Active, u.StartedAt, u.ExpiresAt = true, &start, &end
		return true
	})
	return err
}

func (s *fakeStore) Expire(_ context.Context, id string, expiresAt time.Time) (bool, error) {
	return s.write(id, func(u *User) bool {
		if !u.Active || u.ExpiresAt == nil || !u.ExpiresAt.Equal(expiresAt) {
			return false
		}
		u.Active = false
		return true
	})
}

func (s *fakeStore) SetLastPayment(_ context.Context, id, paymentID string) error {
	_, err := s.write(id, func(u *User) bool {
		u.LastPaymentID = paymentID
		return true
	})
	return err
}

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

func newTestService(store Store) (*Service, *manualClock) {
	clk := &manualClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	return NewService(store, clk, 0, zap.NewNop()), clk
}

func TestRegisterIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	first, err := svc.Register(ctx, " 42 ")
	require.NoError(t, err)
	require.Equal(t, "42", first.ID)
	require.False(t, first.Active)

	store.users["42"] = User{ID: "42", LastPaymentID: "pay-1"}
	second, err := svc.Register(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "pay-1", second.LastPaymentID)
	require.Len(t, store.users, 1)

	_, err = svc.Register(ctx, "  ")
	require.ErrorIs(t, err, ErrInvalidUserID)
}

func TestActivateUsesConfiguredPeriod(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	clk := &manualClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	svc := NewService(store, clk, 7*24*time.Hour, nil)

	user, err := svc.Activate(context.Background(), "42")
	require.NoError(t, err)
	require.True(t, user.Active)
	require.Equal(t, clk.now, *user.StartedAt)
	require.Equal(t, clk.now.Add(7*24*time.Hour), *user.ExpiresAt)
	require.Equal(t, user, store.users["42"])
	require.Equal(t, clk.now, svc.Now())
}

func TestIsActiveLifecycle(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc, clk := newTestService(store)
	ctx := context.Background()

	active, err := svc.IsActive(ctx, "unknown")
	require.NoError(t, err)
	require.False(t, active)

	_, err = svc.Register(ctx, "42")
	require.NoError(t, err)
	active, err = svc.IsActive(ctx, "42")
	require.NoError(t, err)
	require.False(t, active)

	_, err = svc.Activate(ctx, "42")
	require.NoError(t, err)
	active, err = svc.IsActive(ctx, "42")
	require.NoError(t, err)
	require.True(t, active)

	updatesBefore := store.updates
	clk.now = clk.now.Add(DefaultDuration)
	active, err = svc.IsActive(ctx, "42")
	require.NoError(t, err)
	require.False(t, active)
	require.False(t, store.users["42"].Active, "expiry must be persisted")
	require.Equal(t, updatesBefore+1, store.updates)
}

func TestIsActiveKeepsRenewalThatLandsDuringExpiry(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc, clk := newTestService(store)
	ctx := context.Background()

	_, err := svc.Activate(ctx, "42")
	require.NoError(t, err)
	clk.now = clk.now.Add(DefaultDuration + time.Hour)

	var renewed User
	store.afterGet = func() {
		renewed, err = svc.Activate(ctx, "42")
	}
	active, isErr := svc.IsActive(ctx, "42")
	require.NoError(t, isErr)
	require.NoError(t, err)
	require.True(t, active)

	stored := store.users["42"]
	require.True(t, stored.Active, "renewed subscription must survive the expiry check")
	require.Equal(t, *renewed.ExpiresAt, *stored.ExpiresAt)
}

func TestAttachPaymentDoesNotRevertActivation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc, _ := newTestService(store)
	ctx := context.Background()
	_, err := svc.Register(ctx, "42")
	require.NoError(t, err)

	_, err = svc.Activate(ctx, "42")
	require.NoError(t, err)
	require.NoError(t, svc.AttachPayment(ctx, "42", "pay-2"))

	stored := store.users["42"]
	require.True(t, stored.Active)
	require.NotNil(t, stored.ExpiresAt)
	require.Equal(t, "pay-2", stored.LastPaymentID)
}

func TestListOrdersByID(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc, _ := newTestService(store)
	ctx := context.Background()
	for _, id := range []string{"30", "10", "20"} {
		_, err := svc.Register(ctx, id)
		require.NoError(t, err)
	}

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	require.Equal(t, []string{"10", "20", "30"}, []string{users[0].ID, users[1].ID, users[2].ID})
}

func TestIsActiveWithoutExpiryIsInactive(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.users["42"] = User{ID: "42", Active: true}
	svc, _ := newTestService(store)

	active, err := svc.IsActive(context.Background(), "42")
	require.NoError(t, err)
	require.False(t, active)
	require.Zero(t, store.updates)
}

func TestIsActivePropagatesExpiryWriteFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc, clk := newTestService(store)
	ctx := context.Background()
	_, err := svc.Activate(ctx, "42")
	require.NoError(t, err)

	store.updateErr = errors.New("db down")
	clk.now = clk.now.Add(2 * DefaultDuration)
	_, err = svc.IsActive(ctx, "42")
	require.ErrorContains(t, err, "db down")
}

func TestAttachPayment(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	require.ErrorIs(t, svc.AttachPayment(ctx, "42", "pay-1"), ErrUserNotFound)

	_, err := svc.Register(ctx, "42")
	require.NoError(t, err)
	require.NoError(t, svc.AttachPayment(ctx, "42", "pay-1"))
	require.Equal(t, "pay-1", store.users["42"].LastPaymentID)
}

func TestUserActiveAt(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	end := now.Add(time.Minute)
	require.True(t, User{Active: true, ExpiresAt: &end}.ActiveAt(now))
	require.False(t, User{Active: true, ExpiresAt: &end}.ActiveAt(end))
	require.False(t, User{Active: false, ExpiresAt: &end}.ActiveAt(now))
	require.False(t, User{Active: true}.ActiveAt(now))
}
