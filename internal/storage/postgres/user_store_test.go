package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/lflhelper/fixtures-bot/internal/subscription"
)

func newMockStore(t *testing.T) (*UserStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewUserStoreWithPool(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestNewUserStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewUserStoreWithPool(mock, "users; DROP TABLE users")
	require.ErrorContains(t, err, "invalid table name")
	_, err = NewUserStoreWithPool(nil, "users")
	require.Error(t, err)

	store, err := NewUserStoreWithPool(mock, "bot_users")
	require.NoError(t, err)
	require.Equal(t, "bot_users", store.table)
}

func TestNewUserStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewUserStore(context.Background(), UserStoreConfig{})
	require.ErrorContains(t, err, "db.dsn is required")
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO users").
		WithArgs("42").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO users").
		WithArgs("42").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, store.Create(context.Background(), "42"))
	require.ErrorIs(t, store.Create(context.Background(), "42"), subscription.ErrUserExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	start := time.Unix(1700000000, 0).UTC()
	end := start.Add(30 * 24 * time.Hour)

	columns := []string{"id", "active", "started_at", "expires_at", "last_payment_id"}
	mock.ExpectQuery("SELECT id, active, started_at, expires_at").
		WithArgs("42").
		WillReturnRows(pgxmock.NewRows(columns).AddRow("42", true, &start, &end, "pay-1"))
	mock.ExpectQuery("SELECT id, active, started_at, expires_at").
		WithArgs("7").
		WillReturnRows(pgxmock.NewRows(columns).AddRow("7", false, nil, nil, ""))

	user, err := store.Get(context.Background(), "42")
	require.NoError(t, err)
	require.True(t, user.Active)
	require.Equal(t, start, *user.StartedAt)
	require.Equal(t, end, *user.ExpiresAt)
	require.Equal(t, "pay-1", user.LastPaymentID)

	fresh, err := store.Get(context.Background(), "7")
	require.NoError(t, err)
	require.Nil(t, fresh.StartedAt)
	require.Nil(t, fresh.ExpiresAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingUser(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, active").
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id, active").
		WithArgs("broken").
		WillReturnError(errors.New("conn reset"))

	_, err := store.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, subscription.ErrUserNotFound)

	_, err = store.Get(context.Background(), "broken")
	require.ErrorContains(t, err, "select user")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateSetsPeriod(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	start := time.Unix(1700000000, 0).UTC()
	end := start.Add(time.Hour)

	mock.ExpectExec(`UPDATE users\s+SET active = TRUE, started_at = \$2, expires_at = \$3`).
		WithArgs("42", start, end).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users").
		WithArgs("43", start, end).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.Activate(context.Background(), "42", start, end))
	require.ErrorIs(t, store.Activate(context.Background(), "43", start, end), subscription.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireIsConditionalOnStoredExpiry(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	end := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec(`UPDATE users\s+SET active = FALSE\s+WHERE id = \$1 AND active AND expires_at = \$2`).
		WithArgs("42", end).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users").
		WithArgs("42", end).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE users").
		WithArgs("42", end).
		WillReturnError(errors.New("conn reset"))

	expired, err := store.Expire(context.Background(), "42", end)
	require.NoError(t, err)
	require.True(t, expired)

	expired, err = store.Expire(context.Background(), "42", end)
	require.NoError(t, err)
	require.False(t, expired, "a renewed row must be left alone")

	_, err = store.Expire(context.Background(), "42", end)
	require.ErrorContains(t, err, "expire user")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetLastPaymentTouchesOnlyPaymentColumn(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE users\s+SET last_payment_id = NULLIF\(\$2, ''\)\s+WHERE id = \$1`).
		WithArgs("42", "pay-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users").
		WithArgs("43", "pay-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.SetLastPayment(context.Background(), "42", "pay-1"))
	require.ErrorIs(t, store.SetLastPayment(context.Background(), "43", "pay-2"), subscription.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListScansAllRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	start := time.Unix(1700000000, 0).UTC()
	end := start.Add(30 * 24 * time.Hour)

	columns := []string{"id", "active", "started_at", "expires_at", "last_payment_id"}
	mock.ExpectQuery(`SELECT id, active, started_at, expires_at, .+ FROM users\s+ORDER BY id`).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("1", true, &start, &end, "pay-1").
			AddRow("2", false, nil, nil, ""))
	mock.ExpectQuery("SELECT id, active").
		WillReturnError(errors.New("conn reset"))

	users, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "1", users[0].ID)
	require.True(t, users[0].Active)
	require.Equal(t, end, *users[0].ExpiresAt)
	require.Equal(t, "2", users[1].ID)
	require.Nil(t, users[1].ExpiresAt)

	_, err = store.List(context.Background())
	require.ErrorContains(t, err, "list users")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewUserStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}
