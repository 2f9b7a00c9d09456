// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lflhelper/fixtures-bot/internal/subscription"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "users"

// UserStoreConfig controls the Postgres connection pool used for subscription rows.
type UserStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// UserStore keeps subscription records in a Postgres table.
type UserStore struct {
	pool  pool
	table string
}

// NewUserStore connects to Postgres using the provided config.
func NewUserStore(ctx context.Context, cfg UserStoreConfig) (*UserStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &UserStore{pool: p, table: table}, nil
}

// NewUserStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewUserStoreWithPool(p pool, table string) (*UserStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &UserStore{pool: p, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *UserStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *UserStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the users table when it does not exist.
func (s *UserStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	active BOOLEAN NOT NULL DEFAULT FALSE,
	started_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ,
	last_payment_id TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// Create inserts an inactive record for id.
func (s *UserStore) Create(ctx context.Context, id string) error {
	query := fmt.Sprintf(`INSERT INTO %s (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrUserExists
	}
	return nil
}

// Get loads the record for id.
func (s *UserStore) Get(ctx context.Context, id string) (subscription.User, error) {
	query := fmt.Sprintf(`
SELECT id, active, started_at, expires_at, COALESCE(last_payment_id, '')
FROM %s
WHERE id = $1`, s.table)

	var user subscription.User
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Active,
		&user.StartedAt,
		&user.ExpiresAt,
		&user.LastPaymentID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return subscription.User{}, subscription.ErrUserNotFound
	}
	if err != nil {
		return subscription.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

// List loads every record ordered by id.
func (s *UserStore) List(ctx context.Context) ([]subscription.User, error) {
	query := fmt.Sprintf(`
SELECT id, active, started_at, expires_at, COALESCE(last_payment_id, '')
FROM %s
ORDER BY id`, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []subscription.User
	for rows.Next() {
		var user subscription.User
		err := rows.Scan(
			&user.ID,
			&user.Active,
			&user.StartedAt,
			&user.ExpiresAt,
			&user.LastPaymentID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return users, nil
}

// Activate marks id active for the given period.
func (s *UserStore) Activate(ctx context.Context, id string, startedAt, expiresAt time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s
SET active = TRUE, started_at = $2, expires_at = $3
WHERE id = $1`, s.table)
	return s.execOne(ctx, "activate user", query, id, startedAt, expiresAt)
}

// Expire switches id off if its expiry still equals expiresAt. A renewal that
// committed after the caller read the record leaves the row untouched.
func (s *UserStore) Expire(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	query := fmt.Sprintf(`
UPDATE %s
SET active = FALSE
WHERE id = $1 AND active AND expires_at = $2`, s.table)

	tag, err := s.pool.Exec(ctx, query, id, expiresAt)
	if err != nil {
		return false, fmt.Errorf("expire user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetLastPayment records paymentID on id.
func (s *UserStore) SetLastPayment(ctx context.Context, id, paymentID string) error {
	query := fmt.Sprintf(`
UPDATE %s
SET last_payment_id = NULLIF($2, '')
WHERE id = $1`, s.table)
	return s.execOne(ctx, "set last payment", query, id, paymentID)
}

func (s *UserStore) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrUserNotFound
	}
	return nil
}
