package userdir

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"

	"linkrelay/internal/common"
	"linkrelay/internal/media"
	"linkrelay/internal/userdir/migrations"
)

// Dialect selects placeholder syntax and the goose dialect.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

func (d Dialect) driver() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) gooseDialect() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

// DBTX is the subset of *sql.DB the store needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore keeps users in a single table. Upserts rely on ON CONFLICT, which
// both SQLite and PostgreSQL support.
type SQLStore struct {
	db      DBTX
	closer  func() error
	dialect Dialect
	now     clock
}

// NewSQLStore wraps an open connection. The schema must already exist; see
// Migrate.
func NewSQLStore(db DBTX, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, closer: func() error { return nil }, dialect: dialect, now: utcNow}
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialect.gooseDialect()); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrating users schema: %w", err)
	}
	return nil
}

// OpenSQL connects, pings and migrates.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(dialect.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// One writer at a time; also keeps ":memory:" to a single database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", dialect, err)
	}

	if err := Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	s := NewSQLStore(db, dialect)
	s.closer = db.Close
	return s, nil
}

// rebind rewrites "?" placeholders for the store's dialect.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) AddUser(ctx context.Context, userID int64, displayName string) error {
	now := s.now()
	q := s.rebind(`INSERT INTO users (user_id, username, joined_at, last_seen_at, total_downloads)
VALUES (?, ?, ?, ?, 0)
ON CONFLICT (user_id) DO UPDATE SET username = excluded.username, last_seen_at = excluded.last_seen_at`)

	if _, err := s.db.ExecContext(ctx, q, userID, displayName, now, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *SQLStore) GetUser(ctx context.Context, userID int64) (media.UserRecord, error) {
	q := s.rebind(`SELECT user_id, username, joined_at, last_seen_at, total_downloads FROM users WHERE user_id = ?`)

	var rec media.UserRecord
	err := s.db.QueryRowContext(ctx, q, userID).Scan(
		&rec.UserID, &rec.DisplayName, &rec.JoinedAt, &rec.LastSeenAt, &rec.TotalDownloads)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return media.UserRecord{}, common.ErrNotFound
		}
		return media.UserRecord{}, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) AllUsers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]media.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, joined_at, last_seen_at, total_downloads FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var recs []media.UserRecord
	for rows.Next() {
		var rec media.UserRecord
		if err := rows.Scan(&rec.UserID, &rec.DisplayName, &rec.JoinedAt, &rec.LastSeenAt, &rec.TotalDownloads); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return recs, nil
}

func (s *SQLStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Touch(ctx context.Context, userID int64) error {
	q := s.rebind(`UPDATE users SET last_seen_at = ? WHERE user_id = ?`)
	return s.update(ctx, q, s.now(), userID)
}

func (s *SQLStore) IncrementDownloads(ctx context.Context, userID int64) error {
	q := s.rebind(`UPDATE users SET total_downloads = total_downloads + 1, last_seen_at = ? WHERE user_id = ?`)
	return s.update(ctx, q, s.now(), userID)
}

// update runs a single-row UPDATE and maps "no row" to common.ErrNotFound.
func (s *SQLStore) update(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteUser(ctx context.Context, userID int64) error {
	q := s.rebind(`DELETE FROM users WHERE user_id = ?`)
	if _, err := s.db.ExecContext(ctx, q, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.closer()
}
