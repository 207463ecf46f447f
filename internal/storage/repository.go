package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"metas/internal/core"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository is the SQLite-backed data backend. Every mutation runs in
// a transaction on a single connection, which makes slot allocation
// authoritative.
type SQLiteRepository struct {
	db    *sql.DB
	files *FileStore
	now   func() time.Time
	rng   *rand.Rand
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string, files *FileStore) (*SQLiteRepository, error) {
	if files == nil {
		return nil, fmt.Errorf("file store is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dsn(dbPath)); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, files: files, now: time.Now}, nil
}

// Files exposes the proof file store for serving.
func (r *SQLiteRepository) Files() *FileStore { return r.files }

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return core.Transport("ping database", err)
	}
	return nil
}

func (r *SQLiteRepository) stamp() time.Time { return r.now().UTC() }

// inTx runs fn in a transaction and commits when it returns nil.
func (r *SQLiteRepository) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transport(op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbErr(op, err)
	}
	return nil
}

// dbErr maps driver errors onto the core taxonomy.
func dbErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", op, core.ErrConflict)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return core.Transport(op, err)
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (r *SQLiteRepository) UpsertUser(ctx context.Context, u core.User) (core.User, error) {
	now := formatTime(r.stamp())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, payout_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			payout_key = CASE WHEN excluded.payout_key = '' THEN users.payout_key ELSE excluded.payout_key END,
			updated_at = excluded.updated_at`,
		u.ID, u.Email, u.PayoutKey, now, now)
	if err != nil {
		return core.User{}, dbErr("upsert user", err)
	}
	return r.GetUser(ctx, u.ID)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, userID string) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, payout_key FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.Email, &u.PayoutKey)
	if err != nil {
		return core.User{}, dbErr("get user "+userID, err)
	}
	return u, nil
}

func (r *SQLiteRepository) UpdatePayoutKey(ctx context.Context, userID, key string) (core.User, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET payout_key = ?, updated_at = ? WHERE id = ?`,
		key, formatTime(r.stamp()), userID)
	if err != nil {
		return core.User{}, dbErr("update payout key", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.User{}, fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
	}
	return r.GetUser(ctx, userID)
}
