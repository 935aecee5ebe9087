package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
)

const driverName = "ec2spotconverter-sqlite"

var registerOnce = func() func() {
	var done bool
	return func() {
		if done {
			return
		}
		sql.Register(driverName, &sqlite.Driver{})
		done = true
	}
}()

// SQLite is a single-host Store alternative to DynamoDB, grounded on the
// teacher's pkg/indexstore/store_sqlite.go (driver registration, WAL mode,
// busy_timeout) and pkg/reflowstate/store.go (schema versioning, upsert
// pattern via ON CONFLICT DO UPDATE).
type SQLite struct {
	db *sql.DB
}

const sqliteSchemaVersion = 1

// OpenSQLite opens (creating if needed) a SQLite-backed job store at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	registerOnce()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping job store: %w", err)
	}

	if path != ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		pragmaCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		var journalMode string
		if err := db.QueryRowContext(pragmaCtx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := db.ExecContext(pragmaCtx, "PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	s := &SQLite{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS job_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS job_records (
			instance_id TEXT PRIMARY KEY,
			record TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO job_meta (id, schema_version, created_at) VALUES (1, ?, ?)`,
		sqliteSchemaVersion, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("init schema meta: %w", err)
	}
	return nil
}

func (s *SQLite) EnsureTable(ctx context.Context) error {
	return s.ensureSchema(ctx)
}

func (s *SQLite) Load(ctx context.Context, key string) ([]byte, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM job_records WHERE instance_id = ?`, key).Scan(&record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load job record: %w", err)
	}
	return []byte(record), nil
}

func (s *SQLite) Save(ctx context.Context, key string, raw []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_records (instance_id, record, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			record = excluded.record,
			updated_at = excluded.updated_at
	`, key, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save job record: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLite)(nil)
