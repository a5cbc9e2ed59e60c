package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lucasnoah/dsmeta/internal/config"
)

// DB wraps the run history database connection.
type DB struct {
	conn    *sql.DB
	path    string
	dialect string // "sqlite" or "postgres"
}

// DefaultDBPath returns ~/.dsmeta/dsmeta.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(home, ".dsmeta")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "dsmeta.db"), nil
}

// OpenConfig opens the database named by the config section. An empty
// sqlite DSN means DefaultDBPath.
func OpenConfig(cfg config.Database) (*DB, error) {
	if cfg.Driver == "postgres" {
		return OpenPostgres(cfg.DSN)
	}
	path := cfg.DSN
	if path == "" {
		p, err := DefaultDBPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return Open(path)
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &DB{conn: conn, path: path, dialect: "sqlite"}, nil
}

// OpenPostgres connects to a PostgreSQL database through the pgx driver.
func OpenPostgres(dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{conn: conn, path: dsn, dialect: "postgres"}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Dialect reports "sqlite" or "postgres".
func (d *DB) Dialect() string {
	return d.dialect
}

const sqliteSchemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    processing_id  TEXT NOT NULL,
    dataset_path   TEXT NOT NULL,
    dataset_name   TEXT,
    status         TEXT NOT NULL CHECK(status IN ('success','failed')),
    failed_stage   TEXT,
    error_message  TEXT,
    attempt        INTEGER NOT NULL DEFAULT 1,
    quality_score  REAL NOT NULL DEFAULT 0,
    written_files  TEXT,
    duration_ms    INTEGER NOT NULL DEFAULT 0,
    created_at     TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_runs_path ON runs(dataset_path, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

const postgresSchemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT to_char(now() AT TIME ZONE 'utc', 'YYYY-MM-DD HH24:MI:SS')
);

CREATE TABLE IF NOT EXISTS runs (
    id             BIGSERIAL PRIMARY KEY,
    processing_id  TEXT NOT NULL,
    dataset_path   TEXT NOT NULL,
    dataset_name   TEXT,
    status         TEXT NOT NULL CHECK(status IN ('success','failed')),
    failed_stage   TEXT,
    error_message  TEXT,
    attempt        INTEGER NOT NULL DEFAULT 1,
    quality_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
    written_files  TEXT,
    duration_ms    BIGINT NOT NULL DEFAULT 0,
    created_at     TEXT NOT NULL DEFAULT to_char(now() AT TIME ZONE 'utc', 'YYYY-MM-DD HH24:MI:SS')
);
CREATE INDEX IF NOT EXISTS idx_runs_path ON runs(dataset_path, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

// Migrate applies the database schema.
func (d *DB) Migrate() error {
	var count int
	err := d.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	schema := sqliteSchemaV1
	if d.dialect == "postgres" {
		schema = postgresSchemaV1
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset() error {
	tables := []string{"runs", "schema_version"}
	for _, t := range tables {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate()
}

// rebind rewrites "?" placeholders as "$1", "$2"... for PostgreSQL.
func (d *DB) rebind(query string) string {
	if d.dialect != "postgres" {
		return query
	}
	return Rebind(query)
}

// Rebind numbers "?" placeholders PostgreSQL style.
func Rebind(query string) string {
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
