// Package sqlstore implements the repositories on database/sql for SQLite and MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// Dialect holds the engine specific parts of the store.
type Dialect struct {
	Name   string
	Schema []string
}

var sqliteDialect = Dialect{
	Name: "sqlite3",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS locations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			max_capacity INTEGER NOT NULL,
			location_code TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			location_id INTEGER NOT NULL,
			session_name TEXT NOT NULL DEFAULT '',
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			total_analyses INTEGER NOT NULL DEFAULT 0,
			avg_people_count REAL NOT NULL DEFAULT 0,
			peak_people_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (location_id) REFERENCES locations(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER,
			location_id INTEGER,
			filename TEXT NOT NULL,
			file_type TEXT NOT NULL,
			people_count INTEGER NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			is_overcrowded INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			processing_time REAL NOT NULL DEFAULT 0,
			image_path TEXT,
			FOREIGN KEY (session_id) REFERENCES analysis_sessions(id) ON DELETE CASCADE,
			FOREIGN KEY (location_id) REFERENCES locations(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_created_at ON analysis_results(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_results_session_id ON analysis_results(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_location_id ON analysis_results(location_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_location_id ON analysis_sessions(location_id)`,
	},
}

var mysqlDialect = Dialect{
	Name: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS locations (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			description TEXT NOT NULL,
			max_capacity INT NOT NULL,
			location_code VARCHAR(50) NOT NULL UNIQUE,
			created_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS analysis_sessions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			location_id BIGINT NOT NULL,
			session_name VARCHAR(150) NOT NULL DEFAULT '',
			start_time DATETIME(6) NOT NULL,
			end_time DATETIME(6) NULL,
			total_analyses INT NOT NULL DEFAULT 0,
			avg_people_count DOUBLE NOT NULL DEFAULT 0,
			peak_people_count INT NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_sessions_location_id (location_id),
			CONSTRAINT fk_sessions_location FOREIGN KEY (location_id) REFERENCES locations(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS analysis_results (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			session_id BIGINT NULL,
			location_id BIGINT NULL,
			filename VARCHAR(255) NOT NULL,
			file_type VARCHAR(50) NOT NULL,
			people_count INT NOT NULL,
			confidence DOUBLE NOT NULL DEFAULT 0,
			is_overcrowded BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME(6) NOT NULL,
			processing_time DOUBLE NOT NULL DEFAULT 0,
			image_path VARCHAR(500) NULL,
			INDEX idx_results_created_at (created_at),
			INDEX idx_results_session_id (session_id),
			INDEX idx_results_location_id (location_id),
			CONSTRAINT fk_results_session FOREIGN KEY (session_id) REFERENCES analysis_sessions(id) ON DELETE CASCADE,
			CONSTRAINT fk_results_location FOREIGN KEY (location_id) REFERENCES locations(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
}

// DB wraps the connection pool. Every repository call checks a connection out of the
// pool for the duration of that call only.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// OpenSQLite opens (creating if needed) an SQLite database and migrates it.
func OpenSQLite(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	return newDB(conn, sqliteDialect)
}

// OpenMySQL connects to MySQL using a go-sql-driver DSN and migrates the schema.
func OpenMySQL(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to reach mysql: %w", err)
	}

	return newDB(conn, mysqlDialect)
}

func newDB(conn *sql.DB, dialect Dialect) (*DB, error) {
	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// migrate creates the necessary tables if they don't exist.
func (db *DB) migrate() error {
	for _, stmt := range db.dialect.Schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Driver returns the database/sql driver name.
func (db *DB) Driver() string {
	return db.dialect.Name
}

// now returns the timestamp stored in created_at columns. MySQL keeps microseconds,
// so values are truncated to that precision for both engines.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// pageArgs converts an offset/limit pair into SQL arguments.
func pageArgs(offset, limit uint) (int64, int64) {
	return clampInt64(offset), clampInt64(limit)
}

func clampInt64(v uint) int64 {
	if uint64(v) > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// isUniqueViolation reports whether err is a unique constraint failure on either engine.
func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
