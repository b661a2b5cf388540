package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sstent/zwiftsync/internal/upload"
)

const timeLayout = "2006-01-02 15:04:05"

// SQLiteDatabase keeps the history of upload attempts in SQLite
type SQLiteDatabase struct {
	db *sql.DB
}

// NewDatabase opens (and if needed creates) the history database at path
func NewDatabase(path string) (*SQLiteDatabase, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteDatabase{db: db}, nil
}

// Close closes the database connection
func (d *SQLiteDatabase) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		destination TEXT NOT NULL,
		attempted_at TEXT NOT NULL,
		success BOOLEAN NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_filename ON uploads(filename);
	CREATE INDEX IF NOT EXISTS idx_uploads_success ON uploads(success);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// RecordAttempt stores the outcome of one upload attempt
func (d *SQLiteDatabase) RecordAttempt(a upload.Attempt) error {
	_, err := d.db.Exec(
		"INSERT INTO uploads (filename, destination, attempted_at, success, error) VALUES (?, ?, ?, ?, ?)",
		a.Filename,
		a.Destination,
		a.AttemptedAt.UTC().Format(timeLayout),
		a.Success,
		a.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record upload of %s: %w", a.Filename, err)
	}
	return nil
}

// GetAll returns every recorded attempt, oldest first
func (d *SQLiteDatabase) GetAll() ([]upload.Attempt, error) {
	return d.GetAllPaginated(0, 0) // 0,0 means no pagination
}

// GetFailed returns the attempts that failed
func (d *SQLiteDatabase) GetFailed() ([]upload.Attempt, error) {
	return d.GetFailedPaginated(0, 0)
}

// GetAllPaginated returns a page of all attempts
func (d *SQLiteDatabase) GetAllPaginated(page, pageSize int) ([]upload.Attempt, error) {
	return d.query("", page, pageSize)
}

// GetFailedPaginated returns a page of failed attempts
func (d *SQLiteDatabase) GetFailedPaginated(page, pageSize int) ([]upload.Attempt, error) {
	return d.query("WHERE success = 0", page, pageSize)
}

// GetForActivity returns the attempts made for one activity file
func (d *SQLiteDatabase) GetForActivity(filename string) ([]upload.Attempt, error) {
	rows, err := d.db.Query(
		"SELECT filename, destination, attempted_at, success, error FROM uploads WHERE filename = ? ORDER BY id",
		filename,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts for %s: %w", filename, err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

func (d *SQLiteDatabase) query(where string, page, pageSize int) ([]upload.Attempt, error) {
	query := "SELECT filename, destination, attempted_at, success, error FROM uploads " + where + " ORDER BY id"
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)
	}
	rows, err := d.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get upload attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// scanAttempts converts database rows to Attempt values
func scanAttempts(rows *sql.Rows) ([]upload.Attempt, error) {
	var attempts []upload.Attempt

	for rows.Next() {
		var a upload.Attempt
		var success int
		var attemptedAt string

		if err := rows.Scan(&a.Filename, &a.Destination, &attemptedAt, &success, &a.Error); err != nil {
			return nil, fmt.Errorf("failed to scan upload attempt: %w", err)
		}

		t, err := time.Parse(timeLayout, attemptedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse attempt time %q: %w", attemptedAt, err)
		}
		a.AttemptedAt = t
		a.Success = success == 1
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}
