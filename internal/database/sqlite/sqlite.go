// Package sqlite is the default single-file attendance store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// timestampLayout is fixed-width so that text ordering matches time ordering.
const timestampLayout = "2006-01-02 15:04:05.000000"

// Store implements database.Store on a SQLite file.
type Store struct {
	db *sql.DB
}

var _ database.Store = (*Store)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies pragmas and the schema. Safe to call on an existing file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LastAttendance returns the newest timestamp logged for name.
func (s *Store) LastAttendance(ctx context.Context, name string) (time.Time, bool, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp FROM attendance_logs WHERE name = ? ORDER BY timestamp DESC LIMIT 1`, name,
	).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get last attendance: %w", err)
	}
	return ts.UTC(), true, nil
}

// InsertAttendance appends an attendance record.
func (s *Store) InsertAttendance(ctx context.Context, name string, ts time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance_logs (name, timestamp) VALUES (?, ?)`, name, ts.UTC().Format(timestampLayout),
	); err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// ListAttendance returns up to limit records, newest first.
func (s *Store) ListAttendance(ctx context.Context, limit int) ([]database.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, timestamp FROM attendance_logs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var r database.AttendanceRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}

// AddEmployee inserts an employee, leaving an existing row with the same name untouched.
func (s *Store) AddEmployee(ctx context.Context, e database.EmployeeRecord) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (name, employee_id, department)
		VALUES (?, NULLIF(?, ''), NULLIF(?, ''))
		ON CONFLICT (name) DO NOTHING`,
		e.Name, e.EmployeeID, e.Department,
	)
	if err != nil {
		return false, fmt.Errorf("add employee: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n > 0, nil
}

// ListEmployees returns all employees ordered by name.
func (s *Store) ListEmployees(ctx context.Context) ([]database.EmployeeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, COALESCE(employee_id, ''), COALESCE(department, ''), created_at
		FROM employees
		ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var employees []database.EmployeeRecord
	for rows.Next() {
		var e database.EmployeeRecord
		if err := rows.Scan(&e.Name, &e.EmployeeID, &e.Department, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return employees, nil
}
