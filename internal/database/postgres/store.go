package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
)

// Store implements database.Store on top of a PostgreSQL pool.
type Store struct {
	pool *Pool
}

var _ database.Store = (*Store)(nil)

// NewStore wraps an already migrated pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// LastAttendance returns the newest timestamp logged for name.
func (s *Store) LastAttendance(ctx context.Context, name string) (time.Time, bool, error) {
	query := `
		SELECT timestamp FROM attendance_logs
		WHERE name = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var ts time.Time
	err := s.pool.QueryRow(ctx, query, name).Scan(&ts)
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
	_, err := s.pool.Exec(ctx, "INSERT INTO attendance_logs (name, timestamp) VALUES ($1, $2)", name, ts.UTC())
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// ListAttendance returns up to limit records, newest first.
func (s *Store) ListAttendance(ctx context.Context, limit int) ([]database.AttendanceRecord, error) {
	query := `
		SELECT id, name, timestamp FROM attendance_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
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
	query := `
		INSERT INTO employees (name, employee_id, department)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
		ON CONFLICT (name) DO NOTHING
	`

	result, err := s.pool.Exec(ctx, query, e.Name, e.EmployeeID, e.Department)
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
	query := `
		SELECT name, COALESCE(employee_id, ''), COALESCE(department, ''), created_at
		FROM employees
		ORDER BY name ASC
	`

	rows, err := s.pool.Query(ctx, query)
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
