package database

import (
	"context"
	"time"
)

// AttendanceStore persists attendance records.
type AttendanceStore interface {
	// LastAttendance returns the most recent timestamp logged for name.
	// The bool is false when name has never been logged.
	LastAttendance(ctx context.Context, name string) (time.Time, bool, error)
	// InsertAttendance appends a record for name at ts.
	InsertAttendance(ctx context.Context, name string, ts time.Time) error
	// ListAttendance returns up to limit records, newest first.
	ListAttendance(ctx context.Context, limit int) ([]AttendanceRecord, error)
}

// EmployeeStore persists employee metadata captured at enrollment.
type EmployeeStore interface {
	// AddEmployee inserts the employee. A name that already exists is left untouched
	// and reported as false with a nil error.
	AddEmployee(ctx context.Context, e EmployeeRecord) (bool, error)
	// ListEmployees returns every employee ordered by name ascending.
	ListEmployees(ctx context.Context) ([]EmployeeRecord, error)
}

// Store is the full relational backend used by the application.
type Store interface {
	AttendanceStore
	EmployeeStore
	Close() error
}
