package database

import (
	"time"
)

// AttendanceRecord is one logged sighting of an enrolled person. Records are append-only.
type AttendanceRecord struct {
	ID        int64
	Name      string
	Timestamp time.Time
}

// EmployeeRecord describes an enrolled person. Name is unique across the store.
type EmployeeRecord struct {
	Name       string
	EmployeeID string // optional, empty when not provided
	Department string // optional, empty when not provided
	CreatedAt  time.Time
}
