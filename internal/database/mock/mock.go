// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
)

// MockStore is an in-memory implementation of database.Store.
type MockStore struct {
	mu         sync.RWMutex
	attendance []database.AttendanceRecord
	employees  map[string]database.EmployeeRecord
	nextID     int64

	// Error injection
	LastAttendanceError   error
	InsertAttendanceError error
	ListAttendanceError   error
	AddEmployeeError      error
	ListEmployeesError    error

	// Call counters
	InsertCalls int
	LastCalls   int
}

var _ database.Store = (*MockStore)(nil)

// NewMockStore creates a new empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		employees: make(map[string]database.EmployeeRecord),
	}
}

// LastAttendance returns the newest timestamp for name
func (m *MockStore) LastAttendance(ctx context.Context, name string) (time.Time, bool, error) {
	m.mu.Lock()
	m.LastCalls++
	m.mu.Unlock()

	if m.LastAttendanceError != nil {
		return time.Time{}, false, m.LastAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last time.Time
	found := false
	for _, r := range m.attendance {
		if r.Name == name && (!found || r.Timestamp.After(last)) {
			last = r.Timestamp
			found = true
		}
	}
	return last, found, nil
}

// InsertAttendance appends a record
func (m *MockStore) InsertAttendance(ctx context.Context, name string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls++

	if m.InsertAttendanceError != nil {
		return m.InsertAttendanceError
	}
	m.nextID++
	m.attendance = append(m.attendance, database.AttendanceRecord{ID: m.nextID, Name: name, Timestamp: ts.UTC()})
	return nil
}

// ListAttendance returns up to limit records, newest first
func (m *MockStore) ListAttendance(ctx context.Context, limit int) ([]database.AttendanceRecord, error) {
	if m.ListAttendanceError != nil {
		return nil, m.ListAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]database.AttendanceRecord, len(m.attendance))
	copy(records, m.attendance)
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].ID > records[j].ID
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if limit >= 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Records returns every stored attendance record in insertion order
func (m *MockStore) Records() []database.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]database.AttendanceRecord, len(m.attendance))
	copy(records, m.attendance)
	return records
}

// AddEmployee inserts an employee unless the name already exists
func (m *MockStore) AddEmployee(ctx context.Context, e database.EmployeeRecord) (bool, error) {
	if m.AddEmployeeError != nil {
		return false, m.AddEmployeeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.employees[e.Name]; ok {
		return false, nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.employees[e.Name] = e
	return true, nil
}

// ListEmployees returns employees ordered by name
func (m *MockStore) ListEmployees(ctx context.Context) ([]database.EmployeeRecord, error) {
	if m.ListEmployeesError != nil {
		return nil, m.ListEmployeesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	employees := make([]database.EmployeeRecord, 0, len(m.employees))
	for _, e := range m.employees {
		employees = append(employees, e)
	}
	sort.Slice(employees, func(i, j int) bool { return employees[i].Name < employees[j].Name })
	return employees, nil
}

// Close is a no-op
func (m *MockStore) Close() error {
	return nil
}
