package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
)

// AttendanceHandler serves the attendance log and the employee list.
type AttendanceHandler struct {
	attendance   database.AttendanceStore
	employees    database.EmployeeStore
	defaultLimit int
	logger       *slog.Logger
}

// NewAttendanceHandler creates a new attendance handler. defaultLimit applies when
// the request does not set one.
func NewAttendanceHandler(attendance database.AttendanceStore, employees database.EmployeeStore, defaultLimit int, logger *slog.Logger) *AttendanceHandler {
	if defaultLimit <= 0 {
		defaultLimit = constants.DefaultLogLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceHandler{
		attendance:   attendance,
		employees:    employees,
		defaultLimit: min(defaultLimit, constants.MaxLogLimit),
		logger:       logger,
	}
}

// LogEntry is one attendance record as returned by the API.
type LogEntry struct {
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

// LogsResponse is the body of GET /api/logs.
type LogsResponse struct {
	Status string     `json:"status"`
	Logs   []LogEntry `json:"logs"`
}

// Logs returns the newest attendance records.
func (h *AttendanceHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, constants.MaxLogLimit)
	}

	records, err := h.attendance.ListAttendance(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list attendance", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list attendance logs")
		return
	}

	logs := make([]LogEntry, 0, len(records))
	for _, rec := range records {
		logs = append(logs, LogEntry{
			Name:      rec.Name,
			Timestamp: rec.Timestamp.UTC().Format(constants.TimestampLayout),
		})
	}

	respondJSON(w, http.StatusOK, LogsResponse{Status: constants.StatusSuccess, Logs: logs})
}

// EmployeeEntry is one employee as returned by the API.
type EmployeeEntry struct {
	Name       string `json:"name"`
	EmployeeID string `json:"employee_id"`
	Department string `json:"department"`
	CreatedAt  string `json:"created_at"`
}

// EmployeesResponse is the body of GET /api/employees.
type EmployeesResponse struct {
	Status    string          `json:"status"`
	Employees []EmployeeEntry `json:"employees"`
}

// Employees returns every enrolled employee ordered by name.
func (h *AttendanceHandler) Employees(w http.ResponseWriter, r *http.Request) {
	records, err := h.employees.ListEmployees(r.Context())
	if err != nil {
		h.logger.Error("failed to list employees", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list employees")
		return
	}

	employees := make([]EmployeeEntry, 0, len(records))
	for _, e := range records {
		employees = append(employees, EmployeeEntry{
			Name:       e.Name,
			EmployeeID: e.EmployeeID,
			Department: e.Department,
			CreatedAt:  e.CreatedAt.UTC().Format(constants.TimestampLayout),
		})
	}

	respondJSON(w, http.StatusOK, EmployeesResponse{Status: constants.StatusSuccess, Employees: employees})
}
