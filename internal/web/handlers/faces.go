package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/enrollment"
	"github.com/kozaktomas/attendance/internal/imaging"
	"github.com/kozaktomas/attendance/internal/pipeline"
)

// Enroller stores reference images for a person.
type Enroller interface {
	Save(ctx context.Context, name string, image []byte) (string, string, error)
}

// FrameProcessor identifies the faces in one frame and logs attendance.
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, frame []byte) (*pipeline.Result, error)
}

// FacesHandler handles enrollment uploads and snapshot recognition.
type FacesHandler struct {
	enroller  Enroller
	employees database.EmployeeStore
	processor FrameProcessor
	logger    *slog.Logger
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(enroller Enroller, employees database.EmployeeStore, processor FrameProcessor, logger *slog.Logger) *FacesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FacesHandler{
		enroller:  enroller,
		employees: employees,
		processor: processor,
		logger:    logger,
	}
}

// UploadFaceRequest is the body of POST /upload_face.
type UploadFaceRequest struct {
	Name       string `json:"name"`
	EmployeeID string `json:"employee_id"`
	Department string `json:"department"`
	Image      string `json:"image"`
}

// StatusResponse is a plain success acknowledgement.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// UploadFace enrolls a reference image and records the employee.
// Once the image is stored the enrollment is in effect, so a failure to record
// the employee row is logged and the request still succeeds.
func (h *FacesHandler) UploadFace(w http.ResponseWriter, r *http.Request) {
	var req UploadFaceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	name, err := enrollment.CleanName(req.Name)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	image, err := imaging.DecodeDataURL(req.Image)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := imaging.Validate(image); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, _, err := h.enroller.Save(r.Context(), name, image)
	if err != nil {
		if errors.Is(err, enrollment.ErrInvalidName) || errors.Is(err, imaging.ErrInvalidImage) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to save enrollment image", "name", sanitizeForLog(name), "error", err)
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save image: %v", err))
		return
	}
	name = saved

	added, err := h.employees.AddEmployee(r.Context(), database.EmployeeRecord{
		Name:       name,
		EmployeeID: strings.TrimSpace(req.EmployeeID),
		Department: strings.TrimSpace(req.Department),
	})
	switch {
	case err != nil:
		h.logger.Error("face enrolled but employee record failed", "name", sanitizeForLog(name), "error", err)
	case !added:
		h.logger.Info("employee already exists, added another reference image", "name", sanitizeForLog(name))
	}

	respondJSON(w, http.StatusOK, StatusResponse{
		Status:  constants.StatusSuccess,
		Message: "Face registered for " + name,
	})
}

// SnapshotRequest is the body of POST /process_snapshot.
type SnapshotRequest struct {
	Image string `json:"image"`
}

// DetectionResponse is one face in a processed snapshot.
type DetectionResponse struct {
	X        int     `json:"x"`
	Y        int     `json:"y"`
	W        int     `json:"w"`
	H        int     `json:"h"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// SnapshotResponse is the body returned by POST /process_snapshot.
type SnapshotResponse struct {
	Status     string              `json:"status"`
	Detections []DetectionResponse `json:"detections"`
}

// ProcessSnapshot identifies every face in an uploaded frame and logs attendance
// for the recognized ones.
func (h *FacesHandler) ProcessSnapshot(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	frame, err := imaging.DecodeDataURL(req.Image)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.processor.ProcessFrame(r.Context(), frame)
	if err != nil {
		if errors.Is(err, imaging.ErrInvalidImage) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to process snapshot", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	detections := make([]DetectionResponse, 0, len(result.Identities))
	for _, id := range result.Identities {
		detections = append(detections, DetectionResponse{
			X:        id.Box.X,
			Y:        id.Box.Y,
			W:        id.Box.W,
			H:        id.Box.H,
			Name:     id.Name,
			Distance: id.Distance,
		})
	}

	respondJSON(w, http.StatusOK, SnapshotResponse{
		Status:     constants.StatusSuccess,
		Detections: detections,
	})
}
