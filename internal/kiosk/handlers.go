package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vansh1056/ScanAndPay/internal/camera"
	"github.com/vansh1056/ScanAndPay/internal/document"
	"github.com/vansh1056/ScanAndPay/internal/history"
	"github.com/vansh1056/ScanAndPay/internal/printer"
	"github.com/vansh1056/ScanAndPay/internal/wizard"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Error  string `json:"error"`
	Remedy string `json:"remedy,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, errorResponse{Error: message})
}

// statusFor maps a domain error to an HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, wizard.ErrEmptyAddress),
		errors.Is(err, document.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrSessionClosed),
		errors.Is(err, history.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrWrongStep),
		errors.Is(err, wizard.ErrSubmissionInProgress),
		errors.Is(err, camera.ErrAcquireInProgress),
		errors.Is(err, camera.ErrReleased):
		return http.StatusConflict
	case errors.Is(err, document.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, printer.ErrPreconditionUnmet):
		return http.StatusUnprocessableEntity
	case errors.Is(err, camera.ErrCameraUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with the status code its kind maps to
func writeDomainError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if code == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		resp.Error = "Internal server error"
	}
	if errors.Is(err, camera.ErrCameraUnavailable) || errors.Is(err, camera.ErrAcquireInProgress) {
		resp.Remedy = camera.Remedy(err)
	}
	writeJSON(w, code, resp)
}

// session looks up the session named in the path, writing a 404 if it is gone
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*wizard.Session, bool) {
	session, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.store.Len(),
	})
}

// handleCreateSession starts a new wizard session
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := s.store.Create()
	writeJSON(w, http.StatusCreated, session.Snapshot())
}

// handleGetSession returns the session state
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// handleDeleteSession closes a session
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.store.Delete(r.PathValue("id")) {
		writeJSONError(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResetSession returns a session to its first step
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := session.Reset(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// scanRequest optionally narrows which camera is used
type scanRequest struct {
	DeviceID string        `json:"device_id"`
	Facing   camera.Facing `json:"facing"`
	Exact    bool          `json:"exact"`
	Width    uint32        `json:"width"`
	Height   uint32        `json:"height"`
}

// handleStartScan acquires the camera and starts decoding
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var preferred *camera.Constraints
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req != (scanRequest{}) {
		preferred = &camera.Constraints{
			DeviceID: req.DeviceID,
			Facing:   req.Facing,
			Exact:    req.Exact,
			Width:    req.Width,
			Height:   req.Height,
		}
	}

	if err := session.StartScan(r.Context(), preferred); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, session.Snapshot())
}

// handleStopScan stops any running scan
func (s *Server) handleStopScan(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	session.StopScan()
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// handleSubmitAddress accepts a typed printer address
func (s *Server) handleSubmitAddress(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := session.SubmitAddress(req.Address); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// handleUploadDocument stages an uploaded file
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large"
		}
		writeJSONError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeJSONError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, "Error reading file", http.StatusInternalServerError)
		return
	}

	doc, err := session.Stage(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		slog.Warn("Document rejected", "session", session.ID(), "filename", header.Filename, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// handleRemoveDocument drops a staged document by index
func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeJSONError(w, "Invalid document index", http.StatusBadRequest)
		return
	}
	if err := session.Remove(index); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// handleSubmit sends the staged documents to the printer
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	// a client that disconnects does not abort transfers already under way
	sub, err := session.Submit(context.WithoutCancel(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleListJobs returns the submission history
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListJobs()
	if err != nil {
		slog.Error("Error listing jobs", "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*history.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleGetJob returns a single job
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
