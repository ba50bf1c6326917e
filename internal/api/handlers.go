package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dreamware/premia/internal/records"
)

// Fixed messages for failed operations; the cause is only logged
const (
	msgFetchPredictions  = "Failed to fetch predictions"
	msgSavePrediction    = "Failed to save prediction"
	msgDeletePredictions = "Failed to delete predictions"
	msgFetchProfile      = "Failed to fetch profile"
	msgUpdateProfile     = "Failed to update profile"
	msgFetchStats        = "Failed to fetch stats"
)

type statusResponse struct {
	Status string `json:"status"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type predictionsResponse struct {
	Predictions []json.RawMessage `json:"predictions"`
}

// profileResponse encodes a nil Profile as null
type profileResponse struct {
	Profile json.RawMessage `json:"profile"`
}

// handleHealth is liveness only: it never touches storage
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// handleReady reports the last storage probe
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready == nil || s.ready.IsHealthy() {
		writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
		return
	}
	report := s.ready.Report()
	writeJSON(w, http.StatusServiceUnavailable, struct {
		Status string `json:"status"`
		Probe  string `json:"probe"`
		Fails  int    `json:"consecutive_fails"`
	}{Status: "unavailable", Probe: report.Status, Fails: report.ConsecutiveFails})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, err, msgFetchStats)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	predictions, err := s.records.ListPredictions(r.Context(), r.PathValue("userId"))
	if err != nil {
		s.fail(w, r, err, msgFetchPredictions)
		return
	}
	writeJSON(w, http.StatusOK, predictionsResponse{Predictions: predictions})
}

func (s *Server) handleSavePrediction(w http.ResponseWriter, r *http.Request) {
	var doc *json.RawMessage
	if err := decodeBody(w, r, &doc); err != nil {
		s.fail(w, r, err, msgSavePrediction)
		return
	}
	if err := s.records.SavePrediction(r.Context(), r.PathValue("userId"), *doc); err != nil {
		s.fail(w, r, err, msgSavePrediction)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleClearPredictions(w http.ResponseWriter, r *http.Request) {
	if _, err := s.records.ClearPredictions(r.Context(), r.PathValue("userId")); err != nil {
		s.fail(w, r, err, msgDeletePredictions)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.records.GetProfile(r.Context(), r.PathValue("userId"))
	if err != nil {
		s.fail(w, r, err, msgFetchProfile)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: profile})
}

func (s *Server) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	var doc *json.RawMessage
	if err := decodeBody(w, r, &doc); err != nil {
		s.fail(w, r, err, msgUpdateProfile)
		return
	}
	if err := s.records.SetProfile(r.Context(), r.PathValue("userId"), *doc); err != nil {
		s.fail(w, r, err, msgUpdateProfile)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// fail maps err to a response: malformed input is the caller's fault (400),
// everything else is reported with the operation's fixed message (500)
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, records.ErrMalformedInput) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.log.WithError(err).WithField("path", r.URL.Path).Error(msg)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msg})
}

// decodeBody reads exactly one non-null JSON document into dst (a pointer to a pointer)
func decodeBody[T any](w http.ResponseWriter, r *http.Request, dst **T) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", records.ErrMalformedInput, tooLarge.Limit)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", records.ErrMalformedInput, err)
	}
	if *dst == nil {
		return fmt.Errorf("%w: body must be a JSON object", records.ErrMalformedInput)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: unexpected data after JSON body", records.ErrMalformedInput)
	}
	return nil
}

// writeJSON leaves <, > and & unescaped so stored documents come back as saved
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
