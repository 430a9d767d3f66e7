package api

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/rhythm"
)

const maxBodyBytes = 1 << 20

// DeviceConnectRequest is sent by a simulated bedside device
type DeviceConnectRequest struct {
	DeviceID string             `json:"deviceId"`
	Patient  models.PatientData `json:"patient"`
}

// PatientResponse wraps a patient returned from a create call
type PatientResponse struct {
	Patient   models.Patient `json:"patient"`
	Duplicate bool           `json:"duplicate"`
}

// RhythmInfo describes one catalog entry
type RhythmInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MinRate  int    `json:"minRate"`
	MaxRate  int    `json:"maxRate"`
	IsLethal bool   `json:"isLethal"`
}

type rhythmRequest struct {
	RhythmID string `json:"rhythmId"`
}

type noiseRequest struct {
	Tags []string `json:"tags"`
}

type acknowledgeRequest struct {
	Severity *models.Severity `json:"severity,omitempty"`
}

type feedbackRequest struct {
	Label    models.FeedbackLabel `json:"label"`
	Severity models.Severity      `json:"severity"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"service":  "synheart-monitor",
		"version":  "1.0.0",
		"endpoint": "/v1/patients",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"patients": len(s.ward.Patients()),
	})
}

func (s *Server) handleRhythms(w http.ResponseWriter, r *http.Request) {
	defs := rhythm.All()
	out := make([]RhythmInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, RhythmInfo{ID: d.ID, Name: d.Name, MinRate: d.MinRate, MaxRate: d.MaxRate, IsLethal: d.IsLethal})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"patients": s.ward.Patients(),
		"selected": s.ward.SelectedPatientID(),
	})
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"selected": s.ward.SelectedPatientID()})
}

func (s *Server) handleAddPatient(w http.ResponseWriter, r *http.Request) {
	var data models.PatientData
	if !s.decode(w, r, &data) {
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		// lookup, add and mark must not interleave for the same key
		s.createMu.Lock()
		defer s.createMu.Unlock()
		if id, ok := s.idempotent.Lookup(key); ok {
			if p, found := s.ward.Patient(id); found {
				s.mu.Lock()
				s.stats.IdempotentReplays++
				s.mu.Unlock()
				s.writeJSON(w, http.StatusOK, PatientResponse{Patient: p, Duplicate: true})
				return
			}
		}
	}

	// device ids are only assigned through /devices/connect
	data.DeviceID = ""
	p := s.ward.AddPatient(data, models.SourceManual)
	if key != "" {
		s.idempotent.Mark(key, p.ID)
	}
	s.writeJSON(w, http.StatusCreated, PatientResponse{Patient: p})
}

func (s *Server) handleDeviceConnect(w http.ResponseWriter, r *http.Request) {
	var req DeviceConnectRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DeviceID == "" {
		s.writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}

	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	if p, ok := s.ward.PatientByDevice(req.DeviceID); ok {
		s.mu.Lock()
		s.stats.DeviceReconnects++
		s.mu.Unlock()
		s.writeJSON(w, http.StatusOK, PatientResponse{Patient: p, Duplicate: true})
		return
	}

	data := req.Patient
	data.DeviceID = req.DeviceID
	p := s.ward.AddPatient(data, models.SourceDevice)

	s.mu.Lock()
	s.stats.DevicesConnected++
	s.mu.Unlock()
	s.log.Info().Str("device_id", req.DeviceID).Str("patient_id", p.ID).Msg("device connected")
	s.writeJSON(w, http.StatusCreated, PatientResponse{Patient: p})
}

func (s *Server) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ward.Patient(chi.URLParam(r, "id"))
	if !ok {
		s.notFound(w)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, ok := s.ward.State(chi.URLParam(r, "id"))
	if !ok {
		s.notFound(w)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	var update models.PatientUpdate
	if !s.decode(w, r, &update) {
		return
	}
	id := chi.URLParam(r, "id")
	if !s.ward.UpdatePatientDetails(id, update) {
		s.notFound(w)
		return
	}
	s.writePatient(w, id)
}

func (s *Server) handleDeletePatient(w http.ResponseWriter, r *http.Request) {
	if !s.ward.DeletePatient(chi.URLParam(r, "id")) {
		s.notFound(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if !s.ward.SelectPatient(chi.URLParam(r, "id")) {
		s.notFound(w)
		return
	}
	s.handleGetSelection(w, r)
}

func (s *Server) handleSetRhythm(w http.ResponseWriter, r *http.Request) {
	var req rhythmRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	found, err := s.ward.SetRhythm(id, req.RhythmID)
	if errors.Is(err, rhythm.ErrUnknownRhythm) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		s.notFound(w)
		return
	}
	s.writePatient(w, id)
}

func (s *Server) handleUpdatePacer(w http.ResponseWriter, r *http.Request) {
	var update models.PacerUpdate
	if !s.decode(w, r, &update) {
		return
	}
	if update.Mode != nil && *update.Mode != models.PacerOff && *update.Mode != models.PacerDemand {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown pacer mode %q", *update.Mode))
		return
	}
	if update.Rate != nil && *update.Rate <= 0 {
		s.writeError(w, http.StatusBadRequest, "pacer rate must be positive")
		return
	}
	id := chi.URLParam(r, "id")
	if !s.ward.UpdatePacerSettings(id, update) {
		s.notFound(w)
		return
	}
	s.writePatient(w, id)
}

func (s *Server) handleUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	var overrides map[string]models.ThresholdOverride
	if !s.decode(w, r, &overrides) {
		return
	}
	id := chi.URLParam(r, "id")
	if !s.ward.UpdateThresholds(id, overrides) {
		s.notFound(w)
		return
	}
	s.writePatient(w, id)
}

func (s *Server) handleUpdateNoise(w http.ResponseWriter, r *http.Request) {
	var req noiseRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if !s.ward.UpdateNoiseSignatures(id, req.Tags) {
		s.notFound(w)
		return
	}
	s.writePatient(w, id)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	if req.Severity != nil && !validSeverity(*req.Severity) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown severity %q", *req.Severity))
		return
	}
	id := chi.URLParam(r, "id")
	if !s.ward.AcknowledgeAlerts(id, req.Severity) {
		s.notFound(w)
		return
	}
	s.writeState(w, id)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Label != models.FeedbackTruePositive && req.Label != models.FeedbackFalsePositive {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown feedback label %q", req.Label))
		return
	}
	if !validSeverity(req.Severity) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown severity %q", req.Severity))
		return
	}
	id := chi.URLParam(r, "id")
	if !s.ward.ProvideAlarmFeedback(id, req.Label, req.Severity) {
		s.notFound(w)
		return
	}
	s.writeState(w, id)
}

func (s *Server) handleToggleLeadOff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.ward.ToggleEcgLeadOff(id) {
		s.notFound(w)
		return
	}
	s.writeState(w, id)
}

func (s *Server) writePatient(w http.ResponseWriter, id string) {
	p, ok := s.ward.Patient(id)
	if !ok {
		s.notFound(w)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) writeState(w http.ResponseWriter, id string) {
	st, ok := s.ward.State(id)
	if !ok {
		s.notFound(w)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) notFound(w http.ResponseWriter) {
	s.writeError(w, http.StatusNotFound, "patient not found")
}

func validSeverity(sev models.Severity) bool {
	return sev == models.SeverityWarning || sev == models.SeverityCritical
}

// decode reads a JSON body (gzip accepted) into v, writing a 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	var reader io.Reader = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if r.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		defer gzReader.Close()
		reader = io.LimitReader(gzReader, maxBodyBytes)
	}

	return io.ReadAll(reader)
}
