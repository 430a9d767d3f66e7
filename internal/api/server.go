// Package api exposes the monitor's operations over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/monitor"
)

// Ward is the subset of the orchestrator the API drives
type Ward interface {
	AddPatient(data models.PatientData, source models.Source) models.Patient
	DeletePatient(id string) bool
	SelectPatient(id string) bool
	UpdatePatientDetails(id string, update models.PatientUpdate) bool
	UpdateNoiseSignatures(id string, tags []string) bool
	UpdateThresholds(id string, overrides map[string]models.ThresholdOverride) bool
	UpdatePacerSettings(id string, update models.PacerUpdate) bool
	SetRhythm(id, rhythmID string) (bool, error)
	AcknowledgeAlerts(id string, severity *models.Severity) bool
	ProvideAlarmFeedback(id string, label models.FeedbackLabel, severity models.Severity) bool
	ToggleEcgLeadOff(id string) bool

	Patients() []models.Patient
	Patient(id string) (models.Patient, bool)
	PatientByDevice(deviceID string) (models.Patient, bool)
	SelectedPatientID() string
	State(id string) (monitor.Snapshot, bool)
}

// Config holds the API server configuration
type Config struct {
	Host string
	Port int
	// Auth wraps every /v1 route when set
	Auth func(http.Handler) http.Handler
}

// Server is the HTTP control API server
type Server struct {
	config     Config
	ward       Ward
	idempotent *IdempotencyStore
	createMu   sync.Mutex // keyed patient creates
	connectMu  sync.Mutex
	server     *http.Server
	log        zerolog.Logger
	mu         sync.RWMutex
	stats      Stats
}

// Stats holds server statistics
type Stats struct {
	Requests          int
	DevicesConnected  int
	DeviceReconnects  int
	IdempotentReplays int
	Errors            int
}

// NewServer creates a new API server
func NewServer(config Config, ward Ward, logger zerolog.Logger) *Server {
	return &Server{
		config:     config,
		ward:       ward,
		idempotent: NewIdempotencyStore(IdempotencyTTL),
		log:        logger.With().Str("component", "api").Logger(),
	}
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.Address(),
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Address returns the listen address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// GetStats returns current server statistics
func (s *Server) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleRoot)

	r.Route("/v1", func(r chi.Router) {
		if s.config.Auth != nil {
			r.Use(s.config.Auth)
		}

		r.Get("/rhythms", s.handleRhythms)
		r.Post("/devices/connect", s.handleDeviceConnect)

		r.Get("/patients", s.handleListPatients)
		r.Post("/patients", s.handleAddPatient)
		r.Get("/selection", s.handleGetSelection)

		r.Route("/patients/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetPatient)
			r.Patch("/", s.handleUpdateDetails)
			r.Delete("/", s.handleDeletePatient)
			r.Get("/state", s.handleGetState)
			r.Post("/select", s.handleSelect)
			r.Put("/rhythm", s.handleSetRhythm)
			r.Put("/pacer", s.handleUpdatePacer)
			r.Put("/thresholds", s.handleUpdateThresholds)
			r.Put("/noise-signatures", s.handleUpdateNoise)
			r.Post("/alerts/acknowledge", s.handleAcknowledge)
			r.Post("/alerts/feedback", s.handleFeedback)
			r.Post("/lead-off/toggle", s.handleToggleLeadOff)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.mu.Lock()
		s.stats.Requests++
		if ww.Status() >= http.StatusBadRequest {
			s.stats.Errors++
		}
		s.mu.Unlock()

		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("latency", time.Since(start)).
			Str("remote_ip", r.RemoteAddr).
			Msg("request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
