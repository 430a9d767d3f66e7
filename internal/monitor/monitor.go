// Package monitor owns the patient registry and per-patient simulation state
// and drives both simulation loops.
package monitor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/synheart/synheart-monitor/internal/alerting"
	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/rhythm"
	"github.com/synheart/synheart-monitor/internal/simulation"
)

// Analyzer scores a patient's risk from simulated data. It may take seconds to answer.
type Analyzer interface {
	Analyze(ctx context.Context, patient models.Patient, input models.AnalysisInput) (models.RiskAssessment, error)
}

// Persister stores the exported state after mutations
type Persister interface {
	Save(ctx context.Context, state models.PersistedState) error
}

// AlertSink receives every newly raised alert
type AlertSink interface {
	PublishAlert(ctx context.Context, patientID string, alert models.Alert) error
}

// Config holds monitor dependencies. Zero values select defaults.
type Config struct {
	Seed      int64
	Rand      *rand.Rand
	Now       func() time.Time
	Analyzer  Analyzer
	Persister Persister
	Sinks     []AlertSink
	Logger    zerolog.Logger
}

type completion struct {
	patientID  string
	assessment models.RiskAssessment
	err        error
}

type raisedAlert struct {
	patientID string
	alert     models.Alert
}

type analysisJob struct {
	patient models.Patient
	input   models.AnalysisInput
}

// Monitor is the simulation orchestrator. Every exported method is safe for
// concurrent use; ticks and operations are serialized by one mutex.
type Monitor struct {
	mu       sync.Mutex
	patients []models.Patient
	states   map[string]*simulation.State
	selected string

	rng       *rand.Rand
	advancer  *simulation.Advancer
	evaluator *simulation.Evaluator
	alerts    *alerting.Engine
	now       func() time.Time
	newID     func() string

	analyzer    Analyzer
	persister   Persister
	sinks       []AlertSink
	outbox      chan raisedAlert
	completions chan completion
	dirty       chan struct{}

	log       zerolog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an empty monitor
func New(cfg Config) *Monitor {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	engine := alerting.NewEngine()

	return &Monitor{
		states:      make(map[string]*simulation.State),
		rng:         rng,
		advancer:    simulation.NewAdvancer(rng),
		evaluator:   simulation.NewEvaluator(rng, engine),
		alerts:      engine,
		now:         now,
		newID:       func() string { return uuid.New().String() },
		analyzer:    cfg.Analyzer,
		persister:   cfg.Persister,
		sinks:       cfg.Sinks,
		outbox:      make(chan raisedAlert, 256),
		completions: make(chan completion, 64),
		dirty:       make(chan struct{}, 1),
		log:         cfg.Logger.With().Str("component", "monitor").Logger(),
		done:        make(chan struct{}),
	}
}

// Run drives the waveform and vitals loops until ctx is cancelled or Close is called
func (m *Monitor) Run(ctx context.Context) error {
	wave := time.NewTicker(simulation.TickInterval)
	defer wave.Stop()
	vitals := time.NewTicker(simulation.VitalsInterval)
	defer vitals.Stop()

	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		m.persistLoop(ctx)
	}()
	defer func() { <-persistDone }()

	publishDone := make(chan struct{})
	go func() {
		defer close(publishDone)
		m.publishLoop(ctx)
	}()
	defer func() { <-publishDone }()

	m.log.Info().Int("patients", len(m.Patients())).Msg("simulation started")

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("simulation stopped")
			return ctx.Err()
		case <-m.done:
			m.log.Info().Msg("simulation closed")
			return nil
		case <-wave.C:
			m.TickWaveforms()
		case <-vitals.C:
			m.TickVitals(ctx)
		case c := <-m.completions:
			m.applyAnalysis(c)
		}
	}
}

// Close stops both loops. In-flight analyses are abandoned.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// TickWaveforms advances every live patient by one 25 ms sample
func (m *Monitor) TickWaveforms() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, p := range m.patients {
		st, ok := m.states[p.ID]
		if !ok {
			continue
		}
		def, err := rhythm.Lookup(p.RhythmID)
		if err != nil {
			continue
		}
		m.states[p.ID] = m.advancer.Advance(st, def, p.Pacer, now)
	}
}

// TickVitals runs the 1 s evaluator for every live patient, publishes new
// alerts and launches any analysis that has come due
func (m *Monitor) TickVitals(ctx context.Context) {
	m.mu.Lock()
	now := m.now()
	var (
		raised []raisedAlert
		jobs   []analysisJob
		logged bool
	)
	for _, p := range m.patients {
		st, ok := m.states[p.ID]
		if !ok {
			continue
		}
		def, err := rhythm.Lookup(p.RhythmID)
		if err != nil {
			continue
		}
		res := m.evaluator.Evaluate(st, def, p.Thresholds, now)
		if res.AnalysisDue && m.analyzer == nil {
			res.State.AI.IsLoading = false
			res.AnalysisDue = false
		}
		m.states[p.ID] = res.State

		for _, a := range res.Raised {
			raised = append(raised, raisedAlert{patientID: p.ID, alert: a})
		}
		if res.AnalysisDue {
			jobs = append(jobs, analysisJob{patient: p.Clone(), input: analysisInput(res.State, def)})
		}
		logged = logged || res.Logged
	}
	m.mu.Unlock()

	for _, r := range raised {
		m.log.Warn().
			Str("patient_id", r.patientID).
			Str("severity", string(r.alert.Severity)).
			Str("alert", r.alert.Message).
			Msg("alert raised")
	}
	m.publish(raised)
	for _, job := range jobs {
		m.launchAnalysis(ctx, job)
	}
	if logged || len(raised) > 0 {
		m.markDirty()
	}
}

func analysisInput(s *simulation.State, def rhythm.Definition) models.AnalysisInput {
	return models.AnalysisInput{
		RhythmID:     def.ID,
		IsLethal:     def.IsLethal,
		Metrics:      s.Metrics,
		LoggedVitals: append([]models.VitalsEntry(nil), s.LoggedVitals...),
		ActiveAlerts: append([]models.Alert(nil), s.Alerts...),
		Unacked:      len(s.Unacknowledged()),
		IsLeadOff:    s.IsLeadOff,
	}
}

// launchAnalysis runs the analyzer in its own goroutine and posts the result
// to the completion queue drained by Run
func (m *Monitor) launchAnalysis(ctx context.Context, job analysisJob) {
	m.log.Debug().Str("patient_id", job.patient.ID).Msg("risk analysis started")
	go func() {
		assessment, err := m.analyzer.Analyze(ctx, job.patient, job.input)
		select {
		case m.completions <- completion{patientID: job.patient.ID, assessment: assessment, err: err}:
		case <-ctx.Done():
		case <-m.done:
		}
	}()
}

// applyAnalysis merges a finished analysis into the patient's current state.
// Results for patients deleted in the meantime are dropped.
func (m *Monitor) applyAnalysis(c completion) {
	m.mu.Lock()
	st, ok := m.states[c.patientID]
	if !ok {
		m.mu.Unlock()
		m.log.Debug().Str("patient_id", c.patientID).Msg("dropping analysis for removed patient")
		return
	}

	next := st.Clone()
	next.AI.IsLoading = false
	next.AI.LastAnalyzed = m.now()
	if c.err != nil {
		next.AI.Assessment = &models.RiskAssessment{
			RiskLevel: models.RiskError,
			Reasoning: c.err.Error(),
		}
		next.AI.Error = c.err.Error()
	} else {
		a := c.assessment
		next.AI.Assessment = &a
		next.AI.Error = ""
	}
	m.states[c.patientID] = next
	m.mu.Unlock()

	if c.err != nil {
		m.log.Error().Err(c.err).Str("patient_id", c.patientID).Msg("risk analysis failed")
	} else {
		m.log.Info().
			Str("patient_id", c.patientID).
			Str("level", string(c.assessment.RiskLevel)).
			Int("score", c.assessment.RiskScore).
			Msg("risk analysis complete")
	}
	m.markDirty()
}

// publish queues alerts for the sinks without blocking the caller
func (m *Monitor) publish(raised []raisedAlert) {
	if len(m.sinks) == 0 {
		return
	}
	for _, r := range raised {
		select {
		case m.outbox <- r:
		default:
			m.log.Warn().Str("patient_id", r.patientID).Str("alert", r.alert.Message).Msg("alert outbox full, not published")
		}
	}
}

// publishLoop delivers queued alerts to every sink, in order
func (m *Monitor) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case r := <-m.outbox:
			m.deliver(ctx, r)
		}
	}
}

func (m *Monitor) deliver(ctx context.Context, r raisedAlert) {
	for _, sink := range m.sinks {
		if err := sink.PublishAlert(ctx, r.patientID, r.alert); err != nil {
			m.log.Error().Err(err).Str("patient_id", r.patientID).Msg("alert publish failed")
		}
	}
}

func (m *Monitor) markDirty() {
	if m.persister == nil {
		return
	}
	select {
	case m.dirty <- struct{}{}:
	default:
	}
}

// persistLoop coalesces mutations into saves; a pending save is flushed on shutdown
func (m *Monitor) persistLoop(ctx context.Context) {
	if m.persister == nil {
		return
	}
	for {
		select {
		case <-m.dirty:
			m.save(ctx)
		case <-ctx.Done():
			m.flushPending()
			return
		case <-m.done:
			m.flushPending()
			return
		}
	}
}

func (m *Monitor) flushPending() {
	select {
	case <-m.dirty:
		m.save(context.Background())
	default:
	}
}

func (m *Monitor) save(ctx context.Context) {
	if err := m.persister.Save(ctx, m.Export()); err != nil {
		m.log.Error().Err(err).Msg("failed to persist state")
	}
}

// Flush saves the current state immediately
func (m *Monitor) Flush(ctx context.Context) error {
	if m.persister == nil {
		return nil
	}
	return m.persister.Save(ctx, m.Export())
}
