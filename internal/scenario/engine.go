package scenario

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Ward is the part of the monitor a scenario script drives
type Ward interface {
	SetRhythm(id, rhythmID string) (bool, error)
	ToggleEcgLeadOff(id string) bool
}

// Engine executes a scenario and tracks progression through phases
type Engine struct {
	scenario  *Scenario
	startTime time.Time
	now       func() time.Time
	applied   int
	log       zerolog.Logger
	mu        sync.RWMutex
}

// NewEngine creates a new scenario engine
func NewEngine(scenario *Scenario, logger zerolog.Logger) *Engine {
	return &Engine{
		scenario:  scenario,
		startTime: time.Now(),
		now:       time.Now,
		applied:   -1,
		log:       logger.With().Str("component", "scenario").Str("scenario", scenario.Name).Logger(),
	}
}

// GetElapsed returns the time elapsed since scenario start
func (e *Engine) GetElapsed() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.now().Sub(e.startTime)
}

// GetCurrentPhase returns the current phase based on elapsed time
func (e *Engine) GetCurrentPhase() *Phase {
	return e.scenario.getCurrentPhase(e.GetElapsed())
}

// IsComplete returns true if the scenario has finished
func (e *Engine) IsComplete() bool {
	duration, unlimited := ParseDuration(e.scenario.Duration)
	if unlimited {
		return false
	}
	return e.GetElapsed() >= duration
}

// GetScenario returns the underlying scenario
func (e *Engine) GetScenario() *Scenario {
	return e.scenario
}

// Reset restarts the script from its first phase
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startTime = e.now()
	e.applied = -1
}

// Step applies the current phase to the ward if it has not been applied yet.
// ids maps roster keys to registry ids. It reports whether a phase was entered.
func (e *Engine) Step(ward Ward, ids map[string]string) bool {
	elapsed := e.GetElapsed()
	idx := e.scenario.phaseIndex(elapsed)

	e.mu.Lock()
	if idx < 0 || idx == e.applied {
		e.mu.Unlock()
		return false
	}
	e.applied = idx
	e.mu.Unlock()

	phase := e.scenario.Phases[idx]
	e.log.Info().Str("phase", phase.Name).Dur("elapsed", elapsed).Msg("entering phase")

	for key, rhythmID := range phase.Rhythms {
		id, ok := ids[key]
		if !ok {
			continue
		}
		if _, err := ward.SetRhythm(id, rhythmID); err != nil {
			e.log.Error().Err(err).Str("patient", key).Msg("failed to apply scripted rhythm")
		}
	}
	for _, key := range phase.LeadOff {
		if id, ok := ids[key]; ok {
			ward.ToggleEcgLeadOff(id)
		}
	}
	return true
}

// Run steps the script on every tick until the scenario completes or ctx is done
func (e *Engine) Run(ctx context.Context, ticker *time.Ticker, ward Ward, ids map[string]string) error {
	e.Step(ward, ids)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if e.IsComplete() {
				e.log.Info().Msg("scenario complete")
				return nil
			}
			e.Step(ward, ids)
		}
	}
}
