// Package store persists per-organization monitor state in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/rhythm"
)

// Fallback produces the patient set used when an organization has no usable snapshot
type Fallback func() models.PersistedState

// Repository is a SQLite-backed snapshot and organization store
type Repository struct {
	db       *sql.DB
	fallback Fallback
	log      zerolog.Logger
}

// NewRepository opens (creating if needed) the database at dbPath
func NewRepository(dbPath string, fallback Fallback, logger zerolog.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)

	if fallback == nil {
		fallback = func() models.PersistedState { return models.PersistedState{} }
	}
	repo := &Repository{
		db:       db,
		fallback: fallback,
		log:      logger.With().Str("component", "store").Logger(),
	}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

func (r *Repository) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS organizations (
        org_id TEXT PRIMARY KEY,
        passcode_hash TEXT NOT NULL,
        created_at TEXT NOT NULL
    );
    CREATE TABLE IF NOT EXISTS snapshots (
        org_id TEXT PRIMARY KEY,
        data TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );`
	_, err := r.db.Exec(schema)
	return err
}

// Load returns the organization's snapshot. A missing, unparsable or invalid
// snapshot yields the fallback state and found=false.
func (r *Repository) Load(ctx context.Context, orgID string) (models.PersistedState, bool, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE org_id = ?`, orgID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return r.fallback(), false, nil
	}
	if err != nil {
		return models.PersistedState{}, false, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var state models.PersistedState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		r.log.Warn().Err(err).Str("org_id", orgID).Msg("stored snapshot is unparsable, using default ward")
		return r.fallback(), false, nil
	}
	if err := state.Validate(); err != nil {
		r.log.Warn().Err(err).Str("org_id", orgID).Msg("stored snapshot is invalid, using default ward")
		return r.fallback(), false, nil
	}
	for _, p := range state.Patients {
		if !rhythm.Valid(p.RhythmID) {
			r.log.Warn().Str("org_id", orgID).Str("patient_id", p.ID).Str("rhythm", p.RhythmID).Msg("stored snapshot has an unknown rhythm, using default ward")
			return r.fallback(), false, nil
		}
	}
	for id, d := range state.PerPatientData {
		d.AIState.IsLoading = false
		d.AIState.Error = ""
		state.PerPatientData[id] = d
	}
	return state, true, nil
}

// Save replaces the organization's snapshot
func (r *Repository) Save(ctx context.Context, orgID string, state models.PersistedState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	query := `INSERT OR REPLACE INTO snapshots (org_id, data, updated_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, orgID, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Delete drops the organization's snapshot
func (r *Repository) Delete(ctx context.Context, orgID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE org_id = ?`, orgID)
	return err
}

// ForOrg binds the repository to one organization
func (r *Repository) ForOrg(orgID string) *OrgStore {
	return &OrgStore{repo: r, orgID: orgID}
}

// Close closes the database
func (r *Repository) Close() error {
	return r.db.Close()
}

// OrgStore saves snapshots for a single organization
type OrgStore struct {
	repo  *Repository
	orgID string
}

// Save stores state under the bound organization
func (s *OrgStore) Save(ctx context.Context, state models.PersistedState) error {
	return s.repo.Save(ctx, s.orgID, state)
}

// Load reads the bound organization's snapshot
func (s *OrgStore) Load(ctx context.Context) (models.PersistedState, bool, error) {
	return s.repo.Load(ctx, s.orgID)
}
