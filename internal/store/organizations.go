package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrOrganizationNotFound is returned for an unknown organization id
var ErrOrganizationNotFound = errors.New("organization not found")

// UpsertOrganization stores the bcrypt hash of an organization's passcode
func (r *Repository) UpsertOrganization(ctx context.Context, orgID, passcodeHash string) error {
	query := `INSERT INTO organizations (org_id, passcode_hash, created_at) VALUES (?, ?, ?)
        ON CONFLICT(org_id) DO UPDATE SET passcode_hash = excluded.passcode_hash`
	if _, err := r.db.ExecContext(ctx, query, orgID, passcodeHash, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to store organization: %w", err)
	}
	return nil
}

// PasscodeHash returns the stored hash for orgID
func (r *Repository) PasscodeHash(ctx context.Context, orgID string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT passcode_hash FROM organizations WHERE org_id = ?`, orgID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrOrganizationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read organization: %w", err)
	}
	return hash, nil
}
