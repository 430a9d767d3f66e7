// Package bus publishes monitor alerts to message brokers.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/synheart/synheart-monitor/internal/models"
)

// AlertMessage is the payload published for every newly raised alert
type AlertMessage struct {
	OrgID     string       `json:"org_id"`
	PatientID string       `json:"patient_id"`
	Alert     models.Alert `json:"alert"`
	SentAt    time.Time    `json:"sent_at"`
}

func encodeAlert(orgID, patientID string, alert models.Alert) ([]byte, error) {
	data, err := json.Marshal(AlertMessage{
		OrgID:     orgID,
		PatientID: patientID,
		Alert:     alert,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode alert: %w", err)
	}
	return data, nil
}
