package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/synheart/synheart-monitor/internal/models"
)

// NATSSubjectPrefix prefixes the per-patient alert subject
const NATSSubjectPrefix = "monitor.alerts."

type natsPublisher interface {
	Publish(subj string, data []byte) error
}

// NATSSink publishes alerts on monitor.alerts.<patient>
type NATSSink struct {
	conn  natsPublisher
	close func()
	orgID string
}

// ConnectNATS dials url and returns a sink bound to orgID
func ConnectNATS(url, orgID string) (*NATSSink, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("synheart-monitor"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{conn: nc, close: nc.Close, orgID: orgID}, nil
}

// NATSSubject returns the subject alerts for patientID are published on
func NATSSubject(patientID string) string {
	return NATSSubjectPrefix + patientID
}

// PublishAlert implements monitor.AlertSink
func (s *NATSSink) PublishAlert(ctx context.Context, patientID string, alert models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeAlert(s.orgID, patientID, alert)
	if err != nil {
		return err
	}
	if err := s.conn.Publish(NATSSubject(patientID), data); err != nil {
		return fmt.Errorf("failed to publish alert to NATS: %w", err)
	}
	return nil
}

// Close closes the NATS connection
func (s *NATSSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
