package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/synheart/synheart-monitor/internal/models"
)

const (
	// MQTTAlertPrefix prefixes the per-patient alert topic
	MQTTAlertPrefix = "monitor/alerts/"
	// MQTTRhythmTopic carries rhythm commands; the wildcard is the patient id
	MQTTRhythmTopic = "monitor/commands/+/rhythm"

	publishTimeout = 5 * time.Second
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// RhythmSetter receives rhythm commands arriving over MQTT
type RhythmSetter interface {
	SetRhythm(id, rhythmID string) (bool, error)
}

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes alerts on monitor/alerts/<patient>
type MQTTSink struct {
	client mqttClient
	orgID  string
	log    zerolog.Logger
}

// MQTTOptions configures the broker connection
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	OrgID    string
}

// ConnectMQTT connects to the broker
func ConnectMQTT(opts MQTTOptions, logger zerolog.Logger) (*MQTTSink, error) {
	log := logger.With().Str("component", "mqtt").Logger()

	o := mqtt.NewClientOptions()
	o.AddBroker(opts.Broker)
	o.SetClientID(opts.ClientID)
	o.SetUsername(opts.Username)
	o.SetPassword(opts.Password)
	o.SetAutoReconnect(true)
	o.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", opts.Broker).Msg("connected to MQTT broker")
	}
	o.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(o)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &MQTTSink{client: client, orgID: opts.OrgID, log: log}, nil
}

// MQTTAlertTopic returns the topic alerts for patientID are published on
func MQTTAlertTopic(patientID string) string {
	return MQTTAlertPrefix + patientID
}

// PublishAlert implements monitor.AlertSink
func (s *MQTTSink) PublishAlert(ctx context.Context, patientID string, alert models.Alert) error {
	data, err := encodeAlert(s.orgID, patientID, alert)
	if err != nil {
		return err
	}
	token := s.client.Publish(MQTTAlertTopic(patientID), 1, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish alert to MQTT: %w", err)
	}
	return nil
}

// SubscribeRhythmCommands routes monitor/commands/<patient>/rhythm payloads
// to ward.SetRhythm
func (s *MQTTSink) SubscribeRhythmCommands(ward RhythmSetter) error {
	token := s.client.Subscribe(MQTTRhythmTopic, 1, s.rhythmHandler(ward))
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", MQTTRhythmTopic, err)
	}
	s.log.Info().Str("topic", MQTTRhythmTopic).Msg("subscribed to rhythm commands")
	return nil
}

func (s *MQTTSink) rhythmHandler(ward RhythmSetter) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		patientID, ok := patientFromCommandTopic(msg.Topic())
		if !ok {
			s.log.Warn().Str("topic", msg.Topic()).Msg("unrecognized command topic")
			return
		}
		rhythmID := strings.TrimSpace(string(msg.Payload()))
		found, err := ward.SetRhythm(patientID, rhythmID)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("patient_id", patientID).Str("rhythm", rhythmID).Msg("rhythm command rejected")
		case !found:
			s.log.Debug().Str("patient_id", patientID).Msg("rhythm command for unknown patient")
		default:
			s.log.Info().Str("patient_id", patientID).Str("rhythm", rhythmID).Msg("rhythm set over MQTT")
		}
	}
}

func patientFromCommandTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "monitor" || parts[1] != "commands" || parts[3] != "rhythm" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// Close disconnects from the broker
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
