package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/synheart/synheart-monitor/internal/models"
)

type published struct {
	topic string
	data  []byte
}

type fakeNATS struct {
	msgs []published
	err  error
}

func (f *fakeNATS) Publish(subj string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subj, data})
	return nil
}

type fakeKafka struct {
	msgs       []*kafka.Message
	produceErr error
	deliverErr error
	closed     bool
}

func (f *fakeKafka) Produce(msg *kafka.Message, delivery chan kafka.Event) error {
	if f.produceErr != nil {
		return f.produceErr
	}
	f.msgs = append(f.msgs, msg)
	reply := *msg
	reply.TopicPartition.Error = f.deliverErr
	delivery <- &reply
	return nil
}

func (f *fakeKafka) Flush(int) int { return 0 }
func (f *fakeKafka) Close()        { f.closed = true }

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMQTT struct {
	msgs    []published
	handler mqtt.MessageHandler
	err     error
}

func (f *fakeMQTT) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.msgs = append(f.msgs, published{topic, payload.([]byte)})
	return newToken(f.err)
}

func (f *fakeMQTT) Subscribe(_ string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.handler = cb
	return newToken(nil)
}

func (f *fakeMQTT) Disconnect(uint) {}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeWard struct {
	calls map[string]string
}

func (w *fakeWard) SetRhythm(id, rhythmID string) (bool, error) {
	if rhythmID == "BOGUS" {
		return true, errors.New("unknown rhythm")
	}
	if id != "p1" {
		return false, nil
	}
	w.calls[id] = rhythmID
	return true, nil
}

var testAlert = models.Alert{ID: "a1", Message: "Heart Rate High: 190", Severity: models.SeverityCritical, Metric: models.MetricHeartRate}

func TestTopics(t *testing.T) {
	if got := NATSSubject("p1"); got != "monitor.alerts.p1" {
		t.Errorf("NATSSubject = %q", got)
	}
	if got := MQTTAlertTopic("p1"); got != "monitor/alerts/p1" {
		t.Errorf("MQTTAlertTopic = %q", got)
	}
}

func TestNATSSinkPublishesAlert(t *testing.T) {
	conn := &fakeNATS{}
	sink := &NATSSink{conn: conn, orgID: "org-1"}

	if err := sink.PublishAlert(context.Background(), "p1", testAlert); err != nil {
		t.Fatal(err)
	}
	if len(conn.msgs) != 1 || conn.msgs[0].topic != "monitor.alerts.p1" {
		t.Fatalf("unexpected publishes %+v", conn.msgs)
	}

	var msg AlertMessage
	if err := json.Unmarshal(conn.msgs[0].data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.OrgID != "org-1" || msg.PatientID != "p1" || msg.Alert.Message != testAlert.Message {
		t.Errorf("unexpected payload %+v", msg)
	}
}

func TestNATSSinkErrors(t *testing.T) {
	sink := &NATSSink{conn: &fakeNATS{err: errors.New("closed")}}
	if err := sink.PublishAlert(context.Background(), "p1", testAlert); err == nil {
		t.Error("expected publish error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink = &NATSSink{conn: &fakeNATS{}}
	if err := sink.PublishAlert(ctx, "p1", testAlert); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestKafkaSinkPublishesAlert(t *testing.T) {
	producer := &fakeKafka{}
	sink := &KafkaSink{producer: producer, topic: DefaultKafkaTopic, orgID: "org-1"}

	if err := sink.PublishAlert(context.Background(), "p1", testAlert); err != nil {
		t.Fatal(err)
	}
	if len(producer.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(producer.msgs))
	}
	msg := producer.msgs[0]
	if *msg.TopicPartition.Topic != "monitor.alerts" || string(msg.Key) != "p1" {
		t.Errorf("unexpected topic/key %s/%s", *msg.TopicPartition.Topic, msg.Key)
	}
	var payload AlertMessage
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.OrgID != "org-1" || payload.Alert.ID != "a1" {
		t.Errorf("unexpected payload %+v", payload)
	}

	sink.Close()
	if !producer.closed {
		t.Error("producer not closed")
	}
}

func TestKafkaSinkErrors(t *testing.T) {
	tests := []struct {
		name     string
		producer *fakeKafka
	}{
		{"produce rejected", &fakeKafka{produceErr: errors.New("queue full")}},
		{"delivery failed", &fakeKafka{deliverErr: kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &KafkaSink{producer: tt.producer, topic: DefaultKafkaTopic}
			if err := sink.PublishAlert(context.Background(), "p1", testAlert); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMQTTSinkPublishesAlert(t *testing.T) {
	client := &fakeMQTT{}
	sink := &MQTTSink{client: client, orgID: "org-1", log: zerolog.Nop()}

	if err := sink.PublishAlert(context.Background(), "p1", testAlert); err != nil {
		t.Fatal(err)
	}
	if len(client.msgs) != 1 || client.msgs[0].topic != "monitor/alerts/p1" {
		t.Fatalf("unexpected publishes %+v", client.msgs)
	}

	client.err = errors.New("not connected")
	if err := sink.PublishAlert(context.Background(), "p1", testAlert); err == nil {
		t.Error("expected publish error")
	}
}

func TestRhythmCommands(t *testing.T) {
	client := &fakeMQTT{}
	sink := &MQTTSink{client: client, log: zerolog.Nop()}
	ward := &fakeWard{calls: map[string]string{}}

	if err := sink.SubscribeRhythmCommands(ward); err != nil {
		t.Fatal(err)
	}

	client.handler(nil, fakeMessage{topic: "monitor/commands/p1/rhythm", payload: []byte(" VTACH \n")})
	client.handler(nil, fakeMessage{topic: "monitor/commands/p2/rhythm", payload: []byte("SVT")})
	client.handler(nil, fakeMessage{topic: "monitor/commands/p1/rhythm", payload: []byte("BOGUS")})
	client.handler(nil, fakeMessage{topic: "monitor/other", payload: []byte("SVT")})

	if len(ward.calls) != 1 || ward.calls["p1"] != "VTACH" {
		t.Errorf("unexpected rhythm calls %v", ward.calls)
	}
}

func TestPatientFromCommandTopic(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"monitor/commands/p1/rhythm", "p1", true},
		{"monitor/commands//rhythm", "", false},
		{"monitor/commands/p1/pacer", "", false},
		{"monitor/alerts/p1", "", false},
	}
	for _, tt := range tests {
		got, ok := patientFromCommandTopic(tt.topic)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("patientFromCommandTopic(%q) = %q, %v", tt.topic, got, ok)
		}
	}
}
