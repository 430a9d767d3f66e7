package encoding

import (
	"encoding/json"
	"testing"

	"github.com/synheart/synheart-monitor/internal/models"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func testFrame() models.Frame {
	f := models.NewFrame("frame-1", "p1", 7)
	f.RhythmID = "SVT"
	f.Metrics = models.Metrics{HeartRate: 180, Systolic: 110, Diastolic: 70, SpO2: 95, Temperature: 37.1, RespiratoryRate: 20}
	f.ECG = []models.Sample{{Index: 100, Value: 0.1}, {Index: 101, Value: 1.2}, {Index: 102, Value: -0.3}}
	f.Alerts = []models.Alert{{ID: "a1", Message: "Heart Rate High: 180", Severity: models.SeverityCritical, Metric: models.MetricHeartRate}}
	f.Unacked = 1
	return f
}

func TestProtobufEncoder_Frame(t *testing.T) {
	enc := NewProtobufEncoder()

	data, err := enc.Encode(testFrame())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var pb structpb.Struct
	if err := proto.Unmarshal(data, &pb); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if got := pb.Fields["schema_version"].GetStringValue(); got != models.FrameSchema {
		t.Errorf("schema_version = %q, want %q", got, models.FrameSchema)
	}
	if got := pb.Fields["patient_id"].GetStringValue(); got != "p1" {
		t.Errorf("patient_id = %q, want p1", got)
	}
	if got := pb.Fields["metrics"].GetStructValue().Fields["heartRate"].GetNumberValue(); got != 180 {
		t.Errorf("metrics.heartRate = %v, want 180", got)
	}
	if got := pb.Fields["meta"].GetStructValue().Fields["sequence"].GetNumberValue(); got != 7 {
		t.Errorf("meta.sequence = %v, want 7", got)
	}
	if _, ok := pb.Fields["risk"]; ok {
		t.Error("risk present without an assessment")
	}
}

func TestProtobufEncoder_Waveform(t *testing.T) {
	pb := frameToProto(testFrame())

	ecg := pb.Fields["ecg"].GetStructValue()
	if start := ecg.Fields["start"].GetNumberValue(); start != 100 {
		t.Errorf("ecg.start = %v, want 100", start)
	}
	values := ecg.Fields["values"].GetListValue().GetValues()
	if len(values) != 3 || values[1].GetNumberValue() != 1.2 {
		t.Errorf("ecg.values = %v", values)
	}

	pleth := pb.Fields["pleth"].GetStructValue()
	if n := len(pleth.Fields["values"].GetListValue().GetValues()); n != 0 {
		t.Errorf("empty pleth encoded %d values", n)
	}
}

func TestProtobufEncoder_AlertsAndRisk(t *testing.T) {
	f := testFrame()
	f.Risk = &models.AIState{Assessment: &models.RiskAssessment{RiskScore: 85, RiskLevel: models.RiskCritical, Confidence: 70}}

	pb := frameToProto(f)

	alerts := pb.Fields["alerts"].GetListValue().GetValues()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if msg := alerts[0].GetStructValue().Fields["message"].GetStringValue(); msg != "Heart Rate High: 180" {
		t.Errorf("alert message = %q", msg)
	}
	risk := pb.Fields["risk"].GetStructValue()
	if risk.Fields["level"].GetStringValue() != "Critical" || risk.Fields["score"].GetNumberValue() != 85 {
		t.Errorf("unexpected risk %v", risk)
	}
}

func TestJSONEncoder_Frame(t *testing.T) {
	data, err := NewJSONEncoder().Encode(testFrame())
	if err != nil {
		t.Fatal(err)
	}
	var decoded models.Frame
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.PatientID != "p1" || len(decoded.ECG) != 3 || decoded.Meta.Sequence != 7 {
		t.Errorf("unexpected frame %+v", decoded)
	}
}

func TestProtobufEncoder_ContentType(t *testing.T) {
	enc := NewProtobufEncoder()
	if ct := enc.ContentType(); ct != "application/x-protobuf" {
		t.Errorf("content type = %q, want application/x-protobuf", ct)
	}
}

func TestNewEncoder_Factory(t *testing.T) {
	jsonEnc := NewEncoder(FormatJSON)
	if jsonEnc.ContentType() != "application/json" {
		t.Errorf("json encoder content type = %q", jsonEnc.ContentType())
	}

	protoEnc := NewEncoder(FormatProtobuf)
	if protoEnc.ContentType() != "application/x-protobuf" {
		t.Errorf("protobuf encoder content type = %q", protoEnc.ContentType())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{" Protobuf ", FormatProtobuf, false},
		{"", FormatJSON, false},
		{"msgpack", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
	if NewEncoder(FormatJSON).Binary() || !NewEncoder(FormatProtobuf).Binary() {
		t.Error("wrong Binary() for built-in encoders")
	}
}
