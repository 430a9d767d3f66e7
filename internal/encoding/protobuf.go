package encoding

import (
	"github.com/synheart/synheart-monitor/internal/models"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtobufEncoder encodes frames as a google.protobuf.Struct. Waveforms are
// packed as a start index plus a list of sample values.
type ProtobufEncoder struct{}

func NewProtobufEncoder() *ProtobufEncoder {
	return &ProtobufEncoder{}
}

func (e *ProtobufEncoder) Encode(frame models.Frame) ([]byte, error) {
	return proto.Marshal(frameToProto(frame))
}

func (e *ProtobufEncoder) ContentType() string {
	return "application/x-protobuf"
}

func (e *ProtobufEncoder) Binary() bool { return true }

func frameToProto(f models.Frame) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"schema_version": structpb.NewStringValue(f.SchemaVersion),
		"frame_id":       structpb.NewStringValue(f.FrameID),
		"ts":             structpb.NewStringValue(f.Timestamp),
		"patient_id":     structpb.NewStringValue(f.PatientID),
		"rhythm_id":      structpb.NewStringValue(f.RhythmID),
		"metrics":        structpb.NewStructValue(metricsToProto(f.Metrics)),
		"ecg":            structpb.NewStructValue(waveformToProto(f.ECG)),
		"pleth":          structpb.NewStructValue(waveformToProto(f.Pleth)),
		"resp":           structpb.NewStructValue(waveformToProto(f.Respiration)),
		"alerts":         structpb.NewListValue(alertsToProto(f.Alerts)),
		"unacknowledged": structpb.NewNumberValue(float64(f.Unacked)),
		"lead_off":       structpb.NewBoolValue(f.LeadOff),
		"meta": structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"sequence": structpb.NewNumberValue(float64(f.Meta.Sequence)),
		}}),
	}
	if f.Risk != nil && f.Risk.Assessment != nil {
		a := f.Risk.Assessment
		fields["risk"] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"score":      structpb.NewNumberValue(float64(a.RiskScore)),
			"level":      structpb.NewStringValue(string(a.RiskLevel)),
			"confidence": structpb.NewNumberValue(float64(a.Confidence)),
			"loading":    structpb.NewBoolValue(f.Risk.IsLoading),
		}})
	}
	return &structpb.Struct{Fields: fields}
}

func metricsToProto(m models.Metrics) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"heartRate":       structpb.NewNumberValue(float64(m.HeartRate)),
		"systolic":        structpb.NewNumberValue(float64(m.Systolic)),
		"diastolic":       structpb.NewNumberValue(float64(m.Diastolic)),
		"spo2":            structpb.NewNumberValue(float64(m.SpO2)),
		"temperature":     structpb.NewNumberValue(m.Temperature),
		"respiratoryRate": structpb.NewNumberValue(float64(m.RespiratoryRate)),
	}}
}

// waveformToProto assumes samples are contiguous, which holds for ring windows
func waveformToProto(samples []models.Sample) *structpb.Struct {
	values := make([]*structpb.Value, len(samples))
	for i, s := range samples {
		values[i] = structpb.NewNumberValue(s.Value)
	}
	var start int64
	if len(samples) > 0 {
		start = samples[0].Index
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"start":  structpb.NewNumberValue(float64(start)),
		"values": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

func alertsToProto(alerts []models.Alert) *structpb.ListValue {
	values := make([]*structpb.Value, len(alerts))
	for i, a := range alerts {
		values[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"id":       structpb.NewStringValue(a.ID),
			"message":  structpb.NewStringValue(a.Message),
			"severity": structpb.NewStringValue(string(a.Severity)),
			"metric":   structpb.NewStringValue(a.Metric),
		}})
	}
	return &structpb.ListValue{Values: values}
}
