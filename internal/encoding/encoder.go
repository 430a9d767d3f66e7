// Package encoding serializes stream frames for the WebSocket and SSE transports.
package encoding

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/synheart/synheart-monitor/internal/models"
)

// Format names a frame encoding
type Format string

const (
	FormatJSON     Format = "json"
	FormatProtobuf Format = "protobuf"
)

// Encoder turns one frame into one stream message
type Encoder interface {
	Encode(frame models.Frame) ([]byte, error)
	ContentType() string
	// Binary messages go out as binary WebSocket frames and base64 SSE data
	Binary() bool
}

// ParseFormat accepts a format name in any case
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatJSON, FormatProtobuf:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown frame format %q", name)
	}
}

// JSONEncoder writes frames in the same shape the control API returns
type JSONEncoder struct{}

func NewJSONEncoder() *JSONEncoder {
	return &JSONEncoder{}
}

func (e *JSONEncoder) Encode(frame models.Frame) ([]byte, error) {
	return json.Marshal(frame)
}

func (e *JSONEncoder) ContentType() string { return "application/json" }
func (e *JSONEncoder) Binary() bool        { return false }

// NewEncoder creates an encoder for format; unknown formats get JSON
func NewEncoder(format Format) Encoder {
	if format == FormatProtobuf {
		return NewProtobufEncoder()
	}
	return NewJSONEncoder()
}
