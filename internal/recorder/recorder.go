// Package recorder writes telemetry frames to NDJSON files and replays them.
package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/synheart/synheart-monitor/internal/models"
)

// Recorder writes frames to an NDJSON file, one frame per line
type Recorder struct {
	file   *os.File
	writer *bufio.Writer
	count  int
	mu     sync.Mutex
}

// NewRecorder creates a new recorder, truncating filename
func NewRecorder(filename string) (*Recorder, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}

	return &Recorder{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Record appends one frame
func (r *Recorder) Record(frame models.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	r.count++
	return nil
}

// RecordFromChannel records frames until ctx is cancelled or frames closes,
// then closes the file
func (r *Recorder) RecordFromChannel(ctx context.Context, frames <-chan models.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return r.Close()
		case frame, ok := <-frames:
			if !ok {
				return r.Close()
			}
			if err := r.Record(frame); err != nil {
				r.Close()
				return err
			}
		}
	}
}

// Count returns the number of frames written so far
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Flush flushes the buffer to disk
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Flush()
}

// Close flushes and closes the recorder
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writer.Flush(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to flush buffer: %w", err)
	}

	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	return nil
}
