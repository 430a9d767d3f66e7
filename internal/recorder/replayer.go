package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/synheart/synheart-monitor/internal/models"
)

// maxLine bounds one recorded frame; a 10 s waveform window fits comfortably
const maxLine = 4 << 20

// Replayer re-emits recorded frames with their original spacing
type Replayer struct {
	filename string
	speed    float64
	loop     bool
	patient  string
}

// ReplayOptions controls replay pacing and filtering
type ReplayOptions struct {
	Speed   float64 // 2 plays twice as fast; <= 0 means 1
	Loop    bool
	Patient string // only replay this patient's frames when set
}

// NewReplayer creates a new replayer
func NewReplayer(filename string, opts ReplayOptions) *Replayer {
	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}
	return &Replayer{filename: filename, speed: speed, loop: opts.Loop, patient: opts.Patient}
}

// Replay sends frames to output until the file ends (or forever when looping)
func (r *Replayer) Replay(ctx context.Context, output chan<- models.Frame) error {
	for {
		if err := r.replayOnce(ctx, output); err != nil {
			return err
		}
		if !r.loop {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (r *Replayer) replayOnce(ctx context.Context, output chan<- models.Frame) error {
	var last time.Time
	return r.scan(func(lineNum int, frame models.Frame) error {
		if r.patient != "" && frame.PatientID != r.patient {
			return nil
		}

		ts, err := time.Parse(time.RFC3339Nano, frame.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to parse timestamp at line %d: %w", lineNum, err)
		}
		if !last.IsZero() {
			if delay := time.Duration(float64(ts.Sub(last)) / r.speed); delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
		}
		last = ts

		select {
		case <-ctx.Done():
			return ctx.Err()
		case output <- frame:
		}
		return nil
	})
}

// Summary describes a recording
type Summary struct {
	Frames   int
	Patients []string
	First    time.Time
	Last     time.Time
}

// Summarize reads the recording once and reports its contents
func (r *Replayer) Summarize() (Summary, error) {
	var sum Summary
	seen := map[string]bool{}
	err := r.scan(func(_ int, frame models.Frame) error {
		sum.Frames++
		if !seen[frame.PatientID] {
			seen[frame.PatientID] = true
			sum.Patients = append(sum.Patients, frame.PatientID)
		}
		if ts, err := time.Parse(time.RFC3339Nano, frame.Timestamp); err == nil {
			if sum.First.IsZero() {
				sum.First = ts
			}
			sum.Last = ts
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	if sum.Frames == 0 {
		return Summary{}, fmt.Errorf("recording file is empty")
	}
	return sum, nil
}

func (r *Replayer) scan(fn func(lineNum int, frame models.Frame) error) error {
	file, err := os.Open(r.filename)
	if err != nil {
		return fmt.Errorf("failed to open recording file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		var frame models.Frame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			return fmt.Errorf("failed to parse frame at line %d: %w", lineNum, err)
		}
		if err := fn(lineNum, frame); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}
	return nil
}
