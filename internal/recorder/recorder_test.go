package recorder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/synheart/synheart-monitor/internal/models"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func frameAt(id, patient string, offset time.Duration) models.Frame {
	f := models.NewFrame(id, patient, 0)
	f.Timestamp = base.Add(offset).Format(time.RFC3339Nano)
	return f
}

func writeRecording(t *testing.T, frames ...models.Frame) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ward.ndjson")
	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range frames {
		if err := rec.Record(f); err != nil {
			t.Fatal(err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRecorderWritesNDJSON(t *testing.T) {
	path := writeRecording(t, frameAt("f1", "p1", 0), frameAt("f2", "p2", 250*time.Millisecond))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[1], `"frame_id":"f2"`) {
		t.Errorf("unexpected second line %s", lines[1])
	}
}

func TestRecordFromChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ward.ndjson")
	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatal(err)
	}

	frames := make(chan models.Frame, 3)
	frames <- frameAt("f1", "p1", 0)
	frames <- frameAt("f2", "p1", time.Second)
	close(frames)

	if err := rec.RecordFromChannel(context.Background(), frames); err != nil {
		t.Fatal(err)
	}
	if rec.Count() != 2 {
		t.Errorf("expected 2 frames recorded, got %d", rec.Count())
	}

	sum, err := NewReplayer(path, ReplayOptions{}).Summarize()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Frames != 2 || len(sum.Patients) != 1 || sum.Last.Sub(sum.First) != time.Second {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestReplayFiltersAndPaces(t *testing.T) {
	path := writeRecording(t,
		frameAt("f1", "p1", 0),
		frameAt("f2", "p2", 100*time.Millisecond),
		frameAt("f3", "p1", 200*time.Millisecond),
	)

	out := make(chan models.Frame, 10)
	start := time.Now()
	err := NewReplayer(path, ReplayOptions{Speed: 4, Patient: "p1"}).Replay(context.Background(), out)
	if err != nil {
		t.Fatal(err)
	}
	close(out)

	var ids []string
	for f := range out {
		ids = append(ids, f.FrameID)
	}
	if strings.Join(ids, ",") != "f1,f3" {
		t.Errorf("expected f1,f3, got %v", ids)
	}
	// 200ms of recording at 4x is 50ms
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("replay not paced: %v", elapsed)
	}
}

func TestReplayCancelled(t *testing.T) {
	path := writeRecording(t, frameAt("f1", "p1", 0), frameAt("f2", "p1", time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := make(chan models.Frame, 10)
	if err := NewReplayer(path, ReplayOptions{}).Replay(ctx, out); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if len(out) != 1 {
		t.Errorf("expected 1 frame before cancel, got %d", len(out))
	}
}

func TestReplayMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ndjson")
	os.WriteFile(path, []byte("{not json}\n"), 0644)

	err := NewReplayer(path, ReplayOptions{}).Replay(context.Background(), make(chan models.Frame, 1))
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("expected parse error at line 1, got %v", err)
	}

	empty := filepath.Join(t.TempDir(), "empty.ndjson")
	os.WriteFile(empty, nil, 0644)
	if _, err := NewReplayer(empty, ReplayOptions{}).Summarize(); err == nil {
		t.Error("expected error summarizing an empty recording")
	}
}
