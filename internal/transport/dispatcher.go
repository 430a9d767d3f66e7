// Package transport streams telemetry frames to rendering clients.
package transport

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/synheart/synheart-monitor/internal/models"
)

// DispatchStats counts frames fanned out and frames lost to full buffers
type DispatchStats struct {
	Frames              int64            `json:"frames"`
	Dropped             int64            `json:"dropped"`
	DroppedByPatient    map[string]int64 `json:"droppedByPatient"`
	DroppedBySubscriber map[string]int64 `json:"droppedBySubscriber"`
}

type subscriber struct {
	name string
	ch   chan models.Frame
}

// Dispatcher fans frames from the simulation out to named subscribers
// (websocket, sse, recorder). A subscriber whose buffer is full misses the
// frame; the loss is counted against both the subscriber and the patient.
type Dispatcher struct {
	source      <-chan models.Frame
	bufferSize  int
	log         zerolog.Logger
	mu          sync.Mutex
	subscribers []subscriber
	stats       DispatchStats
}

func NewDispatcher(source <-chan models.Frame, bufferSize int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		source:     source,
		bufferSize: bufferSize,
		log:        logger.With().Str("component", "dispatcher").Logger(),
		stats: DispatchStats{
			DroppedByPatient:    make(map[string]int64),
			DroppedBySubscriber: make(map[string]int64),
		},
	}
}

// Subscribe registers a named consumer. Subscribers should be added before Run.
func (d *Dispatcher) Subscribe(name string) <-chan models.Frame {
	ch := make(chan models.Frame, d.bufferSize)
	d.mu.Lock()
	d.subscribers = append(d.subscribers, subscriber{name: name, ch: ch})
	d.mu.Unlock()
	return ch
}

func (d *Dispatcher) GetSubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subscribers)
}

// Stats returns a copy of the delivery counters
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.stats
	out.DroppedByPatient = make(map[string]int64, len(d.stats.DroppedByPatient))
	for k, v := range d.stats.DroppedByPatient {
		out.DroppedByPatient[k] = v
	}
	out.DroppedBySubscriber = make(map[string]int64, len(d.stats.DroppedBySubscriber))
	for k, v := range d.stats.DroppedBySubscriber {
		out.DroppedBySubscriber[k] = v
	}
	return out
}

// Run blocks until ctx is cancelled or source closes, then closes every
// subscriber channel
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.closeSubscribers()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-d.source:
			if !ok {
				return
			}
			d.dispatch(ctx, frame)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, frame models.Frame) {
	d.mu.Lock()
	subs := d.subscribers
	d.mu.Unlock()

	var missed []string
	for _, sub := range subs {
		select {
		case sub.ch <- frame:
		case <-ctx.Done():
			return
		default:
			missed = append(missed, sub.name)
		}
	}

	d.mu.Lock()
	d.stats.Frames++
	for _, name := range missed {
		d.stats.Dropped++
		d.stats.DroppedByPatient[frame.PatientID]++
		d.stats.DroppedBySubscriber[name]++
	}
	d.mu.Unlock()

	if len(missed) > 0 {
		d.log.Debug().
			Str("patient_id", frame.PatientID).
			Int64("sequence", frame.Meta.Sequence).
			Strs("subscribers", missed).
			Msg("frame dropped, subscriber buffer full")
	}
}

func (d *Dispatcher) closeSubscribers() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sub := range d.subscribers {
		close(sub.ch)
	}
}
