package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/synheart/synheart-monitor/internal/encoding"
	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/recorder"
	"github.com/synheart/synheart-monitor/internal/transport"
)

var (
	replayIn      string
	replaySpeed   float64
	replayLoop    bool
	replayPatient string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded frames",
	Long: `Serve frames from a previously recorded NDJSON file over WebSocket and SSE,
with their original spacing.

Examples:
  synheart-monitor replay --in deteriorating.ndjson
  synheart-monitor replay --in ward.ndjson --speed 4 --loop`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayIn, "in", "", "Input file to replay (required)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayLoop, "loop", false, "Loop playback continuously")
	replayCmd.Flags().StringVar(&replayPatient, "patient", "", "Only replay this patient's frames")
	replayCmd.Flags().String("format", "", "Frame encoding: json|protobuf")
	replayCmd.MarkFlagRequired("in")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{"STREAM_FORMAT": "format"})
	if err != nil {
		return err
	}
	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	rep := recorder.NewReplayer(replayIn, recorder.ReplayOptions{
		Speed:   replaySpeed,
		Loop:    replayLoop,
		Patient: replayPatient,
	})
	summary, err := rep.Summarize()
	if err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	format, err := encoding.ParseFormat(cfg.StreamFormat)
	if err != nil {
		return err
	}
	encoder := encoding.NewEncoder(format)
	wsServer := transport.NewWebSocketServer(cfg.HTTPHost, cfg.WSPort, encoder, logger)
	sseServer := transport.NewSSEServer(cfg.HTTPHost, cfg.SSEPort, encoder, logger)

	frames := make(chan models.Frame, 100)
	dispatcher := transport.NewDispatcher(frames, 100, logger)

	errCh := make(chan error, 2)
	for name, start := range map[string]func(context.Context) error{"websocket": wsServer.Start, "sse": sseServer.Start} {
		go func(name string, start func(context.Context) error) {
			if err := start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}(name, start)
	}
	go wsServer.BroadcastFromChannel(ctx, dispatcher.Subscribe("websocket"))
	go sseServer.BroadcastFromChannel(ctx, dispatcher.Subscribe("sse"))
	go dispatcher.Run(ctx)

	// Give servers time to start
	time.Sleep(100 * time.Millisecond)

	fmt.Printf("▶️  Replay Session Started\n\n")
	fmt.Printf("File:         %s\n", replayIn)
	fmt.Printf("Frames:       %d\n", summary.Frames)
	fmt.Printf("Patients:     %s\n", strings.Join(summary.Patients, ", "))
	fmt.Printf("Length:       %s\n", summary.Last.Sub(summary.First).Round(time.Second))
	fmt.Printf("Speed:        %.1fx\n", replaySpeed)
	fmt.Printf("Loop:         %v\n", replayLoop)
	fmt.Printf("WebSocket:    %s\n", wsServer.GetAddress())
	fmt.Printf("SSE:          %s\n\n", sseServer.GetAddress())
	fmt.Println("Press Ctrl+C to stop")

	replayed := make(chan error, 1)
	go func() {
		defer close(frames)
		replayed <- rep.Replay(ctx, frames)
	}()

	select {
	case err = <-replayed:
	case err = <-errCh:
	}
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("replay error: %w", err)
	}

	fmt.Println("\nReplay complete")
	return nil
}
