package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/monitor"
	"github.com/synheart/synheart-monitor/internal/recorder"
)

var (
	recordScenario    string
	recordScenarioDir string
	recordDuration    string
	recordOut         string
	recordInterval    time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a scenario to a file",
	Long: `Runs a scenario headless, without any servers, and writes every stream
frame to an NDJSON file that 'replay' can serve later.`,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&recordScenario, "scenario", "deteriorating", "Scenario to run")
	recordCmd.Flags().StringVar(&recordScenarioDir, "scenario-dir", "", "Directory of additional scenario files")
	recordCmd.Flags().StringVar(&recordDuration, "duration", "", "Duration to record (defaults to the scenario's)")
	recordCmd.Flags().StringVar(&recordOut, "out", "", "Output file (required)")
	recordCmd.Flags().DurationVar(&recordInterval, "frame-interval", 250*time.Millisecond, "Interval between frames")
	recordCmd.Flags().Int64("seed", 0, "Random seed; 0 seeds from the clock")
	recordCmd.MarkFlagRequired("out")
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{"SEED": "seed"})
	if err != nil {
		return err
	}
	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	registry, err := loadScenarios(recordScenarioDir)
	if err != nil {
		return err
	}
	scen, err := registry.Get(recordScenario)
	if err != nil {
		return err
	}
	limit, err := runDuration(recordDuration, scen)
	if err != nil {
		return err
	}
	if limit == 0 {
		return fmt.Errorf("scenario %s has no fixed duration; pass --duration", scen.Name)
	}

	ctx, cancel := signalContext()
	defer cancel()
	ctx, stop := context.WithTimeout(ctx, limit)
	defer stop()

	seed := resolveSeed(cfg.Seed)
	analyzer, closeAnalyzer, err := newAnalyzer(ctx, cfg, seed)
	if err != nil {
		return err
	}
	defer closeAnalyzer()

	mon, engine, keyIDs, err := scriptedWard(scen, monitor.Config{Seed: seed, Analyzer: analyzer, Logger: logger})
	if err != nil {
		return err
	}
	defer mon.Close()

	rec, err := recorder.NewRecorder(recordOut)
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}

	fmt.Printf("📼 Recording Session Started\n\n")
	fmt.Printf("Scenario:   %s\n", scen.Name)
	fmt.Printf("Patients:   %d\n", len(mon.Patients()))
	fmt.Printf("Duration:   %s\n", limit)
	fmt.Printf("Seed:       %d\n", seed)
	fmt.Printf("Output:     %s\n\n", recordOut)

	frames := make(chan models.Frame, 100)
	recorded := make(chan error, 1)
	go func() { recorded <- rec.RecordFromChannel(context.Background(), frames) }()

	go mon.Run(ctx)

	phaseTicker := time.NewTicker(time.Second)
	defer phaseTicker.Stop()
	go engine.Run(ctx, phaseTicker, mon, keyIDs)

	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-progress.C:
				fmt.Printf("\rRecorded %d frames...", rec.Count())
			}
		}
	}()

	frameTicker := time.NewTicker(recordInterval)
	defer frameTicker.Stop()
	streamErr := mon.StreamFrames(ctx, frameTicker, recordInterval, frames)
	close(frames)

	if err := <-recorded; err != nil {
		return fmt.Errorf("recording failed: %w", err)
	}
	if streamErr != nil && !errors.Is(streamErr, context.DeadlineExceeded) && !errors.Is(streamErr, context.Canceled) {
		return streamErr
	}

	fmt.Printf("\n\n✅ Recording complete: %d frames in %s\n", rec.Count(), recordOut)
	return nil
}
