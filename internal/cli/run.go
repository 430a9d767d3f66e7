package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/synheart/synheart-monitor/internal/api"
	"github.com/synheart/synheart-monitor/internal/auth"
	"github.com/synheart/synheart-monitor/internal/encoding"
	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/monitor"
	"github.com/synheart/synheart-monitor/internal/recorder"
	"github.com/synheart/synheart-monitor/internal/scenario"
	"github.com/synheart/synheart-monitor/internal/store"
	"github.com/synheart/synheart-monitor/internal/transport"
)

var (
	runScenario    string
	runScenarioDir string
	runOut         string
	runInterval    time.Duration
	runFor         string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ward simulation",
	Long: `Runs the simulation loops, serves the control API and streams frames over
WebSocket and SSE.

Without --scenario the organization's persisted ward is restored (or the
default ward on first start) and every change is saved back. With --scenario
the scripted roster is loaded fresh and nothing is persisted.

Examples:
  synheart-monitor run
  synheart-monitor run --scenario deteriorating --out deteriorating.ndjson
  synheart-monitor run --format protobuf --seed 42`,
	RunE: runMonitor,
}

func init() {
	runCmd.Flags().StringVar(&runScenario, "scenario", "", "Run a scripted scenario instead of the persisted ward")
	runCmd.Flags().StringVar(&runScenarioDir, "scenario-dir", "", "Directory of additional scenario files")
	runCmd.Flags().StringVar(&runOut, "out", "", "Record frames to an NDJSON file")
	runCmd.Flags().DurationVar(&runInterval, "frame-interval", 250*time.Millisecond, "Interval between stream frames")
	runCmd.Flags().StringVar(&runFor, "duration", "", "Stop after this long (e.g., 10m)")
	runCmd.Flags().Int64("seed", 0, "Random seed; 0 seeds from the clock")
	runCmd.Flags().String("format", "", "Frame encoding: json|protobuf")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{"SEED": "seed", "STREAM_FORMAT": "format"})
	if err != nil {
		return err
	}
	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	registry, err := loadScenarios(runScenarioDir)
	if err != nil {
		return err
	}
	defaultWard, err := registry.Get(scenario.DefaultWard)
	if err != nil {
		return err
	}
	var scen *scenario.Scenario
	if runScenario != "" {
		if scen, err = registry.Get(runScenario); err != nil {
			return err
		}
	}
	limit, err := runDuration(runFor, scen)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	if limit > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, limit)
		defer stop()
	}

	repo, err := store.NewRepository(cfg.DBPath, func() models.PersistedState {
		patients, _ := defaultWard.Roster(uuid.NewString)
		return models.PersistedState{Patients: patients}
	}, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	var authMiddleware func(http.Handler) http.Handler
	if cfg.AuthEnabled() {
		if err := repo.UpsertOrganization(ctx, cfg.OrgID, cfg.OrgPasscodeHash); err != nil {
			return fmt.Errorf("failed to register organization: %w", err)
		}
		authMiddleware = auth.NewAuthenticator(repo).Middleware(cfg.OrgID)
	}

	seed := resolveSeed(cfg.Seed)
	analyzer, closeAnalyzer, err := newAnalyzer(ctx, cfg, seed)
	if err != nil {
		return err
	}
	defer closeAnalyzer()

	alerts, err := connectBus(cfg, logger)
	if err != nil {
		return err
	}
	defer alerts.Close()

	mcfg := monitor.Config{
		Seed:     seed,
		Analyzer: analyzer,
		Sinks:    alerts.sinks,
		Logger:   logger,
	}

	var (
		mon    *monitor.Monitor
		engine *scenario.Engine
		keyIDs map[string]string
	)
	if scen != nil {
		if mon, engine, keyIDs, err = scriptedWard(scen, mcfg); err != nil {
			return err
		}
	} else {
		orgStore := repo.ForOrg(cfg.OrgID)
		mcfg.Persister = orgStore
		mon = monitor.New(mcfg)
		state, found, err := orgStore.Load(ctx)
		if err != nil {
			return err
		}
		if err := mon.Load(state); err != nil {
			return err
		}
		if !found {
			logger.Info().Int("patients", len(state.Patients)).Msg("no saved ward, starting from defaults")
		}
	}
	defer mon.Close()

	if alerts.mqtt != nil {
		if err := alerts.mqtt.SubscribeRhythmCommands(mon); err != nil {
			return err
		}
	}

	format, err := encoding.ParseFormat(cfg.StreamFormat)
	if err != nil {
		return err
	}
	encoder := encoding.NewEncoder(format)
	apiServer := api.NewServer(api.Config{Host: cfg.HTTPHost, Port: cfg.HTTPPort, Auth: authMiddleware}, mon, logger)
	wsServer := transport.NewWebSocketServer(cfg.HTTPHost, cfg.WSPort, encoder, logger)
	sseServer := transport.NewSSEServer(cfg.HTTPHost, cfg.SSEPort, encoder, logger)

	frames := make(chan models.Frame, 100)
	dispatcher := transport.NewDispatcher(frames, 100, logger)

	// servers report startup failures here; the first one stops the run
	errCh := make(chan error, 4)
	serve := func(name string, start func(context.Context) error) {
		go func() {
			if err := start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	serve("api", apiServer.Start)
	serve("websocket", wsServer.Start)
	serve("sse", sseServer.Start)

	go wsServer.BroadcastFromChannel(ctx, dispatcher.Subscribe("websocket"))
	go sseServer.BroadcastFromChannel(ctx, dispatcher.Subscribe("sse"))

	var rec *recorder.Recorder
	if runOut != "" {
		if rec, err = recorder.NewRecorder(runOut); err != nil {
			return err
		}
		recorded := dispatcher.Subscribe("recorder")
		go func() {
			if err := rec.RecordFromChannel(ctx, recorded); err != nil {
				logger.Error().Err(err).Msg("recording failed")
			}
		}()
	}

	go dispatcher.Run(ctx)

	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			errCh <- fmt.Errorf("simulation: %w", err)
		}
	}()

	frameTicker := time.NewTicker(runInterval)
	defer frameTicker.Stop()
	go func() {
		defer close(frames)
		mon.StreamFrames(ctx, frameTicker, runInterval, frames)
	}()

	if engine != nil {
		phaseTicker := time.NewTicker(time.Second)
		defer phaseTicker.Stop()
		go engine.Run(ctx, phaseTicker, mon, keyIDs)
	}

	time.Sleep(100 * time.Millisecond)

	fmt.Printf("🫀 Synheart Monitor Started\n\n")
	if scen != nil {
		fmt.Printf("Scenario:     %s\n", scen.Name)
	} else {
		fmt.Printf("Ward:         %s (%s)\n", cfg.OrgID, cfg.DBPath)
	}
	fmt.Printf("Patients:     %d\n", len(mon.Patients()))
	fmt.Printf("Seed:         %d\n", seed)
	fmt.Printf("API:          http://%s\n", apiServer.Address())
	fmt.Printf("WebSocket:    %s\n", wsServer.GetAddress())
	fmt.Printf("SSE:          %s\n", sseServer.GetAddress())
	fmt.Printf("Encoding:     %s\n", encoder.ContentType())
	fmt.Printf("Auth:         %v\n", cfg.AuthEnabled())
	if runOut != "" {
		fmt.Printf("Recording:    %s\n", runOut)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("shutting down")
	}
	cancel()
	mon.Close()
	<-simDone

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := mon.Flush(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to save ward on shutdown")
	}

	stats := apiServer.GetStats()
	dispatch := dispatcher.Stats()
	fmt.Printf("\nRequests: %d  Errors: %d  Frames: %d  Dropped: %d\n", stats.Requests, stats.Errors, dispatch.Frames, dispatch.Dropped)
	for name, n := range dispatch.DroppedBySubscriber {
		fmt.Printf("  %-10s dropped %d\n", name, n)
	}
	if rec != nil {
		fmt.Printf("Recorded %d frames to %s\n", rec.Count(), runOut)
	}
	fmt.Println("Shutdown complete")
	return runErr
}
