package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/synheart/synheart-monitor/internal/analysis"
	"github.com/synheart/synheart-monitor/internal/bus"
	"github.com/synheart/synheart-monitor/internal/config"
	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/monitor"
	"github.com/synheart/synheart-monitor/internal/scenario"
)

// resolveSeed picks a clock seed when none is configured
func resolveSeed(seed int64) int64 {
	if seed == 0 {
		return time.Now().UnixNano()
	}
	return seed
}

// newAnalyzer loads the WebAssembly risk module when configured, otherwise
// the rule-based scorer
func newAnalyzer(ctx context.Context, cfg *config.Config, seed int64) (monitor.Analyzer, func(), error) {
	if cfg.RiskWasmPath != "" {
		w, err := analysis.NewWasmAnalyzer(ctx, cfg.RiskWasmPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load risk module: %w", err)
		}
		return w, func() { w.Close(context.Background()) }, nil
	}
	a := analysis.NewRuleAnalyzer(analysis.RuleConfig{
		Seed:     seed,
		MinDelay: analysis.DefaultMinDelay,
		MaxDelay: analysis.DefaultMaxDelay,
	})
	return a, func() {}, nil
}

// alertBus holds the connected alert sinks
type alertBus struct {
	sinks []monitor.AlertSink
	mqtt  *bus.MQTTSink
	nats  *bus.NATSSink
	kafka *bus.KafkaSink
}

func connectBus(cfg *config.Config, logger zerolog.Logger) (*alertBus, error) {
	b := &alertBus{}
	if cfg.NATSURL != "" {
		sink, err := bus.ConnectNATS(cfg.NATSURL, cfg.OrgID)
		if err != nil {
			return nil, err
		}
		b.nats = sink
		b.sinks = append(b.sinks, sink)
	}
	if cfg.MQTTBroker != "" {
		sink, err := bus.ConnectMQTT(bus.MQTTOptions{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			OrgID:    cfg.OrgID,
		}, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.mqtt = sink
		b.sinks = append(b.sinks, sink)
	}
	if cfg.KafkaBrokers != "" {
		sink, err := bus.ConnectKafka(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.OrgID)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.kafka = sink
		b.sinks = append(b.sinks, sink)
	}
	return b, nil
}

func (b *alertBus) Close() {
	if b.nats != nil {
		b.nats.Close()
	}
	if b.mqtt != nil {
		b.mqtt.Close()
	}
	if b.kafka != nil {
		b.kafka.Close()
	}
}

// scriptedWard loads a scenario roster into a fresh monitor and returns the
// engine that drives its phases
func scriptedWard(scen *scenario.Scenario, mcfg monitor.Config) (*monitor.Monitor, *scenario.Engine, map[string]string, error) {
	patients, ids := scen.Roster(uuid.NewString)
	mon := monitor.New(mcfg)
	if err := mon.Load(models.PersistedState{Patients: patients}); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load scenario %s: %w", scen.Name, err)
	}
	return mon, scenario.NewEngine(scen, mcfg.Logger), ids, nil
}

// runDuration resolves the --duration flag, falling back to the scenario's own
func runDuration(flag string, scen *scenario.Scenario) (time.Duration, error) {
	if flag != "" {
		d, err := time.ParseDuration(flag)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("invalid duration %q", flag)
		}
		return d, nil
	}
	if scen == nil {
		return 0, nil
	}
	d, _ := scenario.ParseDuration(scen.Duration)
	return d, nil
}
