package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/synheart/synheart-monitor/internal/config"
	"github.com/synheart/synheart-monitor/internal/store"
	"github.com/synheart/synheart-monitor/internal/transport"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check environment and print connection info",
	Long:  `Validates configuration, checks port availability, the database and scenarios, and prints connection examples.`,
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("🏥 Synheart Monitor Environment Check")

	fmt.Printf("Go Version:        %s\n", runtime.Version())
	fmt.Printf("OS/Arch:           %s/%s\n\n", runtime.GOOS, runtime.GOARCH)

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return err
	}
	fmt.Printf("✅ Configuration valid (org %s)\n", cfg.OrgID)
	if cfg.AuthEnabled() {
		fmt.Println("   Control API requires organization credentials")
	} else {
		fmt.Println("   ⚠️  ORG_PASSCODE_HASH not set, control API is open")
	}
	fmt.Println()

	registry, err := loadScenarios("")
	if err != nil {
		fmt.Printf("❌ %v\n\n", err)
	} else {
		fmt.Printf("✅ Found %d scenarios: %v\n\n", len(registry.List()), registry.List())
	}

	checkDatabase(cfg)
	checkPorts(cfg)

	if cfg.RiskWasmPath != "" {
		if _, err := os.Stat(cfg.RiskWasmPath); err != nil {
			fmt.Printf("❌ Risk module not found: %s\n\n", cfg.RiskWasmPath)
		} else {
			fmt.Printf("✅ Risk module: %s\n\n", cfg.RiskWasmPath)
		}
	}

	wsURL := fmt.Sprintf("ws://%s:%d%s", cfg.HTTPHost, cfg.WSPort, transport.StreamPath)
	fmt.Println("📡 Connection Examples:")
	fmt.Println()

	fmt.Println("Control API:")
	fmt.Printf("  curl http://%s/v1/patients\n", cfg.HTTPAddr())
	fmt.Printf("  curl -X PUT -d '{\"rhythmId\":\"VENTRICULAR_TACHYCARDIA\"}' http://%s/v1/patients/<id>/rhythm\n", cfg.HTTPAddr())
	fmt.Println()

	fmt.Println("JavaScript/Node.js:")
	fmt.Printf("  const ws = new WebSocket('%s?patient=<id>');\n", wsURL)
	fmt.Println("  ws.onmessage = (event) => console.log(JSON.parse(event.data));")
	fmt.Println()

	fmt.Println("Go:")
	fmt.Printf("  conn, _, err := websocket.DefaultDialer.Dial(%q, nil)\n", wsURL)
	fmt.Println("  for {")
	fmt.Println("    _, message, err := conn.ReadMessage()")
	fmt.Println("    var frame Frame")
	fmt.Println("    json.Unmarshal(message, &frame)")
	fmt.Println("  }")
	fmt.Println()

	fmt.Println("SSE:")
	fmt.Printf("  curl -N http://%s:%d%s\n", cfg.HTTPHost, cfg.SSEPort, transport.StreamPath)
	fmt.Println()

	fmt.Println("✅ Environment check complete")
	return nil
}

func checkDatabase(cfg *config.Config) {
	repo, err := store.NewRepository(cfg.DBPath, nil, zerolog.Nop())
	if err != nil {
		fmt.Printf("❌ Database %s: %v\n\n", cfg.DBPath, err)
		return
	}
	defer repo.Close()

	state, found, err := repo.Load(context.Background(), cfg.OrgID)
	switch {
	case err != nil:
		fmt.Printf("❌ Database %s: %v\n\n", cfg.DBPath, err)
	case found:
		fmt.Printf("✅ Database %s: saved ward with %d patients\n\n", cfg.DBPath, len(state.Patients))
	default:
		fmt.Printf("✅ Database %s: no saved ward, default ward will be used\n\n", cfg.DBPath)
	}
}

func checkPorts(cfg *config.Config) {
	ports := []struct {
		name string
		port int
		flag string
	}{
		{"API", cfg.HTTPPort, "HTTP_PORT"},
		{"WebSocket", cfg.WSPort, "WS_PORT"},
		{"SSE", cfg.SSEPort, "SSE_PORT"},
	}
	for _, p := range ports {
		if isPortAvailable(cfg.HTTPHost, p.port) {
			fmt.Printf("✅ %s port %d is available\n", p.name, p.port)
		} else {
			fmt.Printf("⚠️  %s port %d is in use (set %s)\n", p.name, p.port, p.flag)
		}
	}
	fmt.Println()
}
