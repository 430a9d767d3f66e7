package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/synheart/synheart-monitor/internal/scenario"
)

func getScenarioDir() string {
	// Try current directory first
	if _, err := os.Stat("scenarios"); err == nil {
		return "scenarios"
	}

	// Try relative to executable
	exe, err := os.Executable()
	if err == nil {
		dir := filepath.Join(filepath.Dir(exe), "scenarios")
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
	}

	return ""
}

// loadScenarios returns the built-in scenarios plus any found in dir (or the
// default scenarios directory when dir is empty). Files override built-ins
// with the same name.
func loadScenarios(dir string) (*scenario.Registry, error) {
	registry, err := scenario.NewBuiltinRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in scenarios: %w", err)
	}

	if dir == "" {
		dir = getScenarioDir()
	}
	if dir == "" {
		return registry, nil
	}
	if err := registry.LoadFromDir(dir); err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}
	return registry, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func isPortAvailable(host string, port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
