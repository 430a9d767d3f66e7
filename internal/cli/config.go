package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/synheart/synheart-monitor/internal/config"
	"github.com/synheart/synheart-monitor/internal/logging"
)

// GlobalOptions are shared flags that apply across commands.
type GlobalOptions struct {
	EnvFile string
	Quiet   bool
}

var globalOpts = GlobalOptions{
	EnvFile: ".env",
}

// persistentKeys maps config keys to the root flags that override them
var persistentKeys = map[string]string{
	"LOG_LEVEL":  "log-level",
	"LOG_FORMAT": "log-format",
	"LOG_FILE":   "log-file",
	"DB_PATH":    "db",
}

// loadConfig resolves settings from flags, the environment, the env file and
// defaults, in that order. local maps extra keys to flags of cmd.
func loadConfig(cmd *cobra.Command, local map[string]string) (*config.Config, error) {
	v := config.New(globalOpts.EnvFile)

	for key, name := range persistentKeys {
		if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	for key, name := range local {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			return nil, fmt.Errorf("unknown flag --%s", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Quiet:  globalOpts.Quiet,
	})
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return logger.With().Str("org", cfg.OrgID).Logger(), closer, nil
}
