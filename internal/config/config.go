// Package config loads runtime settings from the environment and .env files.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds monitor runtime settings
type Config struct {
	OrgID           string `mapstructure:"ORG_ID"`
	OrgPasscodeHash string `mapstructure:"ORG_PASSCODE_HASH"`
	HTTPHost        string `mapstructure:"HTTP_HOST"`
	HTTPPort        int    `mapstructure:"HTTP_PORT"`
	WSPort          int    `mapstructure:"WS_PORT"`
	SSEPort         int    `mapstructure:"SSE_PORT"`
	DBPath          string `mapstructure:"DB_PATH"`
	NATSURL         string `mapstructure:"NATS_URL"`
	MQTTBroker      string `mapstructure:"MQTT_BROKER"`
	MQTTClientID    string `mapstructure:"MQTT_CLIENT_ID"`
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic      string `mapstructure:"KAFKA_TOPIC"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogFormat       string `mapstructure:"LOG_FORMAT"`
	LogFile         string `mapstructure:"LOG_FILE"`
	Seed            int64  `mapstructure:"SEED"`
	RiskWasmPath    string `mapstructure:"RISK_WASM_PATH"`
	StreamFormat    string `mapstructure:"STREAM_FORMAT"`
}

var keys = []string{
	"ORG_ID", "ORG_PASSCODE_HASH", "HTTP_HOST", "HTTP_PORT", "WS_PORT", "SSE_PORT",
	"DB_PATH", "NATS_URL", "MQTT_BROKER", "MQTT_CLIENT_ID", "KAFKA_BROKERS", "KAFKA_TOPIC", "LOG_LEVEL", "LOG_FORMAT",
	"LOG_FILE", "SEED", "RISK_WASM_PATH", "STREAM_FORMAT",
}

// New returns a viper instance with defaults set and every key bound to the
// environment. envFiles are loaded into the process environment first;
// missing files are ignored.
func New(envFiles ...string) *viper.Viper {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ORG_ID", "default")
	v.SetDefault("HTTP_HOST", "127.0.0.1")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("WS_PORT", 8787)
	v.SetDefault("SSE_PORT", 8788)
	v.SetDefault("DB_PATH", "monitor.db")
	v.SetDefault("MQTT_CLIENT_ID", "synheart-monitor")
	v.SetDefault("KAFKA_TOPIC", "monitor.alerts")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("SEED", 0)
	v.SetDefault("STREAM_FORMAT", "json")

	for _, k := range keys {
		v.BindEnv(k)
	}
	return v
}

// Load unmarshals and validates the settings held by v
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.StreamFormat = strings.ToLower(cfg.StreamFormat)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.OrgID == "" {
		return fmt.Errorf("ORG_ID is required")
	}
	for name, port := range map[string]int{"HTTP_PORT": c.HTTPPort, "WS_PORT": c.WSPort, "SSE_PORT": c.SSEPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\", got %q", c.LogFormat)
	}
	switch c.StreamFormat {
	case "json", "protobuf":
	default:
		return fmt.Errorf("STREAM_FORMAT must be \"json\" or \"protobuf\", got %q", c.StreamFormat)
	}
	return nil
}

// HTTPAddr is the control API listen address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// AuthEnabled reports whether the control API requires organization credentials
func (c *Config) AuthEnabled() bool {
	return c.OrgPasscodeHash != ""
}
