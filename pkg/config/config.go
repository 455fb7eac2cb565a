package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aman-app/aman/pkg/errdefs"
)

// Config is the full configuration tree for both the server and the
// agent. Values load from an optional YAML file and from AMAN_*
// environment variables, environment winning.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Host          string            `mapstructure:"host"`
	Port          int               `mapstructure:"port"`
	DataDir       string            `mapstructure:"data_dir"`
	Tokens        map[string]string `mapstructure:"tokens"`
	MaxTTLHours   int               `mapstructure:"max_ttl_hours"`
	PurgeSchedule string            `mapstructure:"purge_schedule"`
}

// MaxTTL converts the configured cap to a duration. Zero means the
// engine default.
func (s ServerConfig) MaxTTL() time.Duration {
	return time.Duration(s.MaxTTLHours) * time.Hour
}

type AgentConfig struct {
	ServerURL     string `mapstructure:"server_url"`
	Token         string `mapstructure:"token"`
	UserID        string `mapstructure:"user_id"`
	DataDir       string `mapstructure:"data_dir"`
	QueueCapBytes int    `mapstructure:"queue_cap_bytes"`
	Heartbeat     string `mapstructure:"heartbeat"`
	ProbeInterval string `mapstructure:"probe_interval"`
}

func (a AgentConfig) GetHeartbeat() time.Duration {
	d, _ := time.ParseDuration(a.Heartbeat)
	return d
}

func (a AgentConfig) GetProbeInterval() time.Duration {
	d, _ := time.ParseDuration(a.ProbeInterval)
	return d
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path (optional; "" searches the usual
// locations) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "/var/lib/aman")
	v.SetDefault("server.max_ttl_hours", 0)
	v.SetDefault("server.purge_schedule", "@hourly")
	v.SetDefault("agent.server_url", "http://localhost:8080")
	v.SetDefault("agent.token", "")
	v.SetDefault("agent.user_id", "")
	v.SetDefault("agent.data_dir", "")
	v.SetDefault("agent.queue_cap_bytes", 0)
	v.SetDefault("agent.heartbeat", "1m")
	v.SetDefault("agent.probe_interval", "15s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetEnvPrefix("AMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("aman")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/aman")
	}

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, errdefs.Validation("read config %s: %v", path, err)
		}
		// No config file found while searching: defaults and
		// environment suffice.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errdefs.Validation("read config: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errdefs.Validation("parse config: %v", err)
	}
	return &cfg, nil
}
