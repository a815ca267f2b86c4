package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when HIVE_CONFIG is unset.
const DefaultPath = "config/hive.yaml"

type Config struct {
	NATS      NATSConfig      `yaml:"nats"`
	Store     StoreConfig     `yaml:"store"`
	Vault     VaultConfig     `yaml:"vault"`
	Web       WebConfig       `yaml:"web"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Swarm     SwarmConfig     `yaml:"swarm"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Log       LogConfig       `yaml:"log"`
}

type NATSConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
	// MaxPayload caps a single message; swarm contexts travel whole in
	// orchestration requests.
	MaxPayload int32 `yaml:"max_payload"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// SwarmConfig controls approval handling for sensitive reads.
type SwarmConfig struct {
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
	// DenySensitivity lists sensitivity types the approval responder refuses.
	DenySensitivity   []string `yaml:"deny_sensitivity"`
	DefaultVisibility string   `yaml:"default_visibility"`
}

type TracingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Output  string `yaml:"output"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() Config {
	return Config{
		NATS: NATSConfig{
			Port:       4222,
			DataDir:    "data/nats",
			MaxPayload: 8 << 20,
		},
		Store: StoreConfig{
			Path: "data/hive.db",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Scheduler: SchedulerConfig{
			PollInterval: 5 * time.Second,
		},
		Swarm: SwarmConfig{
			ApprovalTimeout:   10 * time.Second,
			DefaultVisibility: "restricted",
		},
		Tracing: TracingConfig{
			Output: "data/traces.jsonl",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Path returns the config file location.
func Path() string {
	if p := os.Getenv("HIVE_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads path over the defaults. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	switch c.Swarm.DefaultVisibility {
	case "public", "restricted", "private":
	default:
		return fmt.Errorf("invalid default visibility %q", c.Swarm.DefaultVisibility)
	}
	if c.NATS.MaxPayload < 0 {
		return fmt.Errorf("nats max_payload must not be negative")
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler poll_interval must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HIVE_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
	if v := os.Getenv("HIVE_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("HIVE_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("HIVE_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("HIVE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("HIVE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HIVE_TRACING"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Enabled = on
		}
	}
}
