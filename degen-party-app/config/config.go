package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Node     NodeConfig      `mapstructure:"node"     yaml:"node"`
	API      APIServerConfig `mapstructure:"api"      yaml:"api"`
	Executor ExecutorConfig  `mapstructure:"executor" yaml:"executor"`
	Prover   ProverConfig    `mapstructure:"prover"   yaml:"prover"`
	Metrics  MetricsConfig   `mapstructure:"metrics"  yaml:"metrics"`
	Log      LogConfig       `mapstructure:"log"      yaml:"log"`
}

// NodeConfig holds ledger node connection configuration. An empty base_url
// runs the app against an in-process ledger, which is what local development
// uses.
type NodeConfig struct {
	BaseURL      string        `mapstructure:"base_url"      yaml:"base_url"      env:"NODE_BASE_URL"`
	LaneID       string        `mapstructure:"lane_id"       yaml:"lane_id"       env:"NODE_LANE_ID"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" env:"NODE_POLL_INTERVAL"`
}

// APIServerConfig holds HTTP API server configuration
type APIServerConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr"         yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        yaml:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    yaml:"max_header_bytes"`
}

// ExecutorConfig holds rollup executor configuration
type ExecutorConfig struct {
	BoardContract string        `mapstructure:"board_contract" yaml:"board_contract"`
	CrashContract string        `mapstructure:"crash_contract" yaml:"crash_contract"`
	PrivateKey    string        `mapstructure:"private_key"    yaml:"private_key"    env:"EXECUTOR_PRIVATE_KEY"`
	DataDir       string        `mapstructure:"data_dir"       yaml:"data_dir"       env:"EXECUTOR_DATA_DIR"`
	SnapshotName  string        `mapstructure:"snapshot_name"  yaml:"snapshot_name"`
	TickInterval  time.Duration `mapstructure:"tick_interval"  yaml:"tick_interval"`
}

// ProverConfig holds proof generation configuration. With proving enabled and
// no base_url configured, the app falls back to the in-process test prover.
type ProverConfig struct {
	Enabled    bool   `mapstructure:"enabled"     yaml:"enabled"     env:"PROVER_ENABLED"`
	BaseURL    string `mapstructure:"base_url"    yaml:"base_url"    env:"PROVER_BASE_URL"`
	QueueDepth int    `mapstructure:"queue_depth" yaml:"queue_depth"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("node.base_url", "")
	v.SetDefault("node.lane_id", "lane-local")
	v.SetDefault("node.poll_interval", "500ms")

	v.SetDefault("api.listen_addr", ":8081")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.max_header_bytes", 1048576)

	v.SetDefault("executor.board_contract", "board_game")
	v.SetDefault("executor.crash_contract", "crash_game")
	v.SetDefault("executor.private_key", "")
	v.SetDefault("executor.data_dir", "data")
	v.SetDefault("executor.snapshot_name", "rollup_executor.bin")
	v.SetDefault("executor.tick_interval", "50ms")

	v.SetDefault("prover.enabled", false)
	v.SetDefault("prover.base_url", "")
	v.SetDefault("prover.queue_depth", 64)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateNode(); err != nil {
		return err
	}
	if err := c.validateExecutor(); err != nil {
		return err
	}
	if err := c.validateProver(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateNode() error {
	if c.Node.PollInterval <= 0 {
		return fmt.Errorf("node.poll_interval must be positive")
	}
	if strings.TrimSpace(c.Node.BaseURL) == "" && strings.TrimSpace(c.Node.LaneID) == "" {
		return fmt.Errorf("node.lane_id is required when running the in-process ledger")
	}
	return nil
}

func (c *Config) validateExecutor() error {
	if strings.TrimSpace(c.Executor.BoardContract) == "" {
		return fmt.Errorf("executor.board_contract must not be empty")
	}
	if strings.TrimSpace(c.Executor.CrashContract) == "" {
		return fmt.Errorf("executor.crash_contract must not be empty")
	}
	if c.Executor.BoardContract == c.Executor.CrashContract {
		return fmt.Errorf("executor.board_contract and executor.crash_contract must differ")
	}
	if strings.TrimSpace(c.Executor.DataDir) == "" {
		return fmt.Errorf("executor.data_dir must not be empty")
	}
	if c.Executor.TickInterval <= 0 {
		return fmt.Errorf("executor.tick_interval must be positive")
	}
	return nil
}

func (c *Config) validateProver() error {
	if c.Prover.Enabled && c.Prover.QueueDepth <= 0 {
		return fmt.Errorf("prover.queue_depth must be positive when proving is enabled")
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			LaneID:       "lane-local",
			PollInterval: 500 * time.Millisecond,
		},
		API: APIServerConfig{
			ListenAddr:        ":8081",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		Executor: ExecutorConfig{
			BoardContract: "board_game",
			CrashContract: "crash_game",
			DataDir:       "data",
			SnapshotName:  "rollup_executor.bin",
			TickInterval:  50 * time.Millisecond,
		},
		Prover: ProverConfig{
			Enabled:    false,
			QueueDepth: 64,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}
