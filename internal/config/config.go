package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grump-ai/grump-engine/internal/pipeline"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Backend selects the queue implementation backing job execution.
type Backend string

const (
	// BackendEmbedded polls the jobs table directly. No external services.
	BackendEmbedded Backend = "embedded"
	// BackendDistributed publishes jobs to RabbitMQ for horizontal workers.
	BackendDistributed Backend = "distributed"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Logging  LoggingConfig  `yaml:"logging"`
	Worker   WorkerConfig   `yaml:"worker"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Intent   IntentConfig   `yaml:"intent"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
}

// SandboxConfig holds the sandbox test-execution configuration.
type SandboxConfig struct {
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds job store configuration. Driver "sqlite" needs only a
// path; "postgres" needs the connection fields.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// QueueConfig holds RabbitMQ configuration for the distributed backend. A
// host selects the distributed backend; an empty host selects embedded.
type QueueConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	VHost         string        `yaml:"vhost"`
	Name          string        `yaml:"name"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
	PrefetchCount int           `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SessionID       string        `yaml:"session_id"`
}

// PipelineConfig holds orchestrator policy configuration.
type PipelineConfig struct {
	FailFast *bool                    `yaml:"fail_fast"`
	Stages   map[string]StageOverride `yaml:"stages"`
}

// StageOverride partially overrides the default policy for one stage. Nil
// fields keep the default.
type StageOverride struct {
	Enabled      *bool          `yaml:"enabled"`
	MaxRetries   *int           `yaml:"max_retries"`
	AllowDegrade *bool          `yaml:"allow_degrade"`
	Timeout      *time.Duration `yaml:"timeout"`
}

// IntentConfig holds the intent compiler subprocess configuration.
type IntentConfig struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads and parses the configuration file, then applies environment
// overrides.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	config.ApplyEnv()

	return &config, nil
}

// applyDefaults fills fields that have a sensible zero-value replacement.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		if c.Database.Host != "" {
			c.Database.Driver = "postgres"
		} else {
			c.Database.Driver = "sqlite"
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "grump.db"
	}
	if c.Queue.Port == 0 {
		c.Queue.Port = 5672
	}
	if c.Queue.VHost == "" {
		c.Queue.VHost = "/"
	}
	if c.Queue.Name == "" {
		c.Queue.Name = "grump.jobs"
	}
	if c.Queue.PrefetchCount == 0 {
		c.Queue.PrefetchCount = 1
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 2 * time.Second
	}
	if c.Intent.Timeout == 0 {
		c.Intent.Timeout = 20 * time.Second
	}
	if c.Sandbox.Command == "" {
		c.Sandbox.Command = "npm test"
	}
	if c.Sandbox.Timeout == 0 {
		c.Sandbox.Timeout = 5 * time.Minute
	}
}

// ApplyEnv overrides file configuration from the environment. Deployment
// knobs only; stage policies stay file-based.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("GRUMP_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("GRUMP_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("GRUMP_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("GRUMP_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("GRUMP_QUEUE_HOST"); v != "" {
		c.Queue.Host = v
	}
	if v := os.Getenv("GRUMP_QUEUE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Queue.Port = port
		}
	}
	if v := os.Getenv("GRUMP_QUEUE_USER"); v != "" {
		c.Queue.User = v
	}
	if v := os.Getenv("GRUMP_QUEUE_PASSWORD"); v != "" {
		c.Queue.Password = v
	}
	if v := os.Getenv("GRUMP_INTENT_PATH"); v != "" {
		c.Intent.Path = v
	}
	if v := os.Getenv("GRUMP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// QueueBackend resolves which backend this deployment runs. Configuring a
// queue host opts in to the distributed backend; otherwise the embedded
// backend is used.
func (c *Config) QueueBackend() Backend {
	if c.Queue.Host != "" {
		return BackendDistributed
	}
	return BackendEmbedded
}

// FailFast reports the orchestrator abort policy. Defaults to true.
func (c *Config) FailFast() bool {
	if c.Pipeline.FailFast == nil {
		return true
	}
	return *c.Pipeline.FailFast
}

// StageConfigs materializes the configured stage overrides on top of the
// default per-stage policies.
func (c *Config) StageConfigs() map[string]pipeline.StageConfig {
	if len(c.Pipeline.Stages) == 0 {
		return nil
	}

	defaults := pipeline.DefaultStageConfigs()
	overrides := make(map[string]pipeline.StageConfig, len(c.Pipeline.Stages))
	for name, o := range c.Pipeline.Stages {
		sc := defaults[name]
		if o.Enabled != nil {
			sc.Enabled = *o.Enabled
		}
		if o.MaxRetries != nil {
			sc.MaxRetries = *o.MaxRetries
		}
		if o.AllowDegrade != nil {
			sc.AllowDegrade = *o.AllowDegrade
		}
		if o.Timeout != nil {
			sc.Timeout = *o.Timeout
		}
		overrides[name] = sc
	}
	return overrides
}

// ValidateAPIConfig checks the fields the API service depends on.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	return c.validateQueue()
}

// ValidateWorkerConfig checks the fields the worker service depends on.
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker poll_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout < 0 {
		return fmt.Errorf("worker shutdown_timeout must not be negative")
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	return c.validateQueue()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required for the postgres driver")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.QueueBackend() == BackendEmbedded {
		return nil
	}

	if c.Queue.Port < MinPort || c.Queue.Port > MaxPort {
		return fmt.Errorf("invalid queue port: %d (must be between %d and %d)", c.Queue.Port, MinPort, MaxPort)
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("queue name is required")
	}
	return nil
}
