package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, "grump-engine", cfg.App.Name)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "sqlite", cfg.Database.Driver)
				assert.Equal(t, "grump.db", cfg.Database.Path)
				assert.Equal(t, "grump.jobs", cfg.Queue.Name)
				assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
			}
		})
	}
}

func TestConfig_QueueBackend(t *testing.T) {
	tests := []struct {
		name     string
		queue    QueueConfig
		expected Backend
	}{
		{
			name:     "empty host selects embedded",
			queue:    QueueConfig{},
			expected: BackendEmbedded,
		},
		{
			name:     "configured host selects distributed",
			queue:    QueueConfig{Host: "localhost", Port: 5672},
			expected: BackendDistributed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Queue: tt.queue}
			assert.Equal(t, tt.expected, cfg.QueueBackend())
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	// Values not present in the file come from applyDefaults.
	assert.Equal(t, 5672, cfg.Queue.Port)
	assert.Equal(t, "/", cfg.Queue.VHost)
	assert.Equal(t, 1, cfg.Queue.PrefetchCount)
	assert.Equal(t, 20*time.Second, cfg.Intent.Timeout)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GRUMP_QUEUE_HOST", "rabbit.internal")
	t.Setenv("GRUMP_QUEUE_PORT", "5673")
	t.Setenv("GRUMP_LOG_LEVEL", "debug")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "rabbit.internal", cfg.Queue.Host)
	assert.Equal(t, 5673, cfg.Queue.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, BackendDistributed, cfg.QueueBackend())
}

func TestConfig_StageConfigs(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	overrides := cfg.StageConfigs()
	require.NotNil(t, overrides)

	impl, ok := overrides["implementation"]
	require.True(t, ok)
	assert.Equal(t, 3, impl.MaxRetries)
	assert.Equal(t, 180*time.Second, impl.Timeout)
	assert.True(t, impl.Enabled, "unset override fields keep the default")

	validation, ok := overrides["validation"]
	require.True(t, ok)
	assert.False(t, validation.Enabled)
}

func TestConfig_FailFast(t *testing.T) {
	t.Run("defaults to true", func(t *testing.T) {
		cfg := &Config{}
		assert.True(t, cfg.FailFast())
	})

	t.Run("explicit false", func(t *testing.T) {
		disabled := false
		cfg := &Config{Pipeline: PipelineConfig{FailFast: &disabled}}
		assert.False(t, cfg.FailFast())
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    *Config
		validate  func(*Config) error
		wantErr   bool
		errString string
	}{
		{
			name: "valid sqlite api config",
			config: &Config{
				Server:   ServerConfig{Port: 8080},
				Database: DatabaseConfig{Driver: "sqlite", Path: "grump.db"},
			},
			validate: (*Config).ValidateAPIConfig,
		},
		{
			name: "valid postgres api config",
			config: &Config{
				Server: ServerConfig{Port: 8080},
				Database: DatabaseConfig{
					Driver:   "postgres",
					Host:     "localhost",
					Port:     5432,
					Database: "grump_jobs",
				},
				Queue: QueueConfig{Host: "localhost", Port: 5672, Name: "grump.jobs"},
			},
			validate: (*Config).ValidateAPIConfig,
		},
		{
			name: "invalid server port - too high",
			config: &Config{
				Server:   ServerConfig{Port: 70000},
				Database: DatabaseConfig{Driver: "sqlite", Path: "grump.db"},
			},
			validate:  (*Config).ValidateAPIConfig,
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name: "sqlite without path",
			config: &Config{
				Server:   ServerConfig{Port: 8080},
				Database: DatabaseConfig{Driver: "sqlite"},
			},
			validate:  (*Config).ValidateAPIConfig,
			wantErr:   true,
			errString: "database path is required",
		},
		{
			name: "postgres without host",
			config: &Config{
				Server:   ServerConfig{Port: 8080},
				Database: DatabaseConfig{Driver: "postgres", Port: 5432, Database: "grump_jobs"},
			},
			validate:  (*Config).ValidateAPIConfig,
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name: "postgres without database name",
			config: &Config{
				Server:   ServerConfig{Port: 8080},
				Database: DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432},
			},
			validate:  (*Config).ValidateAPIConfig,
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name: "unsupported driver",
			config: &Config{
				Server:   ServerConfig{Port: 8080},
				Database: DatabaseConfig{Driver: "mysql"},
			},
			validate:  (*Config).ValidateAPIConfig,
			wantErr:   true,
			errString: "unsupported database driver",
		},
		{
			name: "distributed backend with invalid queue port",
			config: &Config{
				Server:   ServerConfig{Port: 8080},
				Database: DatabaseConfig{Driver: "sqlite", Path: "grump.db"},
				Queue:    QueueConfig{Host: "localhost", Port: 0, Name: "grump.jobs"},
			},
			validate:  (*Config).ValidateAPIConfig,
			wantErr:   true,
			errString: "invalid queue port",
		},
		{
			name: "distributed backend without queue name",
			config: &Config{
				Server:   ServerConfig{Port: 8080},
				Database: DatabaseConfig{Driver: "sqlite", Path: "grump.db"},
				Queue:    QueueConfig{Host: "localhost", Port: 5672},
			},
			validate:  (*Config).ValidateAPIConfig,
			wantErr:   true,
			errString: "queue name is required",
		},
		{
			name: "valid worker config",
			config: &Config{
				Database: DatabaseConfig{Driver: "sqlite", Path: "grump.db"},
				Worker:   WorkerConfig{PollInterval: 2 * time.Second},
			},
			validate: (*Config).ValidateWorkerConfig,
		},
		{
			name: "worker without poll interval",
			config: &Config{
				Database: DatabaseConfig{Driver: "sqlite", Path: "grump.db"},
			},
			validate:  (*Config).ValidateWorkerConfig,
			wantErr:   true,
			errString: "poll_interval must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validate(tt.config)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_DistributedConfig(t *testing.T) {
	cfg, err := Load("testdata/distributed_config.yaml")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, BackendDistributed, cfg.QueueBackend())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	require.NoError(t, cfg.ValidateAPIConfig())
	require.NoError(t, cfg.ValidateWorkerConfig())
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})
}
