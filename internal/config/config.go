package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Workflows WorkflowsConfig `mapstructure:"workflows"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration.
// An empty MigrationsDir applies the migrations embedded in the binary.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// EngineConfig holds options applied to every workflow engine
type EngineConfig struct {
	MaxAutoTransitions int  `mapstructure:"max_auto_transitions"`
	AutoEvaluate       bool `mapstructure:"auto_evaluate"`
	Debug              bool `mapstructure:"debug"`
}

// SchedulerConfig holds the auto-transition poller configuration
type SchedulerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Cron        string `mapstructure:"cron"`
	Concurrency int    `mapstructure:"concurrency"`
	BatchSize   int    `mapstructure:"batch_size"`
}

// WorkflowsConfig holds declarative definition settings
type WorkflowsConfig struct {
	DefinitionsDir string `mapstructure:"definitions_dir"`
	Builtin        bool   `mapstructure:"builtin"`
}

// Load loads configuration from file and environment variables.
// An empty configPath uses defaults and environment only.
func Load(configPath string) (*Config, error) {
	return LoadWith(viper.New(), configPath)
}

// LoadWith loads configuration into v, which may already carry bound flags
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	v.SetEnvPrefix("WORKFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.mode", "release")

	// Database defaults
	v.SetDefault("database.path", "data/workflow.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Engine defaults
	v.SetDefault("engine.max_auto_transitions", 10)
	v.SetDefault("engine.auto_evaluate", true)
	v.SetDefault("engine.debug", false)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cron", "@every 1m")
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.batch_size", 100)

	// Workflow defaults
	v.SetDefault("workflows.definitions_dir", "")
	v.SetDefault("workflows.builtin", true)
}

// bindEnvVars binds deployment-specific environment variables
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("logger.level", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Engine.MaxAutoTransitions < 1 {
		return fmt.Errorf("engine.max_auto_transitions must be at least 1, got %d", c.Engine.MaxAutoTransitions)
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Cron); err != nil {
			return fmt.Errorf("scheduler.cron %q is invalid: %w", c.Scheduler.Cron, err)
		}
		if c.Scheduler.Concurrency < 1 {
			return fmt.Errorf("scheduler.concurrency must be at least 1")
		}
		if c.Scheduler.BatchSize < 1 {
			return fmt.Errorf("scheduler.batch_size must be at least 1")
		}
	}

	if !c.Workflows.Builtin && c.Workflows.DefinitionsDir == "" {
		return fmt.Errorf("workflows.definitions_dir is required when builtin workflows are disabled")
	}

	return nil
}
