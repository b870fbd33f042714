package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Security   SecurityConfig   `yaml:"security" envconfig:"SECURITY"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Data       DataConfig       `yaml:"data" envconfig:"DATA"`
	Enrichment EnrichmentConfig `yaml:"enrichment" envconfig:"ENRICHMENT"`
	Settlement SettlementConfig `yaml:"settlement" envconfig:"SETTLEMENT"`
	COT        COTConfig        `yaml:"cot" envconfig:"COT"`
	WebSocket  WebSocketConfig  `yaml:"websocket" envconfig:"WEBSOCKET"`
	Schedule   ScheduleConfig   `yaml:"schedule" envconfig:"SCHEDULE"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port             int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	MaxHeaderBytes   int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" validate:"min=1"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT" validate:"gt=0"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" validate:"min=1"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"min=1"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// DataConfig contains workspace location configuration. An empty BaseDir
// means the workspace is resolved relative to the executable.
type DataConfig struct {
	BaseDir string `yaml:"base_dir" envconfig:"BASE_DIR"`
}

// EnrichmentConfig controls the open-window enrichment stage
type EnrichmentConfig struct {
	SymbolPrefix  string `yaml:"symbol_prefix" envconfig:"SYMBOL_PREFIX"`
	WindowMinutes int    `yaml:"window_minutes" envconfig:"WINDOW_MINUTES" validate:"min=1,max=240"`
	PitChangeDate string `yaml:"pit_change_date" envconfig:"PIT_CHANGE_DATE" validate:"datetime=2006-01-02"`
	EarlyOpen     string `yaml:"early_open" envconfig:"EARLY_OPEN" validate:"datetime=15:04"`
	LateOpen      string `yaml:"late_open" envconfig:"LATE_OPEN" validate:"datetime=15:04"`
	Workers       int    `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=64"`
}

// PitChange returns the session schedule change date. Bars on or after this
// date open at EarlyOpen, bars strictly before open at LateOpen.
func (e EnrichmentConfig) PitChange() time.Time {
	t, _ := time.Parse("2006-01-02", e.PitChangeDate)
	return t
}

// SettlementConfig controls the settlement gap stages
type SettlementConfig struct {
	Intervals []string `yaml:"intervals" envconfig:"INTERVALS" validate:"min=1,dive,oneof=overnight weekly monthly annualy"`
	OpenTypes []string `yaml:"open_types" envconfig:"OPEN_TYPES" validate:"min=1,dive,oneof=true_open sliding_open"`
}

// COTConfig controls the COT signal correlation stage
type COTConfig struct {
	MinDTE    int `yaml:"min_dte" envconfig:"MIN_DTE" validate:"min=0"`
	MaxDTE    int `yaml:"max_dte" envconfig:"MAX_DTE" validate:"gtefield=MinDTE"`
	KeyMinute int `yaml:"key_minute" envconfig:"KEY_MINUTE" validate:"min=1,max=240"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" validate:"min=1"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" validate:"min=1"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" validate:"gt=0"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" validate:"gt=0"`
}

// ScheduleConfig controls the optional recurring pipeline run
type ScheduleConfig struct {
	Enabled bool          `yaml:"enabled" envconfig:"ENABLED"`
	Every   time.Duration `yaml:"every" envconfig:"EVERY"`
}

var validate = validator.New()

// Load loads configuration from defaults, an optional config file, and
// environment variables, in that order of precedence (lowest first).
func Load() (*Config, error) {
	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configFile, err)
		}
	}

	if err := envconfig.Process("RESEARCH", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays configuration from a YAML file onto cfg. Keys absent
// from the file keep their current values.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// ResolvePaths returns the workspace paths for this configuration. An
// explicit base dir takes precedence over the executable location.
func (c *Config) ResolvePaths() (*Paths, error) {
	if c.Data.BaseDir != "" {
		return PathsFrom(c.Data.BaseDir), nil
	}
	return GetPaths()
}

// Validate checks the configuration and normalizes the logging section
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Schedule.Enabled && c.Schedule.Every <= 0 {
		return fmt.Errorf("schedule interval must be positive when the schedule is enabled")
	}

	// Logs are always structured JSON
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "console" {
		c.Logging.Output = "both"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/research.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	// Check for config file in common locations
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
		"../../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration. Defaults live here rather than in
// struct tags so that file and environment overlays are never clobbered.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     15 * time.Second,
			IdleTimeout:      60 * time.Second,
			MaxHeaderBytes:   1 << 20, // 1MB
			ShutdownTimeout:  30 * time.Second,
			OperationTimeout: 2 * time.Hour,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Output:      "both",
			FilePath:    "logs/research.log",
			Development: false,
		},
		Data: DataConfig{
			BaseDir: "",
		},
		Enrichment: EnrichmentConfig{
			SymbolPrefix:  "LE",
			WindowMinutes: 60,
			PitChangeDate: "2015-07-02",
			EarlyOpen:     "09:30",
			LateOpen:      "10:05",
			Workers:       4,
		},
		Settlement: SettlementConfig{
			Intervals: []string{"overnight", "weekly", "monthly", "annualy"},
			OpenTypes: []string{"true_open", "sliding_open"},
		},
		COT: COTConfig{
			MinDTE:    25,
			MaxDTE:    140,
			KeyMinute: 60,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Every:   24 * time.Hour,
		},
	}
}
