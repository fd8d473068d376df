package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreConfig holds interval store configurations.
type StoreConfig struct {
	DataDir     string `yaml:"data_dir"`
	BatchSize   int    `yaml:"batch_size"`
	Compression string `yaml:"compression"` // "none", "snappy", "lz4" or "zstd"
	CacheSize   int    `yaml:"cache_size"`
}

// BuilderConfig holds history builder configurations.
type BuilderConfig struct {
	PageSize        int    `yaml:"page_size"`
	DuplicatePolicy string `yaml:"duplicate_policy"` // "overwrite", "reject" or "truncate"
	Timeout         string `yaml:"timeout"`          // empty means no limit
}

// FieldConfig declares one event field of a state analysis.
type FieldConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // "int", "float", "string" or "bool"
	Required bool   `yaml:"required"`
}

// StateConfig describes a generic begin/end state analysis.
type StateConfig struct {
	BeginEvent  string        `yaml:"begin_event"`
	EndEvent    string        `yaml:"end_event"`
	KeyField    string        `yaml:"key_field"`
	BeginFields []FieldConfig `yaml:"begin_fields"`
	EndFields   []FieldConfig `yaml:"end_fields"`
}

// LatencyRuleConfig sets alert limits for one syscall.
type LatencyRuleConfig struct {
	Name        string  `yaml:"name"`
	MaxP99      float64 `yaml:"max_p99"`
	MaxDuration int64   `yaml:"max_duration"`
}

// LatencyConfig holds the system call latency analysis configurations.
type LatencyConfig struct {
	SyscallEntryPrefix       string              `yaml:"syscall_entry_prefix"`
	CompatSyscallEntryPrefix string              `yaml:"compat_syscall_entry_prefix"`
	SyscallExitPrefix        string              `yaml:"syscall_exit_prefix"`
	TidField                 string              `yaml:"tid_field"`
	RetField                 string              `yaml:"ret_field"`
	Alerts                   []LatencyRuleConfig `yaml:"alerts"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text" or "json"
	Output string `yaml:"output"` // e.g., "stdout", "stderr", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// DebugConfig holds debugging-related configurations.
type DebugConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ListenAddress    string `yaml:"listen_address"`
	PProfEnabled     bool   `yaml:"pprof_enabled"`
	MetricsEnabled   bool   `yaml:"metrics_enabled"`
	MonitorUIEnabled bool   `yaml:"monitor_ui_enabled"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// Config is the top-level configuration struct.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Builder BuilderConfig `yaml:"builder"`
	State   StateConfig   `yaml:"state"`
	Latency LatencyConfig `yaml:"latency"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Debug   DebugConfig   `yaml:"debug"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			DataDir:     "./data",
			BatchSize:   1000,
			Compression: "snappy",
			CacheSize:   4096,
		},
		Builder: BuilderConfig{
			PageSize:        1000,
			DuplicatePolicy: "overwrite",
		},
		State: StateConfig{
			BeginEvent: "state_begin",
			EndEvent:   "state_end",
			KeyField:   "tid",
			BeginFields: []FieldConfig{
				{Name: "tid", Type: "int", Required: true},
				{Name: "state", Type: "string"},
			},
			EndFields: []FieldConfig{
				{Name: "tid", Type: "int", Required: true},
			},
		},
		Latency: LatencyConfig{
			SyscallEntryPrefix:       "syscall_entry_",
			CompatSyscallEntryPrefix: "compat_syscall_entry_",
			SyscallExitPrefix:        "syscall_exit_",
			TidField:                 "tid",
			RetField:                 "ret",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			File:   "nexustrace.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
		Debug: DebugConfig{
			Enabled:          false,
			ListenAddress:    "127.0.0.1:6060",
			PProfEnabled:     true,
			MetricsEnabled:   true,
			MonitorUIEnabled: true,
		},
	}
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
