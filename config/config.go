// Package config provides the runtime configuration record.
//
// Configuration is layered: defaults, then an optional TOML file, then
// NUVOM_* environment variables. The record is read once at startup and
// treated as immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all runtime settings consumed by the execution engine.
//
// Duration-valued settings are expressed in seconds in files and the
// environment to stay language-neutral; accessors convert them.
type Config struct {
	Environment string `toml:"environment"`
	LogLevel    string `toml:"log_level"`

	QueueBackend         string `toml:"queue_backend"`
	ResultBackend        string `toml:"result_backend"`
	SerializationBackend string `toml:"serialization_backend"`

	MaxWorkers        int     `toml:"max_workers"`
	BatchSize         int     `toml:"batch_size"`
	JobTimeoutSecs    float64 `toml:"job_timeout_secs"`
	TimeoutPolicy     string  `toml:"timeout_policy"`
	ShutdownGraceSecs float64 `toml:"shutdown_grace_secs"`

	QueueDir       string `toml:"queue_dir"`
	ResultDir      string `toml:"result_dir"`
	ManifestPath   string `toml:"manifest_path"`
	PluginPath     string `toml:"plugin_path"`
	SQLiteQueue    string `toml:"sqlite_queue_path"`
	SQLiteResult   string `toml:"sqlite_result_path"`
	PrometheusPort int    `toml:"prometheus_port"`

	VisibilityTimeoutSecs float64 `toml:"visibility_timeout_secs"`
	PullIntervalSecs      float64 `toml:"pull_interval_secs"`
	QueueCapacity         int     `toml:"queue_capacity"`
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		Environment:           "dev",
		LogLevel:              "info",
		QueueBackend:          "memory",
		ResultBackend:         "memory",
		SerializationBackend:  "msgpack",
		MaxWorkers:            4,
		BatchSize:             8,
		JobTimeoutSecs:        60,
		TimeoutPolicy:         "fail",
		ShutdownGraceSecs:     10,
		QueueDir:              ".nuvom/queue",
		ResultDir:             ".nuvom/results",
		PluginPath:            "nuvom.plugins.toml",
		SQLiteQueue:           ".nuvom/queue.db",
		SQLiteResult:          ".nuvom/results.db",
		VisibilityTimeoutSecs: 30,
		PullIntervalSecs:      0.05,
	}
}

func secsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// JobTimeout returns the default per-job wall-clock limit.
func (c *Config) JobTimeout() time.Duration {
	return secsDuration(c.JobTimeoutSecs)
}

// ShutdownGrace returns the bound on waiting for running jobs during
// shutdown.
func (c *Config) ShutdownGrace() time.Duration {
	return secsDuration(c.ShutdownGraceSecs)
}

// VisibilityTimeout returns the lease duration for persistent queues.
func (c *Config) VisibilityTimeout() time.Duration {
	return secsDuration(c.VisibilityTimeoutSecs)
}

// PullInterval returns how often the dispatcher polls for new batches.
func (c *Config) PullInterval() time.Duration {
	return secsDuration(c.PullIntervalSecs)
}

// Load builds the configuration from defaults, the TOML file at path
// (skipped when path is empty or missing) and NUVOM_* environment
// overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envString(key string, target *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envFloat(key string, target *float64) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func (c *Config) applyEnv() {
	envString("NUVOM_ENVIRONMENT", &c.Environment)
	envString("NUVOM_LOG_LEVEL", &c.LogLevel)
	envString("NUVOM_QUEUE_BACKEND", &c.QueueBackend)
	envString("NUVOM_RESULT_BACKEND", &c.ResultBackend)
	envString("NUVOM_SERIALIZATION_BACKEND", &c.SerializationBackend)
	envInt("NUVOM_MAX_WORKERS", &c.MaxWorkers)
	envInt("NUVOM_BATCH_SIZE", &c.BatchSize)
	envFloat("NUVOM_JOB_TIMEOUT_SECS", &c.JobTimeoutSecs)
	envString("NUVOM_TIMEOUT_POLICY", &c.TimeoutPolicy)
	envFloat("NUVOM_SHUTDOWN_GRACE_SECS", &c.ShutdownGraceSecs)
	envString("NUVOM_QUEUE_DIR", &c.QueueDir)
	envString("NUVOM_RESULT_DIR", &c.ResultDir)
	envString("NUVOM_MANIFEST_PATH", &c.ManifestPath)
	envString("NUVOM_PLUGIN_PATH", &c.PluginPath)
	envString("NUVOM_SQLITE_QUEUE_PATH", &c.SQLiteQueue)
	envString("NUVOM_SQLITE_RESULT_PATH", &c.SQLiteResult)
	envInt("NUVOM_PROMETHEUS_PORT", &c.PrometheusPort)
	envFloat("NUVOM_VISIBILITY_TIMEOUT_SECS", &c.VisibilityTimeoutSecs)
	envFloat("NUVOM_PULL_INTERVAL_SECS", &c.PullIntervalSecs)
	envInt("NUVOM_QUEUE_CAPACITY", &c.QueueCapacity)
}

// Validate rejects records that cannot drive a runtime.
func (c *Config) Validate() error {
	switch c.Environment {
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("invalid environment: %q", c.Environment)
	}
	switch c.TimeoutPolicy {
	case "retry", "fail", "ignore":
	default:
		return fmt.Errorf("invalid timeout policy: %q", c.TimeoutPolicy)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be positive, got %d", c.MaxWorkers)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.ShutdownGraceSecs < 0 {
		return fmt.Errorf("shutdown_grace_secs must not be negative")
	}
	return nil
}
