// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the a2a-taskd configuration from defaults, an optional config file, the
// environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by [Load].
const EnvPrefix = "MCP"

// Config keys. Each key is also read from the environment as EnvPrefix_KEY in upper case.
const (
	KeyHost               = "host"
	KeyPort               = "port"
	KeyDebug              = "debug"
	KeyLogFormat          = "log_format"
	KeyPersistenceEnabled = "persistence_enabled"
	KeyStoragePath        = "storage_path"
	KeyTelemetryEnabled   = "telemetry_enabled"
	KeyStageDelay         = "executor_stage_delay"
	KeyStoreMaxTasks      = "store_max_tasks"
	KeyStoreTTL           = "store_ttl"
	KeyH2C                = "http_h2c"
	KeyShutdownTimeout    = "shutdown_timeout"
)

// Config is the runtime configuration of the server binary.
type Config struct {
	Host  string
	Port  int
	Debug bool

	// LogFormat is "text" or "json".
	LogFormat string

	PersistenceEnabled bool
	// StoragePath is the directory holding the task database.
	StoragePath string

	// TelemetryEnabled exposes Prometheus metrics at /metrics.
	TelemetryEnabled bool

	// StageDelay paces the stages of a streamed task.
	StageDelay time.Duration
	// StoreMaxTasks bounds the number of retained tasks. Zero means unbounded.
	StoreMaxTasks int
	// StoreTTL expires tasks this long after their last update. Zero disables expiry.
	StoreTTL time.Duration

	// H2C serves HTTP/2 without TLS next to HTTP/1.1.
	H2C             bool
	ShutdownTimeout time.Duration
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyHost, "0.0.0.0")
	v.SetDefault(KeyPort, 8000)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyPersistenceEnabled, false)
	v.SetDefault(KeyStoragePath, "./data")
	v.SetDefault(KeyTelemetryEnabled, false)
	v.SetDefault(KeyStageDelay, time.Second)
	v.SetDefault(KeyStoreMaxTasks, 0)
	v.SetDefault(KeyStoreTTL, time.Duration(0))
	v.SetDefault(KeyH2C, false)
	v.SetDefault(KeyShutdownTimeout, 10*time.Second)
}

// Load reads the configuration from v. If file is not empty it is read first; environment
// variables and flags bound to v take precedence over it.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Host:               v.GetString(KeyHost),
		Port:               v.GetInt(KeyPort),
		Debug:              v.GetBool(KeyDebug),
		LogFormat:          strings.ToLower(v.GetString(KeyLogFormat)),
		PersistenceEnabled: v.GetBool(KeyPersistenceEnabled),
		StoragePath:        v.GetString(KeyStoragePath),
		TelemetryEnabled:   v.GetBool(KeyTelemetryEnabled),
		StageDelay:         v.GetDuration(KeyStageDelay),
		StoreMaxTasks:      v.GetInt(KeyStoreMaxTasks),
		StoreTTL:           v.GetDuration(KeyStoreTTL),
		H2C:                v.GetBool(KeyH2C),
		ShutdownTimeout:    v.GetDuration(KeyShutdownTimeout),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every invalid setting of c.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.PersistenceEnabled && c.StoragePath == "" {
		errs = append(errs, errors.New("storage path is required when persistence is enabled"))
	}
	if c.StageDelay < 0 {
		errs = append(errs, errors.New("executor stage delay cannot be negative"))
	}
	if c.StoreMaxTasks < 0 {
		errs = append(errs, errors.New("store max tasks cannot be negative"))
	}
	if c.StoreTTL < 0 {
		errs = append(errs, errors.New("store ttl cannot be negative"))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown timeout cannot be negative"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
