// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

// Config is the top-level RelayDesk configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls how RelayDesk listens for connections.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the channel repository backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
}

// DirectoryConfig selects where member profiles are read from.
type DirectoryConfig struct {
	Backend      string        `mapstructure:"backend"`
	URI          string        `mapstructure:"uri"`
	Database     string        `mapstructure:"database"`
	Collection   string        `mapstructure:"collection"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// CacheConfig sets the TTLs and bounds of the in-process caches.
type CacheConfig struct {
	ChannelListTTL     time.Duration `mapstructure:"channel_list_ttl"`
	MessageTTL         time.Duration `mapstructure:"message_ttl"`
	UserTTL            time.Duration `mapstructure:"user_ttl"`
	MaxMessageChannels int           `mapstructure:"max_message_channels"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
}

// RealtimeConfig tunes event delivery and client reconnect behavior.
type RealtimeConfig struct {
	SendTimeout        time.Duration `mapstructure:"send_timeout"`
	ReconnectBaseDelay time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `mapstructure:"reconnect_max_delay"`
	ReconnectAttempts  int           `mapstructure:"reconnect_attempts"`
}

// LoggingConfig controls the structured log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix RELAYDESK_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("directory.backend", "memory")
	v.SetDefault("directory.database", "relaydesk")
	v.SetDefault("directory.collection", "users")
	v.SetDefault("directory.query_timeout", 3*time.Second)
	v.SetDefault("cache.channel_list_ttl", 2*time.Minute)
	v.SetDefault("cache.message_ttl", time.Minute)
	v.SetDefault("cache.user_ttl", 5*time.Minute)
	v.SetDefault("cache.max_message_channels", 10)
	v.SetDefault("cache.sweep_interval", 30*time.Second)
	v.SetDefault("realtime.send_timeout", 5*time.Second)
	v.SetDefault("realtime.reconnect_base_delay", 500*time.Millisecond)
	v.SetDefault("realtime.reconnect_max_delay", 30*time.Second)
	v.SetDefault("realtime.reconnect_attempts", 6)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Environment
	v.SetEnvPrefix("RELAYDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, rderr.Errorf(rderr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, rderr.Errorf(rderr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, rderr.Errorf(rderr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns every
// problem found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateDirectory()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateRealtime()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 1 || port > 65535 {
				errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be between 1 and 65535, got %d",
					port,
				))
			}
		}
	}

	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
			"config: server.shutdown_timeout must be greater than 0, got %s",
			c.Server.ShutdownTimeout,
		))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite], got %q",
			c.Storage.Backend,
		))
	}

	return errs
}

func (c *Config) validateDirectory() []error {
	var errs []error

	switch c.Directory.Backend {
	case "memory":
	case "mongo":
		if c.Directory.URI == "" {
			errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
				"config: directory.uri must be set when directory.backend is mongo"))
		}
		if c.Directory.Database == "" {
			errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
				"config: directory.database must not be empty"))
		}
		if c.Directory.Collection == "" {
			errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
				"config: directory.collection must not be empty"))
		}
	default:
		errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
			"config: directory.backend must be one of [memory, mongo], got %q",
			c.Directory.Backend,
		))
	}

	if c.Directory.QueryTimeout <= 0 {
		errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
			"config: directory.query_timeout must be greater than 0, got %s",
			c.Directory.QueryTimeout,
		))
	}

	return errs
}

func (c *Config) validateCache() []error {
	var errs []error

	for name, ttl := range map[string]time.Duration{
		"cache.channel_list_ttl": c.Cache.ChannelListTTL,
		"cache.message_ttl":      c.Cache.MessageTTL,
		"cache.user_ttl":         c.Cache.UserTTL,
		"cache.sweep_interval":   c.Cache.SweepInterval,
	} {
		if ttl <= 0 {
			errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
				"config: %s must be greater than 0, got %s", name, ttl))
		}
	}

	if c.Cache.MaxMessageChannels <= 0 {
		errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
			"config: cache.max_message_channels must be greater than 0, got %d",
			c.Cache.MaxMessageChannels,
		))
	}

	return errs
}

func (c *Config) validateRealtime() []error {
	var errs []error

	if c.Realtime.SendTimeout <= 0 {
		errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
			"config: realtime.send_timeout must be greater than 0, got %s",
			c.Realtime.SendTimeout,
		))
	}
	if c.Realtime.ReconnectBaseDelay <= 0 {
		errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
			"config: realtime.reconnect_base_delay must be greater than 0, got %s",
			c.Realtime.ReconnectBaseDelay,
		))
	}
	if c.Realtime.ReconnectMaxDelay < c.Realtime.ReconnectBaseDelay {
		errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
			"config: realtime.reconnect_max_delay must be at least reconnect_base_delay, got %s < %s",
			c.Realtime.ReconnectMaxDelay, c.Realtime.ReconnectBaseDelay,
		))
	}
	if c.Realtime.ReconnectAttempts < 1 {
		errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
			"config: realtime.reconnect_attempts must be at least 1, got %d",
			c.Realtime.ReconnectAttempts,
		))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q",
			c.Logging.Level,
		))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, rderr.Errorf(rderr.CodeConfigValidateInvalidValue,
			"config: logging.format must be one of [text, json], got %q",
			c.Logging.Format,
		))
	}

	return errs
}
