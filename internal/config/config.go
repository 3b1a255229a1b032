/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Backend names
const (
	BackendPortAudio = "portaudio"
	BackendMock      = "mock"
)

// Config seeds one echo session. It is not written back.
type Config struct {
	LogLevel   string     `mapstructure:"loglevel"`
	LogFile    string     `mapstructure:"logfile"`
	Backend    string     `mapstructure:"backend"`
	SinkPath   string     `mapstructure:"sinkpath"`
	QueueDepth int        `mapstructure:"queuedepth"`
	Volume     int        `mapstructure:"volume"`
	ExportWAV  string     `mapstructure:"exportwav"`
	NATS       NATSConfig `mapstructure:"nats"`
	Metrics    Metrics    `mapstructure:"metrics"`
}

// NATSConfig configures the optional remote control surface
type NATSConfig struct {
	URL      string `mapstructure:"url"`
	DeviceID string `mapstructure:"deviceid"`
}

// Metrics configures the optional Prometheus endpoint
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

// SetViperDefaults sets the defaults on v
func SetViperDefaults(v *viper.Viper) {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "echo"
	}

	v.SetDefault("loglevel", "info")
	v.SetDefault("logfile", "")
	v.SetDefault("backend", BackendPortAudio)
	v.SetDefault("sinkpath", "echo-capture.pcm")
	v.SetDefault("queuedepth", 4)
	v.SetDefault("volume", 0)
	v.SetDefault("exportwav", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.deviceid", hostname)
	v.SetDefault("metrics.addr", "")
}

// Load reads configFilePath if it exists, then applies ECHO_* environment
// overrides. A missing file is not an error.
func Load(configFilePath string) (*Config, error) {
	v := viper.New()
	SetViperDefaults(v)

	v.SetEnvPrefix("echo")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFilePath != "" {
		v.SetConfigFile(configFilePath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				slog.Info("no config file found", "configFilePath", configFilePath)
			} else {
				return nil, fmt.Errorf("error during config read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "none", "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("unexpected log level %q", c.LogLevel)
	}
	switch c.Backend {
	case BackendPortAudio, BackendMock:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.QueueDepth < 2 || c.QueueDepth > 16 {
		return fmt.Errorf("queuedepth must be within [2, 16], got %d", c.QueueDepth)
	}
	if c.SinkPath == "" {
		return errors.New("sinkpath must not be empty")
	}
	return nil
}
