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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "echo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "a missing config file is not an error")

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendPortAudio, cfg.Backend)
	assert.Equal(t, "echo-capture.pcm", cfg.SinkPath)
	assert.Equal(t, 4, cfg.QueueDepth)
	assert.Equal(t, 0, cfg.Volume)
	assert.Empty(t, cfg.NATS.URL)
	assert.NotEmpty(t, cfg.NATS.DeviceID, "device id defaults to the hostname")
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
loglevel: debug
backend: mock
sinkpath: /tmp/out.pcm
queuedepth: 3
volume: -1200
exportwav: /tmp/out.wav
nats:
  url: nats://localhost:4222
  deviceid: kitchen
metrics:
  addr: ":9464"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendMock, cfg.Backend)
	assert.Equal(t, "/tmp/out.pcm", cfg.SinkPath)
	assert.Equal(t, 3, cfg.QueueDepth)
	assert.Equal(t, -1200, cfg.Volume)
	assert.Equal(t, "/tmp/out.wav", cfg.ExportWAV)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "kitchen", cfg.NATS.DeviceID)
	assert.Equal(t, ":9464", cfg.Metrics.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "queuedepth: 3\n")
	t.Setenv("ECHO_QUEUEDEPTH", "8")
	t.Setenv("ECHO_NATS_DEVICEID", "hallway")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.QueueDepth)
	assert.Equal(t, "hallway", cfg.NATS.DeviceID)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(writeConfig(t, "queuedepth: [1, 2\n"))
	assert.ErrorContains(t, err, "config read")

	_, err = Load(writeConfig(t, "queuedepth: 1\n"))
	assert.ErrorContains(t, err, "queuedepth")

	_, err = Load(writeConfig(t, "backend: alsa\n"))
	assert.ErrorContains(t, err, "unknown backend")
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{LogLevel: "info", Backend: BackendMock, SinkPath: "x.pcm", QueueDepth: 4}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }},
		{"backend", func(c *Config) { c.Backend = "" }},
		{"queue too shallow", func(c *Config) { c.QueueDepth = 1 }},
		{"queue too deep", func(c *Config) { c.QueueDepth = 17 }},
		{"sink path", func(c *Config) { c.SinkPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
