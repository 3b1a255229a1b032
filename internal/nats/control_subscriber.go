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

package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Command names accepted on the control subjects
const (
	CommandStart   = "start"
	CommandPause   = "pause"
	CommandRestart = "restart"
	CommandToggle  = "toggle"
	CommandSuspend = "suspend"
	CommandResume  = "resume"
	CommandMute    = "mute"
	CommandUnmute  = "unmute"
	CommandVolume  = "volume"
)

// BroadcastControlSubject reaches every echo device
const BroadcastControlSubject = "echo.broadcast.control"

// ControlMessage is a remote request to drive the echo pipeline
type ControlMessage struct {
	RequestID string `json:"request_id"`
	Command   string `json:"command"`
	Level     int    `json:"level,omitempty"` // Millibels, for "volume"
}

// Validate checks the command is known
func (m ControlMessage) Validate() error {
	switch m.Command {
	case CommandStart, CommandPause, CommandRestart, CommandToggle,
		CommandSuspend, CommandResume, CommandMute, CommandUnmute, CommandVolume:
		return nil
	default:
		return fmt.Errorf("unknown command %q", m.Command)
	}
}

// EchoNATSConnection interface for dependency injection
type EchoNATSConnection interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
	Close()
}

// EchoNATSConnectionAdapter adapts *nats.Conn to EchoNATSConnection interface
type EchoNATSConnectionAdapter struct {
	conn *nats.Conn
}

func NewEchoNATSConnectionAdapter(conn *nats.Conn) *EchoNATSConnectionAdapter {
	return &EchoNATSConnectionAdapter{conn: conn}
}

func (r *EchoNATSConnectionAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return r.conn.Subscribe(subject, cb)
}

func (r *EchoNATSConnectionAdapter) Publish(subject string, data []byte) error {
	return r.conn.Publish(subject, data)
}

func (r *EchoNATSConnectionAdapter) Close() {
	r.conn.Close()
}

// Connect dials NATS, retrying a few times before giving up
func Connect(natsURL string, logger *slog.Logger) (*EchoNATSConnectionAdapter, error) {
	var nc *nats.Conn
	var err error

	for i := 0; i < 5; i++ {
		nc, err = nats.Connect(natsURL, nats.Name("loqa-echo"))
		if err == nil {
			break
		}
		logger.Warn("failed to connect to NATS", "attempt", i+1, "err", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after 5 attempts: %w", err)
	}

	logger.Info("connected to NATS", "url", natsURL)
	return NewEchoNATSConnectionAdapter(nc), nil
}

// ControlSubscriber receives control messages and queues them for the
// goroutine that owns the engine. The NATS handler never calls the engine.
type ControlSubscriber struct {
	natsConn EchoNATSConnection
	deviceID string
	commands chan ControlMessage
	logger   *slog.Logger
}

// NewControlSubscriber creates a subscriber with room for capacity pending commands
func NewControlSubscriber(natsConn EchoNATSConnection, deviceID string, capacity int, logger *slog.Logger) *ControlSubscriber {
	return &ControlSubscriber{
		natsConn: natsConn,
		deviceID: deviceID,
		commands: make(chan ControlMessage, capacity),
		logger:   logger.With("deviceID", deviceID),
	}
}

// ControlSubject returns the device-specific control subject
func ControlSubject(deviceID string) string {
	return fmt.Sprintf("echo.%s.control", deviceID)
}

// Start begins listening for control messages
func (cs *ControlSubscriber) Start() error {
	for _, subject := range []string{ControlSubject(cs.deviceID), BroadcastControlSubject} {
		if _, err := cs.natsConn.Subscribe(subject, cs.handleControlMessage); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
	}

	cs.logger.Info("subscribed to control topics",
		"device", ControlSubject(cs.deviceID),
		"broadcast", BroadcastControlSubject,
	)
	return nil
}

// Commands returns the channel of queued control messages
func (cs *ControlSubscriber) Commands() <-chan ControlMessage {
	return cs.commands
}

// handleControlMessage decodes a message and queues it without blocking
func (cs *ControlSubscriber) handleControlMessage(msg *nats.Msg) {
	var ctrl ControlMessage
	if err := json.Unmarshal(msg.Data, &ctrl); err != nil {
		cs.logger.Warn("failed to unmarshal control message", "subject", msg.Subject, "err", err)
		return
	}
	if err := ctrl.Validate(); err != nil {
		cs.logger.Warn("rejected control message", "request", ctrl.RequestID, "err", err)
		return
	}

	select {
	case cs.commands <- ctrl:
		cs.logger.Debug("queued control message", "request", ctrl.RequestID, "command", ctrl.Command)
	default:
		cs.logger.Warn("control queue full, dropping message", "request", ctrl.RequestID, "command", ctrl.Command)
	}
}

// Close closes the NATS connection
func (cs *ControlSubscriber) Close() {
	if cs.natsConn != nil {
		cs.natsConn.Close()
		cs.logger.Info("NATS connection closed")
	}
}
