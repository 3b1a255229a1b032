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

	"github.com/loqalabs/loqa-echo-go/internal/echo"
)

// StateMessage announces a pipeline transition
type StateMessage struct {
	DeviceID  string `json:"device_id"`
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp int64  `json:"timestamp"`
}

// StateSubject returns the subject state changes are published on
func StateSubject(deviceID string) string {
	return fmt.Sprintf("echo.%s.state", deviceID)
}

// StatePublisher publishes pipeline transitions
type StatePublisher struct {
	natsConn  EchoNATSConnection
	deviceID  string
	sessionID string
	logger    *slog.Logger
	now       func() time.Time
}

// NewStatePublisher creates a publisher for deviceID
func NewStatePublisher(natsConn EchoNATSConnection, deviceID, sessionID string, logger *slog.Logger) *StatePublisher {
	return &StatePublisher{
		natsConn:  natsConn,
		deviceID:  deviceID,
		sessionID: sessionID,
		logger:    logger,
		now:       time.Now,
	}
}

// Publish sends one transition. Suitable as an echo.StateChangeFunc.
func (sp *StatePublisher) Publish(from, to echo.State) {
	data, err := json.Marshal(StateMessage{
		DeviceID:  sp.deviceID,
		SessionID: sp.sessionID,
		From:      from.String(),
		To:        to.String(),
		Timestamp: sp.now().UnixMilli(),
	})
	if err != nil {
		sp.logger.Error("failed to marshal state message", "err", err)
		return
	}
	if err := sp.natsConn.Publish(StateSubject(sp.deviceID), data); err != nil {
		sp.logger.Warn("failed to publish state", "to", to, "err", err)
	}
}
