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
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockEchoNATSConnection delivers published messages to subscribers synchronously
type MockEchoNATSConnection struct {
	mu          sync.RWMutex
	subscribers map[string][]nats.MsgHandler
	published   []*nats.Msg
	connected   bool
	errors      map[string]error
}

func NewMockEchoNATSConnection() *MockEchoNATSConnection {
	return &MockEchoNATSConnection{
		subscribers: make(map[string][]nats.MsgHandler),
		connected:   true,
		errors:      make(map[string]error),
	}
}

func (m *MockEchoNATSConnection) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, nats.ErrConnectionClosed
	}
	if err, exists := m.errors[subject]; exists {
		return nil, err
	}

	m.subscribers[subject] = append(m.subscribers[subject], handler)
	return &nats.Subscription{}, nil
}

func (m *MockEchoNATSConnection) Publish(subject string, data []byte) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nats.ErrConnectionClosed
	}
	if err, exists := m.errors[subject]; exists {
		m.mu.Unlock()
		return err
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	m.published = append(m.published, msg)
	handlers := m.subscribers[subject]
	m.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}
	return nil
}

func (m *MockEchoNATSConnection) Published() []*nats.Msg {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*nats.Msg(nil), m.published...)
}

func (m *MockEchoNATSConnection) SetError(subject string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[subject] = err
}

func (m *MockEchoNATSConnection) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MockEchoNATSConnection) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func publishControl(t *testing.T, conn *MockEchoNATSConnection, subject string, msg ControlMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Publish(subject, data))
}

func TestControlMessage_Validate(t *testing.T) {
	for _, cmd := range []string{
		CommandStart, CommandPause, CommandRestart, CommandToggle,
		CommandSuspend, CommandResume, CommandMute, CommandUnmute, CommandVolume,
	} {
		assert.NoError(t, ControlMessage{Command: cmd}.Validate(), cmd)
	}
	assert.Error(t, ControlMessage{Command: "reboot"}.Validate())
	assert.Error(t, ControlMessage{}.Validate())
}

func TestControlSubscriber_Subjects(t *testing.T) {
	assert.Equal(t, "echo.kitchen.control", ControlSubject("kitchen"))
	assert.Equal(t, "echo.kitchen.state", StateSubject("kitchen"))
}

func TestControlSubscriber_QueuesCommands(t *testing.T) {
	conn := NewMockEchoNATSConnection()
	cs := NewControlSubscriber(conn, "kitchen", 4, testLogger())
	require.NoError(t, cs.Start())

	publishControl(t, conn, ControlSubject("kitchen"), ControlMessage{RequestID: "r1", Command: CommandPause})
	publishControl(t, conn, BroadcastControlSubject, ControlMessage{RequestID: "r2", Command: CommandVolume, Level: -300})
	publishControl(t, conn, ControlSubject("hallway"), ControlMessage{RequestID: "r3", Command: CommandStart})

	require.Len(t, cs.Commands(), 2, "other devices' subjects are not received")
	first := <-cs.Commands()
	assert.Equal(t, "r1", first.RequestID)
	assert.Equal(t, CommandPause, first.Command)
	second := <-cs.Commands()
	assert.Equal(t, -300, second.Level)
}

func TestControlSubscriber_RejectsBadMessages(t *testing.T) {
	conn := NewMockEchoNATSConnection()
	cs := NewControlSubscriber(conn, "kitchen", 4, testLogger())
	require.NoError(t, cs.Start())

	require.NoError(t, conn.Publish(ControlSubject("kitchen"), []byte("{not json")))
	publishControl(t, conn, ControlSubject("kitchen"), ControlMessage{Command: "reboot"})

	assert.Empty(t, cs.Commands())
}

func TestControlSubscriber_ChannelOverflow(t *testing.T) {
	conn := NewMockEchoNATSConnection()
	cs := NewControlSubscriber(conn, "kitchen", 2, testLogger())
	require.NoError(t, cs.Start())

	// The handler must never block the NATS delivery goroutine
	for i := 0; i < 10; i++ {
		publishControl(t, conn, ControlSubject("kitchen"), ControlMessage{Command: CommandToggle})
	}
	assert.Len(t, cs.Commands(), 2)
}

func TestControlSubscriber_SubscribeErrors(t *testing.T) {
	conn := NewMockEchoNATSConnection()
	conn.SetError(BroadcastControlSubject, errors.New("permissions violation"))
	cs := NewControlSubscriber(conn, "kitchen", 1, testLogger())

	err := cs.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), BroadcastControlSubject)

	closed := NewMockEchoNATSConnection()
	closed.Close()
	assert.ErrorIs(t, NewControlSubscriber(closed, "kitchen", 1, testLogger()).Start(), nats.ErrConnectionClosed)
}

func TestControlSubscriber_Close(t *testing.T) {
	conn := NewMockEchoNATSConnection()
	cs := NewControlSubscriber(conn, "kitchen", 1, testLogger())
	cs.Close()
	assert.False(t, conn.Connected())

	// Closing without a connection must not panic
	NewControlSubscriber(nil, "kitchen", 1, testLogger()).Close()
}

func TestNewEchoNATSConnectionAdapter(t *testing.T) {
	adapter := NewEchoNATSConnectionAdapter(nil)
	require.NotNil(t, adapter)
	assert.Nil(t, adapter.conn)
}
