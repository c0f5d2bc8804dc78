// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

const (
	testChannel = "#test"
	testTopic   = "irc/bridge"
)

// sentMessage records one ChatSession.Send call.
type sentMessage struct {
	To   string
	Text string
}

// mockChat is a ChatSession that records sent messages.
type mockChat struct {
	events chan ChatEvent

	mu      sync.Mutex
	sent    []sentMessage
	sendErr error
}

func newMockChat() *mockChat {
	return &mockChat{events: make(chan ChatEvent, 16)}
}

func (m *mockChat) Events() <-chan ChatEvent {
	return m.events
}

func (m *mockChat) Send(destination, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{To: destination, Text: text})
	return nil
}

func (m *mockChat) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.sent))
	copy(cp, m.sent)
	return cp
}

// published records one BusSession.Publish call.
type published struct {
	Topic   string
	Payload []byte
}

// Envelope decodes the payload, failing the test if it is not one.
func (p published) Envelope(t *testing.T) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(p.Payload, &env); err != nil {
		t.Fatalf("published payload %q is not an envelope: %v", p.Payload, err)
	}
	return env
}

// mockBus is a BusSession that records subscriptions and publishes.
type mockBus struct {
	events chan BusEvent

	mu            sync.Mutex
	subscriptions []string
	published     []published
	publishErr    error
}

func newMockBus() *mockBus {
	return &mockBus{events: make(chan BusEvent, 16)}
}

func (m *mockBus) Events() <-chan BusEvent {
	return m.events
}

func (m *mockBus) Subscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, topic)
	return nil
}

func (m *mockBus) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{Topic: topic, Payload: payload})
	return nil
}

func (m *mockBus) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(m.subscriptions))
	copy(cp, m.subscriptions)
	return cp
}

func (m *mockBus) Published() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]published, len(m.published))
	copy(cp, m.published)
	return cp
}

func (m *mockBus) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = nil
	m.published = nil
}

var errMockFailure = errors.New("mock failure")

func testConfig() *Config {
	return &Config{
		IRC: IRCConfig{
			Server:      "irc.example.com:6667",
			Channel:     testChannel,
			Nickname:    "redbot-7",
			QuitMessage: "Farewell my friends",
		},
		MQTT: MQTTConfig{
			Server:   "broker.example.com",
			Topic:    testTopic,
			ClientID: "irc-mqtt-bridge-redbot-7",
		},
	}
}

// newTestBridge returns a bridge over fresh mocks. The bus is not
// connected yet.
func newTestBridge() (*Bridge, *mockChat, *mockBus) {
	chat := newMockChat()
	bus := newMockBus()
	return New(testConfig(), chat, bus, zerolog.Nop()), chat, bus
}

// newConnectedBridge returns a bridge whose bus is connected, with the
// records of the connect itself cleared.
func newConnectedBridge() (*Bridge, *mockChat, *mockBus) {
	b, chat, bus := newTestBridge()
	b.HandleBusEvent(BusEvent{Type: BusConnected})
	bus.Reset()
	return b, chat, bus
}

// singleEnvelope asserts exactly one publish on the base topic and returns
// its envelope.
func singleEnvelope(t *testing.T, bus *mockBus) Envelope {
	t.Helper()
	pubs := bus.Published()
	if len(pubs) != 1 {
		t.Fatalf("published %d envelopes, want 1: %v", len(pubs), pubs)
	}
	if pubs[0].Topic != testTopic {
		t.Errorf("published on %q, want %q", pubs[0].Topic, testTopic)
	}
	return pubs[0].Envelope(t)
}
