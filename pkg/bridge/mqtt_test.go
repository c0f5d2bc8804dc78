// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// fakeToken is an mqtt.Token that completes when finish is called.
type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func completedToken(err error) *fakeToken {
	tok := newFakeToken()
	tok.finish(err)
	return tok
}

func (t *fakeToken) finish(err error) {
	t.err = err
	close(t.done)
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} {
	return t.done
}

func (t *fakeToken) Error() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

type fakePublish struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// fakeMQTT is an mqtt.Client that records calls. Tokens complete
// immediately with tokenErr unless pending is set.
type fakeMQTT struct {
	mu          sync.Mutex
	connects    int
	disconnects []uint
	subscribed  map[string]byte
	publishes   []fakePublish
	tokenErr    error
	pending     *fakeToken
	closed      bool
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{subscribed: make(map[string]byte)}
}

func (f *fakeMQTT) token() mqtt.Token {
	if f.pending != nil {
		return f.pending
	}
	return completedToken(f.tokenErr)
}

func (f *fakeMQTT) IsConnected() bool { return true }
func (f *fakeMQTT) IsConnectionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeMQTT) setOpen(open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = !open
}

func (f *fakeMQTT) Connect() mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.token()
}

func (f *fakeMQTT) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, quiesce)
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes = append(f.publishes, fakePublish{Topic: topic, QoS: qos, Retained: retained, Payload: payload.([]byte)})
	return f.token()
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, _ mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[topic] = qos
	return f.token()
}

func (f *fakeMQTT) SubscribeMultiple(filters map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for topic, qos := range filters {
		f.subscribed[topic] = qos
	}
	return f.token()
}

func (f *fakeMQTT) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.subscribed, topic)
	}
	return f.token()
}

func (f *fakeMQTT) AddRoute(string, mqtt.MessageHandler) {}

func (f *fakeMQTT) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// fakeMessage is a received mqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newTestMQTTClient() (*MQTTClient, *fakeMQTT) {
	cfg := testConfig().MQTT
	cfg.QoS = 1
	m := newMQTTClient(&cfg, zerolog.Nop())
	fake := newFakeMQTT()
	m.client = fake
	return m, fake
}

func nextBusEvent(t *testing.T, m *MQTTClient) BusEvent {
	t.Helper()
	select {
	case evt := <-m.Events():
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for bus event")
		return BusEvent{}
	}
}

func TestMQTTClient_ClientOptions(t *testing.T) {
	t.Parallel()
	cfg := MQTTConfig{
		Server:      "broker.example.com:8883",
		ClientID:    "bridge-1",
		User:        "bot",
		Password:    "secret",
		KeepAlive:   2 * time.Second,
		PingTimeout: time.Second,
	}
	m := newMQTTClient(&cfg, zerolog.Nop())
	opts := m.clientOptions()

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker.example.com:8883" {
		t.Errorf("Servers: got %v", opts.Servers)
	}
	if opts.ClientID != "bridge-1" {
		t.Errorf("ClientID: got %q", opts.ClientID)
	}
	if opts.Username != "bot" || opts.Password != "secret" {
		t.Errorf("credentials: got %q/%q", opts.Username, opts.Password)
	}
	if opts.KeepAlive != 2 {
		t.Errorf("KeepAlive: got %d, want 2", opts.KeepAlive)
	}
	if opts.PingTimeout != time.Second {
		t.Errorf("PingTimeout: got %v", opts.PingTimeout)
	}
	if !opts.AutoReconnect || !opts.ConnectRetry {
		t.Error("reconnection should be enabled")
	}
	if opts.OnConnect == nil || opts.OnConnectionLost == nil || opts.DefaultPublishHandler == nil {
		t.Error("handlers should be installed")
	}
}

func TestMQTTClient_ClientOptionsAnonymous(t *testing.T) {
	t.Parallel()
	cfg := MQTTConfig{Server: "broker.example.com", Password: "ignored"}
	opts := newMQTTClient(&cfg, zerolog.Nop()).clientOptions()
	if opts.Username != "" || opts.Password != "" {
		t.Errorf("credentials without a user: got %q/%q", opts.Username, opts.Password)
	}
}

func TestMQTTClient_HandlersEmitEvents(t *testing.T) {
	t.Parallel()
	m, fake := newTestMQTTClient()

	m.onConnect(fake)
	if evt := nextBusEvent(t, m); evt.Type != BusConnected {
		t.Errorf("onConnect: got %v", evt.Type)
	}

	lost := errors.New("pingresp not received")
	fake.setOpen(false)
	m.onConnectionLost(fake, lost)
	if evt := nextBusEvent(t, m); evt.Type != BusDisconnected || !errors.Is(evt.Err, lost) {
		t.Errorf("onConnectionLost: got %+v", evt)
	}

	m.onMessage(fake, fakeMessage{topic: testTopic + "_msg", payload: []byte(`{"sendmsg":1}`)})
	evt := nextBusEvent(t, m)
	if evt.Type != BusMessage || evt.Topic != testTopic+"_msg" || string(evt.Payload) != `{"sendmsg":1}` {
		t.Errorf("onMessage: got %+v", evt)
	}
}

func TestMQTTClient_LateCallbacksAreIgnored(t *testing.T) {
	t.Parallel()
	m, fake := newTestMQTTClient()

	// Reconnected before the loss callback ran.
	m.onConnectionLost(fake, errors.New("EOF"))
	select {
	case evt := <-m.Events():
		t.Errorf("loss reported while connected: %+v", evt)
	default:
	}

	// Lost again before the connect callback ran.
	fake.setOpen(false)
	m.onConnect(fake)
	select {
	case evt := <-m.Events():
		t.Errorf("connect reported while disconnected: %+v", evt)
	default:
	}
}

func TestMQTTClient_PublishAndSubscribe(t *testing.T) {
	t.Parallel()
	m, fake := newTestMQTTClient()

	if err := m.Subscribe(testTopic + "_msg"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := m.Publish(testTopic, []byte(`{"type":"bot_enter"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if qos, ok := fake.subscribed[testTopic+"_msg"]; !ok || qos != 1 {
		t.Errorf("subscription: got %v", fake.subscribed)
	}
	if len(fake.publishes) != 1 {
		t.Fatalf("publishes: got %d, want 1", len(fake.publishes))
	}
	pub := fake.publishes[0]
	if pub.Topic != testTopic || pub.QoS != 1 || pub.Retained || string(pub.Payload) != `{"type":"bot_enter"}` {
		t.Errorf("publish: got %+v", pub)
	}
}

func TestMQTTClient_ImmediateErrorsAreReturned(t *testing.T) {
	t.Parallel()
	m, fake := newTestMQTTClient()
	fake.tokenErr = mqtt.ErrNotConnected

	if err := m.Publish(testTopic, []byte("{}")); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Publish: got %v", err)
	}
	if err := m.Subscribe(testTopic); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Subscribe: got %v", err)
	}
}

func TestMQTTClient_PendingTokensDoNotBlock(t *testing.T) {
	t.Parallel()
	m, fake := newTestMQTTClient()
	fake.pending = newFakeToken()

	if err := m.Publish(testTopic, []byte("{}")); err != nil {
		t.Errorf("Publish: %v", err)
	}
	fake.pending.finish(errors.New("timeout"))
}

func TestMQTTClient_RunConnectsAndDisconnects(t *testing.T) {
	t.Parallel()
	m, fake := newTestMQTTClient()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.connects != 1 {
		t.Errorf("connects: got %d, want 1", fake.connects)
	}
	if len(fake.disconnects) != 1 || fake.disconnects[0] != disconnectQuiesce {
		t.Errorf("disconnects: got %v", fake.disconnects)
	}
}

func TestMQTTClient_DisconnectIsIdempotent(t *testing.T) {
	t.Parallel()
	m, fake := newTestMQTTClient()
	m.Disconnect()
	m.Disconnect()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.disconnects) != 1 {
		t.Errorf("disconnects: got %d, want 1", len(fake.disconnects))
	}
}

func TestMQTTClient_EmitAfterDisconnectDoesNotBlock(t *testing.T) {
	t.Parallel()
	m, fake := newTestMQTTClient()
	m.Disconnect()
	for range eventBufferSize + 1 {
		m.onMessage(fake, fakeMessage{topic: testTopic})
	}
}
