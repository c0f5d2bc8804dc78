// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	stdlog "log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exzerolog"
)

const (
	connectRetryInterval = 5 * time.Second
	maxReconnectInterval = time.Minute
	// disconnectQuiesce is how long in-flight work gets on shutdown, in
	// milliseconds.
	disconnectQuiesce = 250
)

// MQTTClient maintains the broker session and exposes it as an event
// stream. Reconnection is handled by the paho client; every successful
// (re)connect is reported as BusConnected.
type MQTTClient struct {
	cfg    *MQTTConfig
	client mqtt.Client
	events chan BusEvent

	// stateMu orders connect and connection-lost reports, which paho
	// delivers from separate goroutines.
	stateMu sync.Mutex

	stopOnce sync.Once
	stopChan chan struct{}
	log      zerolog.Logger
}

var _ BusSession = (*MQTTClient)(nil)

// NewMQTTClient creates a client for the configured broker. Nothing is
// dialed until Run is called.
func NewMQTTClient(cfg *MQTTConfig, log zerolog.Logger) *MQTTClient {
	m := newMQTTClient(cfg, log)
	m.client = mqtt.NewClient(m.clientOptions())
	return m
}

func newMQTTClient(cfg *MQTTConfig, log zerolog.Logger) *MQTTClient {
	return &MQTTClient{
		cfg:      cfg,
		events:   make(chan BusEvent, eventBufferSize),
		stopChan: make(chan struct{}),
		log:      log.With().Str("component", "mqtt").Logger(),
	}
}

func (m *MQTTClient) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.BrokerURL()).
		SetClientID(m.cfg.ClientID).
		SetCleanSession(true).
		SetKeepAlive(m.cfg.KeepAlive).
		SetPingTimeout(m.cfg.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetMaxReconnectInterval(maxReconnectInterval).
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(m.onConnectionLost).
		SetReconnectingHandler(m.onReconnecting).
		SetDefaultPublishHandler(m.onMessage)
	if m.cfg.User != "" {
		opts.SetUsername(m.cfg.User).SetPassword(m.cfg.Password)
	}
	return opts
}

// RouteMQTTLogs sends the paho client's internal warnings and errors to
// log. The paho loggers are package globals, so this affects every client
// in the process.
func RouteMQTTLogs(log zerolog.Logger) {
	pahoLog := log.With().Str("component", "paho").Logger()
	mqtt.ERROR = stdlog.New(exzerolog.NewLogWriter(pahoLog).WithLevel(zerolog.ErrorLevel), "", 0)
	mqtt.CRITICAL = stdlog.New(exzerolog.NewLogWriter(pahoLog).WithLevel(zerolog.ErrorLevel), "", 0)
	mqtt.WARN = stdlog.New(exzerolog.NewLogWriter(pahoLog).WithLevel(zerolog.WarnLevel), "", 0)
}

// Events returns the stream of MQTT events.
func (m *MQTTClient) Events() <-chan BusEvent {
	return m.events
}

// Run connects to the broker and keeps the session until ctx is cancelled
// or Disconnect is called.
func (m *MQTTClient) Run(ctx context.Context) error {
	m.log.Info().Str("broker", m.cfg.BrokerURL()).Str("client_id", m.cfg.ClientID).Msg("Connecting to MQTT")
	m.watchToken(m.client.Connect(), "connect", "")

	select {
	case <-ctx.Done():
	case <-m.stopChan:
	}
	m.Disconnect()
	return nil
}

// Disconnect closes the broker session and stops the event stream.
func (m *MQTTClient) Disconnect() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		m.client.Disconnect(disconnectQuiesce)
		m.log.Info().Msg("Disconnected from MQTT")
	})
}

// Subscribe subscribes to topic at the configured QoS. Failures that are
// known immediately are returned, later ones are logged.
func (m *MQTTClient) Subscribe(topic string) error {
	m.log.Debug().Str("topic", topic).Msg("Subscribing")
	return m.watchToken(m.client.Subscribe(topic, byte(m.cfg.QoS), nil), "subscribe", topic)
}

// Publish publishes payload to topic at the configured QoS, not retained.
// Failures that are known immediately are returned, later ones are logged.
func (m *MQTTClient) Publish(topic string, payload []byte) error {
	m.log.Trace().Str("topic", topic).Bytes("payload", payload).Msg("Publishing")
	return m.watchToken(m.client.Publish(topic, byte(m.cfg.QoS), false, payload), "publish", topic)
}

// watchToken returns the token's error if it has already completed and
// otherwise logs its outcome in the background.
func (m *MQTTClient) watchToken(token mqtt.Token, action, topic string) error {
	select {
	case <-token.Done():
		return token.Error()
	default:
	}
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			m.log.Error().Err(err).Str("action", action).Str("topic", topic).Msg("MQTT operation failed")
		}
	}()
	return nil
}

// onConnect and onConnectionLost may run in either order, so each one only
// reports a state the client is still in.
func (m *MQTTClient) onConnect(c mqtt.Client) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if !c.IsConnectionOpen() {
		m.log.Debug().Msg("Ignoring connect callback for a connection that is already gone")
		return
	}
	m.log.Info().Msg("Connected to MQTT")
	m.emit(BusEvent{Type: BusConnected})
}

func (m *MQTTClient) onConnectionLost(c mqtt.Client, err error) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if c.IsConnectionOpen() {
		m.log.Debug().Err(err).Msg("Ignoring connection loss, already reconnected")
		return
	}
	m.log.Warn().Err(err).Msg("MQTT connection lost")
	m.emit(BusEvent{Type: BusDisconnected, Err: err})
}

func (m *MQTTClient) onReconnecting(_ mqtt.Client, _ *mqtt.ClientOptions) {
	m.log.Info().Msg("Reconnecting to MQTT")
}

func (m *MQTTClient) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m.emit(BusEvent{Type: BusMessage, Topic: msg.Topic(), Payload: msg.Payload()})
}

// emit delivers an event unless the client is shutting down.
func (m *MQTTClient) emit(evt BusEvent) {
	select {
	case m.events <- evt:
	case <-m.stopChan:
	}
}
