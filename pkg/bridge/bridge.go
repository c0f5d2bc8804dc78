// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"

	"github.com/rs/zerolog"
)

// State is the coarse lifecycle state of the bridge.
type State int

const (
	StateStarting State = iota
	StateConnecting
	StateBridged
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateConnecting:
		return "connecting"
	case StateBridged:
		return "bridged"
	default:
		return "unknown"
	}
}

// Bridge translates events between the IRC and MQTT sessions.
//
// All fields are owned by the goroutine running Run; the handlers must not
// be called concurrently.
type Bridge struct {
	Config *Config

	chat ChatSession
	bus  BusSession

	// busConnected gates every publish. It follows the bus connected and
	// disconnected events.
	busConnected   bool
	chatRegistered bool
	state          State

	log     zerolog.Logger
	ircLog  zerolog.Logger
	mqttLog zerolog.Logger
}

// New creates a bridge between the given sessions. The sessions are not
// started; their own Run loops must be driven by the caller.
func New(cfg *Config, chat ChatSession, bus BusSession, log zerolog.Logger) *Bridge {
	return &Bridge{
		Config:  cfg,
		chat:    chat,
		bus:     bus,
		state:   StateStarting,
		log:     log.With().Str("component", "global").Logger(),
		ircLog:  log.With().Str("component", "irc").Logger(),
		mqttLog: log.With().Str("component", "mqtt").Logger(),
	}
}

// Run dispatches session events until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.setState(StateConnecting)

	chatEvents := b.chat.Events()
	busEvents := b.bus.Events()
	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("Bridge stopped")
			return nil
		case evt, ok := <-chatEvents:
			if !ok {
				b.ircLog.Warn().Msg("IRC event stream closed")
				chatEvents = nil
				continue
			}
			b.HandleChatEvent(evt)
		case evt, ok := <-busEvents:
			if !ok {
				b.mqttLog.Warn().Msg("MQTT event stream closed")
				busEvents = nil
				continue
			}
			b.HandleBusEvent(evt)
		}
	}
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return b.state
}

// Healthy reports whether both sessions are up.
func (b *Bridge) Healthy() bool {
	return b.busConnected && b.chatRegistered
}

// BusConnected reports whether envelopes are currently being published.
func (b *Bridge) BusConnected() bool {
	return b.busConnected
}

func (b *Bridge) updateState() {
	if b.Healthy() {
		b.setState(StateBridged)
	} else {
		b.setState(StateConnecting)
	}
}

func (b *Bridge) setState(state State) {
	if b.state == state {
		return
	}
	b.log.Info().
		Stringer("from", b.state).
		Stringer("to", state).
		Bool("bus_connected", b.busConnected).
		Bool("chat_registered", b.chatRegistered).
		Msg("Bridge state changed")
	b.state = state
}

// publish sends an envelope to the base topic if the bus is connected.
// Envelopes are dropped, not queued, while it is not.
func (b *Bridge) publish(env Envelope) {
	if !b.busConnected {
		b.mqttLog.Debug().
			Str("type", string(env.Type)).
			Msg("Bus not connected, dropping envelope")
		return
	}
	if err := b.bus.Publish(b.Config.MQTT.Topic, Encode(env)); err != nil {
		b.mqttLog.Warn().Err(err).
			Str("topic", b.Config.MQTT.Topic).
			Str("type", string(env.Type)).
			Msg("Failed to publish envelope")
	}
}
