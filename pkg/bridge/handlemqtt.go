// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

// HandleBusEvent reacts to one MQTT event.
func (b *Bridge) HandleBusEvent(evt BusEvent) {
	switch evt.Type {
	case BusConnected:
		b.handleBusConnected()
	case BusDisconnected:
		b.handleBusDisconnected(evt)
	case BusMessage:
		b.handleBusMessage(evt)
	default:
		b.mqttLog.Trace().Stringer("event_type", evt.Type).Msg("Unhandled event type")
	}
}

// handleBusConnected runs on the first connect and on every reconnect: the
// subscription is renewed and the bridge announces itself again.
func (b *Bridge) handleBusConnected() {
	b.mqttLog.Info().Msg("Connected")
	b.busConnected = true

	commandTopic := CommandTopic(b.Config.MQTT.Topic)
	if err := b.bus.Subscribe(commandTopic); err != nil {
		b.mqttLog.Error().Err(err).Str("topic", commandTopic).Msg("Failed to subscribe")
	}
	b.publish(Envelope{Type: EnvelopeBotEnter})
	b.updateState()
}

func (b *Bridge) handleBusDisconnected(evt BusEvent) {
	b.mqttLog.Warn().Err(evt.Err).Msg("Connection lost")
	b.busConnected = false
	b.updateState()
}

// handleBusMessage turns a command into an IRC message. Malformed and
// incomplete commands are dropped.
func (b *Bridge) handleBusMessage(evt BusEvent) {
	if evt.Topic != CommandTopic(b.Config.MQTT.Topic) {
		b.mqttLog.Debug().Str("topic", evt.Topic).Msg("Ignoring message on unexpected topic")
		return
	}

	cmd, err := Decode(evt.Payload)
	if err != nil {
		b.mqttLog.Warn().Err(err).Bytes("payload", evt.Payload).Msg("Invalid message")
		return
	}
	if !cmd.Actionable() {
		b.mqttLog.Debug().Bytes("payload", evt.Payload).Msg("Ignoring command without sendmsg and message")
		return
	}

	to := cmd.Destination(b.Config.IRC.Channel)
	text := b.inboundText(*cmd.Message)
	b.mqttLog.Info().Str("to", to).Str("message", text).Msg("Relaying command")
	if err := b.chat.Send(to, text); err != nil {
		b.mqttLog.Warn().Err(err).Str("to", to).Msg("Failed to send message to IRC")
	}
}
