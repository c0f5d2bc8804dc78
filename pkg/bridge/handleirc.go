// Copyright 2024-2026 Aiku AI

package bridge

import (
	"fmt"
)

// defaultExitReason is used for quits and parts without a reason.
const defaultExitReason = "Goodbye"

// HandleChatEvent translates one IRC event into at most one envelope.
func (b *Bridge) HandleChatEvent(evt ChatEvent) {
	switch evt.Type {
	case ChatMessage:
		b.handleChatMessage(evt)
	case ChatRegistered:
		b.handleChatRegistered(evt)
	case ChatError:
		b.handleChatError(evt)
	case ChatDisconnected:
		b.handleChatDisconnected()
	case ChatNickChange:
		b.handleChatNickChange(evt)
	case ChatQuit:
		b.handleChatQuit(evt)
	case ChatPart:
		b.handleChatPart(evt)
	case ChatJoin:
		b.handleChatJoin(evt)
	case ChatNotice:
		b.handleChatNotice(evt)
	case ChatPrivateMessage:
		b.handleChatPrivateMessage(evt)
	default:
		b.ircLog.Trace().Stringer("event_type", evt.Type).Msg("Unhandled event type")
	}
}

func (b *Bridge) handleChatMessage(evt ChatEvent) {
	b.ircLog.Info().
		Str("from", evt.From).
		Str("to", evt.To).
		Str("text", evt.Text).
		Msg("Channel message")
	b.publish(Envelope{
		Type:    EnvelopeMessage,
		From:    evt.From,
		To:      evt.To,
		Message: b.outboundText(evt.Text),
	})
}

func (b *Bridge) handleChatRegistered(evt ChatEvent) {
	b.ircLog.Info().Str("welcome", evt.Text).Msg("Registered")
	b.chatRegistered = true
	b.updateState()
	b.publish(Envelope{Type: EnvelopeBotRegistered, Message: evt.Text})
}

// handleChatError forwards adapter errors. The bridge state is left as is;
// recovery is the adapter's job.
func (b *Bridge) handleChatError(evt ChatEvent) {
	b.ircLog.Error().Str("details", evt.Text).Msg("IRC error")
	b.publish(Envelope{Type: EnvelopeBotError, Message: evt.Text})
}

// handleChatDisconnected drops back to connecting until the next session
// registers. Nothing is published; the ChatError that follows carries the
// cause.
func (b *Bridge) handleChatDisconnected() {
	b.ircLog.Warn().Msg("IRC session lost")
	b.chatRegistered = false
	b.updateState()
}

func (b *Bridge) handleChatNickChange(evt ChatEvent) {
	text := fmt.Sprintf("%s has changed its name to %s", evt.Nick, evt.NewNick)
	b.ircLog.Info().Str("old_nick", evt.Nick).Str("new_nick", evt.NewNick).Msg("Nick changed")
	b.publishServerMessage(text)
}

// handleChatQuit reports the quit against the home channel; QUIT carries no
// channel of its own.
func (b *Bridge) handleChatQuit(evt ChatEvent) {
	text := fmt.Sprintf("%s has exited %s: %s", evt.Nick, b.Config.IRC.Channel, exitReason(evt.Reason))
	b.ircLog.Info().Str("nick", evt.Nick).Str("reason", evt.Reason).Msg("User quit")
	b.publishServerMessage(text)
}

func (b *Bridge) handleChatPart(evt ChatEvent) {
	text := fmt.Sprintf("%s has exited %s: %s", evt.Nick, evt.Channel, exitReason(evt.Reason))
	b.ircLog.Info().
		Str("nick", evt.Nick).
		Str("channel", evt.Channel).
		Str("reason", evt.Reason).
		Msg("User parted")
	b.publishServerMessage(text)
}

func (b *Bridge) handleChatJoin(evt ChatEvent) {
	text := fmt.Sprintf("%s has join %s", evt.Nick, evt.Channel)
	b.ircLog.Info().Str("nick", evt.Nick).Str("channel", evt.Channel).Msg("User joined")
	b.publishServerMessage(text)
}

// Notices and private messages are only logged.
func (b *Bridge) handleChatNotice(evt ChatEvent) {
	nick := evt.Nick
	if nick == "" {
		nick = "Server"
	}
	b.ircLog.Debug().Str("nick", nick).Str("to", evt.To).Str("text", evt.Text).Msg("Notice")
}

func (b *Bridge) handleChatPrivateMessage(evt ChatEvent) {
	b.ircLog.Info().Str("from", evt.From).Str("text", evt.Text).Msg("Private message")
}

// publishServerMessage publishes a message synthesized by the bridge,
// addressed to the home channel.
func (b *Bridge) publishServerMessage(text string) {
	b.publish(Envelope{
		Type:    EnvelopeMessage,
		From:    ServerSender,
		To:      b.Config.IRC.Channel,
		Message: text,
	})
}

func exitReason(reason string) string {
	if reason == "" {
		return defaultExitReason
	}
	return reason
}
