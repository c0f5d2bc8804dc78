// Copyright 2024-2026 Aiku AI

package bridge

import (
	"github.com/aiku/irc-mqtt-bridge/pkg/bridge/ircfmt"
)

// outboundText prepares IRC message text for an envelope.
func (b *Bridge) outboundText(text string) string {
	if b.Config.IRC.StripFormatting {
		return ircfmt.Strip(text)
	}
	return text
}

// inboundText prepares command text for IRC.
func (b *Bridge) inboundText(text string) string {
	if b.Config.MQTT.MarkdownCommands {
		return ircfmt.FromMarkdown(text)
	}
	return text
}
