// Copyright 2024-2026 Aiku AI

package bridge

import (
	"strings"

	"gopkg.in/irc.v3"
)

// commandTopicSuffix is appended to the base topic to form the topic the
// bridge subscribes to for outgoing IRC messages.
const commandTopicSuffix = "_msg"

// CommandTopic returns the command topic for a base topic.
func CommandTopic(base string) string {
	return base + commandTopicSuffix
}

// channelPrefixes are the RFC 2811 channel type prefixes.
const channelPrefixes = "#&+!"

// IsChannelName reports whether target names a channel rather than a user.
func IsChannelName(target string) bool {
	return target != "" && strings.IndexByte(channelPrefixes, target[0]) >= 0
}

// NickFromPrefix returns the nickname of a message source. Servers and
// prefix-less lines yield an empty string.
func NickFromPrefix(m *irc.Message) string {
	if m == nil || m.Prefix == nil {
		return ""
	}
	return strings.TrimPrefix(m.Prefix.Name, "~")
}

// sameNick compares nicknames case-insensitively, as IRC servers do.
func sameNick(a, b string) bool {
	return strings.EqualFold(a, b)
}
