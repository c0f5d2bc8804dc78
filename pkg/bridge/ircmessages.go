// Copyright 2024-2026 Aiku AI

package bridge

import (
	"fmt"
	"strings"

	"gopkg.in/irc.v3"
)

const (
	ctcpDelim  = "\x01"
	ctcpAction = "ACTION "

	// errNickInUse is resolved by the irc library itself.
	errNickInUse = "433"
)

func (c *IRCClient) handleMessage(client *irc.Client, m *irc.Message) {
	c.handleLine(client, m)
}

// handleLine translates one protocol line into session state changes and
// chat events.
func (c *IRCClient) handleLine(w lineWriter, m *irc.Message) {
	switch m.Command {
	case "001":
		c.handleWelcome(w, m)
	case "251":
		c.log.Info().Str("text", m.Trailing()).Msg("Server info")
	case "372", "375":
		c.log.Info().Str("text", m.Trailing()).Msg("MOTD")
	case "PRIVMSG":
		c.handlePrivmsg(m)
	case "NOTICE":
		c.handleNotice(w, m)
	case "JOIN":
		c.handleJoin(m)
	case "PART":
		c.handlePart(m)
	case "QUIT":
		c.emit(ChatEvent{Type: ChatQuit, Nick: NickFromPrefix(m), Reason: param(m, 0)})
	case "NICK":
		c.handleNick(m)
	case "KICK":
		c.handleKick(w, m)
	case "ERROR":
		c.emit(ChatEvent{Type: ChatError, Text: m.Trailing()})
	case "PING", "PONG":
	case errNickInUse:
		c.log.Warn().Str("nick", param(m, 1)).Msg("Nickname already in use")
	default:
		if isErrorReply(m.Command) {
			c.emit(ChatEvent{Type: ChatError, Text: errorReplyText(m)})
			return
		}
		c.log.Trace().Str("command", m.Command).Strs("params", m.Params).Msg("Unhandled IRC line")
	}
}

func (c *IRCClient) handleWelcome(w lineWriter, m *irc.Message) {
	c.mu.Lock()
	if nick := param(m, 0); nick != "" {
		c.nick = nick
	}
	c.welcome = m.Trailing()
	c.loggedIn = false
	nick := c.nick
	c.mu.Unlock()

	c.log.Info().Str("nick", nick).Msg("Connected to IRC")
	c.login(w)
}

func (c *IRCClient) handlePrivmsg(m *irc.Message) {
	if len(m.Params) < 2 {
		return
	}
	from := NickFromPrefix(m)
	target := m.Params[0]
	text := m.Trailing()

	if strings.HasPrefix(text, ctcpDelim) {
		body := strings.Trim(text, ctcpDelim)
		if !strings.HasPrefix(body, ctcpAction) {
			c.log.Debug().Str("from", from).Str("ctcp", body).Msg("Ignoring CTCP request")
			return
		}
		text = fmt.Sprintf("* %s %s", from, strings.TrimPrefix(body, ctcpAction))
	}

	if IsChannelName(target) {
		c.emit(ChatEvent{Type: ChatMessage, From: from, To: target, Text: text})
	} else {
		c.emit(ChatEvent{Type: ChatPrivateMessage, From: from, Text: text})
	}
}

func (c *IRCClient) handleNotice(w lineWriter, m *irc.Message) {
	nick := NickFromPrefix(m)
	text := m.Trailing()
	if sameNick(nick, "NickServ") {
		c.handleNickServNotice(w, text)
	}
	c.emit(ChatEvent{Type: ChatNotice, Nick: nick, To: param(m, 0), Text: text})
}

// handleJoin reports the bot's own join of the home channel as the
// registration event, followed by the join itself.
func (c *IRCClient) handleJoin(m *irc.Message) {
	channel := param(m, 0)
	nick := NickFromPrefix(m)
	if sameNick(nick, c.CurrentNick()) && strings.EqualFold(channel, c.cfg.Channel) {
		c.mu.Lock()
		welcome := c.welcome
		c.mu.Unlock()
		c.emit(ChatEvent{Type: ChatRegistered, Text: welcome})
	}
	c.emit(ChatEvent{Type: ChatJoin, Channel: channel, Nick: nick})
}

func (c *IRCClient) handlePart(m *irc.Message) {
	c.emit(ChatEvent{
		Type:    ChatPart,
		Channel: param(m, 0),
		Nick:    NickFromPrefix(m),
		Reason:  param(m, 1),
	})
}

func (c *IRCClient) handleNick(m *irc.Message) {
	oldNick := NickFromPrefix(m)
	newNick := param(m, 0)
	c.mu.Lock()
	if sameNick(oldNick, c.nick) {
		c.nick = newNick
	}
	c.mu.Unlock()
	c.emit(ChatEvent{Type: ChatNickChange, Nick: oldNick, NewNick: newNick})
}

// handleKick reports a kick as a part. The bot rejoins its home channel
// when it is the one kicked.
func (c *IRCClient) handleKick(w lineWriter, m *irc.Message) {
	channel := param(m, 0)
	kicked := param(m, 1)
	reason := fmt.Sprintf("Kicked by %s", NickFromPrefix(m))
	if extra := param(m, 2); extra != "" {
		reason += ": " + extra
	}
	c.emit(ChatEvent{Type: ChatPart, Channel: channel, Nick: kicked, Reason: reason})

	if sameNick(kicked, c.CurrentNick()) && strings.EqualFold(channel, c.cfg.Channel) {
		c.log.Warn().Str("channel", channel).Str("reason", reason).Msg("Kicked from channel, rejoining")
		c.joinChannel(w)
	}
}

// param returns the i-th parameter of m, or "" when absent.
func param(m *irc.Message, i int) string {
	if i < len(m.Params) {
		return m.Params[i]
	}
	return ""
}

// errorReplyText renders a numeric error without the leading target nick.
func errorReplyText(m *irc.Message) string {
	params := m.Params
	if len(params) > 1 {
		params = params[1:]
	}
	return fmt.Sprintf("%s %s", m.Command, strings.Join(params, " "))
}
