// Copyright 2024-2026 Aiku AI

package bridge

import (
	"fmt"
	"strings"
)

// nickServIdentified is the NickServ notice that confirms a successful
// IDENTIFY.
const nickServIdentified = "You are now identified"

// login runs once the server has welcomed the bot. Without a password the
// bot joins its channel straight away. With one it identifies with
// NickServ first and joins when the confirmation notice arrives.
func (c *IRCClient) login(w lineWriter) {
	if c.cfg.Password == "" {
		c.setLoggedIn(true)
		c.joinChannel(w)
		return
	}
	nick := c.CurrentNick()
	c.log.Info().Str("nick", nick).Msg("Identifying with NickServ")
	if err := w.Write(fmt.Sprintf("NICKSERV IDENTIFY %s %s", nick, c.cfg.Password)); err != nil {
		c.log.Error().Err(err).Msg("Failed to send NickServ IDENTIFY")
	}
}

// handleNickServNotice completes a pending login when NickServ confirms
// the identification.
func (c *IRCClient) handleNickServNotice(w lineWriter, text string) {
	if c.cfg.Password == "" || c.isLoggedIn() || !strings.Contains(text, nickServIdentified) {
		return
	}
	c.log.Info().Msg("Identified with NickServ")
	c.setLoggedIn(true)
	c.joinChannel(w)
}

// joinChannel joins the home channel, logging in first when that has not
// happened yet.
func (c *IRCClient) joinChannel(w lineWriter) {
	if !c.isLoggedIn() {
		c.login(w)
		return
	}
	c.log.Info().Str("channel", c.cfg.Channel).Msg("Joining channel")
	if err := w.Write("JOIN " + c.cfg.Channel); err != nil {
		c.log.Error().Err(err).Str("channel", c.cfg.Channel).Msg("Failed to join channel")
	}
}

func (c *IRCClient) setLoggedIn(loggedIn bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedIn = loggedIn
}

func (c *IRCClient) isLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}
