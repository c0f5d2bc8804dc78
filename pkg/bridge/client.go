// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/irc.v3"
)

const (
	eventBufferSize = 64
	dialTimeout     = 30 * time.Second
	// quitGrace is how long the QUIT line gets to reach the server before
	// the connection is torn down.
	quitGrace = 5 * time.Second
	// sendQueueSize bounds the PRIVMSG lines waiting on the flood limiter.
	sendQueueSize = 256
)

var (
	// ErrNotConnected is returned by Send while no IRC session is open.
	ErrNotConnected = errors.New("not connected to IRC")
	// ErrSendQueueFull is returned by Send when lines had to be dropped.
	ErrSendQueueFull = errors.New("IRC send queue is full")
)

// lineWriter is the write side of an IRC session. *irc.Client implements it.
type lineWriter interface {
	Write(line string) error
	WriteMessage(m *irc.Message) error
}

// IRCClient maintains the IRC session and exposes it as an event stream.
type IRCClient struct {
	cfg    *IRCConfig
	events chan ChatEvent
	dial   func(ctx context.Context) (net.Conn, error)

	quitGrace time.Duration

	mu       sync.Mutex
	out      *outbound
	nick     string
	welcome  string
	loggedIn bool

	stopOnce sync.Once
	stopChan chan struct{}
	log      zerolog.Logger
}

var _ ChatSession = (*IRCClient)(nil)

// NewIRCClient creates a client for the configured server. Nothing is
// dialed until Run is called.
func NewIRCClient(cfg *IRCConfig, log zerolog.Logger) *IRCClient {
	c := &IRCClient{
		cfg:       cfg,
		events:    make(chan ChatEvent, eventBufferSize),
		quitGrace: quitGrace,
		nick:      cfg.Nickname,
		stopChan:  make(chan struct{}),
		log:       log.With().Str("component", "irc").Logger(),
	}
	c.dial = c.dialServer
	return c
}

// Events returns the stream of IRC events.
func (c *IRCClient) Events() <-chan ChatEvent {
	return c.events
}

// Run keeps an IRC session open until ctx is cancelled. Losing an open
// session is reported as ChatDisconnected, and every failure as a ChatError
// event, before retrying after the configured delay.
func (c *IRCClient) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.Disconnect)
	defer stop()

	for {
		connected, err := c.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Error().Err(err).Dur("retry_delay", c.cfg.RetryDelay).Msg("IRC session ended, reconnecting")
		if connected {
			c.emit(ChatEvent{Type: ChatDisconnected})
		}
		c.emit(ChatEvent{Type: ChatError, Text: err.Error()})

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.RetryDelay):
		}
	}
}

// runSession reports whether the server was reached along with the error
// that ended the session.
func (c *IRCClient) runSession(ctx context.Context) (bool, error) {
	c.log.Info().Str("server", c.cfg.Server).Bool("tls", c.cfg.TLS).Msg("Connecting to IRC")
	conn, err := c.dial(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to connect to %s: %w", c.cfg.Server, err)
	}
	defer conn.Close()

	client := irc.NewClient(conn, irc.ClientConfig{
		Nick:      c.cfg.Nickname,
		User:      c.cfg.Nickname,
		Name:      c.cfg.Nickname,
		SendLimit: c.cfg.SendLimit,
		SendBurst: c.cfg.SendBurst,
		Handler:   irc.HandlerFunc(c.handleMessage),
	})
	c.setSession(client)
	defer c.setSession(nil)

	// The session outlives ctx by the quit grace period so QUIT can be
	// delivered.
	sessionCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopSession := context.AfterFunc(ctx, func() {
		c.quit(client)
		time.Sleep(c.quitGrace)
		cancel()
	})
	defer stopSession()

	err = client.RunContext(sessionCtx)
	if err == nil {
		err = errors.New("connection closed")
	}
	return true, fmt.Errorf("irc session: %w", err)
}

func (c *IRCClient) dialServer(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	if !c.cfg.TLS {
		return dialer.DialContext(ctx, "tcp", c.cfg.Server)
	}
	host, _, err := net.SplitHostPort(c.cfg.Server)
	if err != nil {
		host = c.cfg.Server
	}
	tlsDialer := &tls.Dialer{
		NetDialer: dialer,
		Config:    &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12},
	}
	return tlsDialer.DialContext(ctx, "tcp", c.cfg.Server)
}

// outbound is the send side of one session. Lines queued by Send are
// written by a single goroutine, so only it waits on the flood limiter.
type outbound struct {
	conn  lineWriter
	queue chan *irc.Message
	done  chan struct{}
}

// setSession replaces the current session. The previous session's writer
// is stopped and any lines still queued for it are discarded.
func (c *IRCClient) setSession(conn lineWriter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out != nil {
		close(c.out.done)
		c.out = nil
	}
	if conn == nil {
		c.loggedIn = false
		c.nick = c.cfg.Nickname
		return
	}
	c.out = &outbound{
		conn:  conn,
		queue: make(chan *irc.Message, sendQueueSize),
		done:  make(chan struct{}),
	}
	go c.writeLoop(c.out)
}

func (c *IRCClient) session() *outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out
}

func (c *IRCClient) writeLoop(out *outbound) {
	for {
		// A closed session wins over lines that are still queued.
		select {
		case <-out.done:
			return
		default:
		}
		select {
		case <-out.done:
			return
		case m := <-out.queue:
			if err := out.conn.WriteMessage(m); err != nil {
				c.log.Warn().Err(err).Str("destination", m.Params[0]).Msg("Failed to send message")
			}
		}
	}
}

// CurrentNick returns the nickname the server knows the bot by.
func (c *IRCClient) CurrentNick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nick
}

// Send queues text for destination as PRIVMSG, one line per message line,
// and returns without waiting for the write. Delivery is not confirmed.
func (c *IRCClient) Send(destination, text string) error {
	out := c.session()
	if out == nil {
		return ErrNotConnected
	}
	lines := splitLines(text)
	for i, line := range lines {
		m := &irc.Message{
			Command: "PRIVMSG",
			Params:  []string{destination, line},
		}
		select {
		case out.queue <- m:
		default:
			c.log.Warn().
				Str("destination", destination).
				Int("dropped_lines", len(lines)-i).
				Msg("Send queue full, dropping message")
			return fmt.Errorf("failed to send message to %s: %w", destination, ErrSendQueueFull)
		}
	}
	return nil
}

// Disconnect stops the event stream. Run returns once its context is done.
func (c *IRCClient) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

func (c *IRCClient) quit(w lineWriter) {
	c.log.Info().Str("message", c.cfg.QuitMessage).Msg("Quitting IRC")
	if err := w.Write("QUIT :" + c.cfg.QuitMessage); err != nil {
		c.log.Warn().Err(err).Msg("Failed to send QUIT")
	}
}

// emit delivers an event unless the client is shutting down.
func (c *IRCClient) emit(evt ChatEvent) {
	select {
	case c.events <- evt:
	case <-c.stopChan:
	}
}

// splitLines splits text on line breaks and drops empty lines, since a
// PRIVMSG can carry neither.
func splitLines(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
}

// isErrorReply reports whether an IRC command is a numeric error reply.
func isErrorReply(command string) bool {
	code, err := strconv.Atoi(command)
	return err == nil && len(command) == 3 && code >= 400 && code < 600
}
