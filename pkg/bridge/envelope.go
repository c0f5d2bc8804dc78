// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"go.mau.fi/util/exerrors"
	"go.mau.fi/util/ptr"
)

// EnvelopeType tags an envelope published on the base topic.
type EnvelopeType string

const (
	EnvelopeMessage       EnvelopeType = "message"
	EnvelopeBotRegistered EnvelopeType = "botregistered"
	EnvelopeBotError      EnvelopeType = "boterror"
	EnvelopeBotEnter      EnvelopeType = "bot_enter"
)

// ServerSender is the From value of envelopes synthesized from channel
// membership changes.
const ServerSender = "SERVER"

// Envelope is the JSON document published on the base topic for every
// forwarded IRC event. Which keys are written depends on Type, see Encode;
// consumers must tolerate missing fields.
type Envelope struct {
	Type    EnvelopeType `json:"type"`
	From    string       `json:"from,omitempty"`
	To      string       `json:"to,omitempty"`
	Message string       `json:"message,omitempty"`
}

// messageEnvelope always carries from, to and message, even when empty.
type messageEnvelope struct {
	Type    EnvelopeType `json:"type"`
	From    string       `json:"from"`
	To      string       `json:"to"`
	Message string       `json:"message"`
}

// statusEnvelope always carries message, even when empty.
type statusEnvelope struct {
	Type    EnvelopeType `json:"type"`
	Message string       `json:"message"`
}

// Encode serializes an envelope to its wire form. Message envelopes keep
// every key, registration and error envelopes keep message, and any other
// type omits empty fields.
func Encode(env Envelope) []byte {
	var wire any
	switch env.Type {
	case EnvelopeMessage:
		wire = messageEnvelope(env)
	case EnvelopeBotRegistered, EnvelopeBotError:
		wire = statusEnvelope{Type: env.Type, Message: env.Message}
	default:
		wire = env
	}
	return exerrors.Must(json.Marshal(wire))
}

// InboundCommand is a request received on the command topic to send a
// message to IRC.
type InboundCommand struct {
	// SendMsg reports whether the "sendmsg" key was present. Its value is
	// not inspected.
	SendMsg bool
	// Message is nil when the "message" key is absent or null.
	Message *string
	// To is nil when no usable destination was given.
	To *string
}

// Actionable reports whether the command carries both required keys.
func (c *InboundCommand) Actionable() bool {
	return c != nil && c.SendMsg && c.Message != nil
}

// Destination returns the explicit destination, or def when none was given.
func (c *InboundCommand) Destination(def string) string {
	if to := ptr.Val(c.To); to != "" {
		return to
	}
	return def
}

// DecodeError is returned by Decode when a payload is not a JSON object.
type DecodeError struct {
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid inbound command: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var errNotObject = errors.New("payload is not a JSON object")

// Decode parses a command topic payload. It only fails when the payload is
// not a well-formed JSON object; missing keys are reported through the
// returned command, see [InboundCommand.Actionable].
func Decode(data []byte) (*InboundCommand, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Payload: data, Err: err}
	}
	if fields == nil {
		return nil, &DecodeError{Payload: data, Err: errNotObject}
	}

	cmd := &InboundCommand{}
	_, cmd.SendMsg = fields["sendmsg"]
	if raw, ok := fields["message"]; ok {
		if text, ok := scalarText(raw); ok {
			cmd.Message = &text
		}
	}
	if raw, ok := fields["to"]; ok {
		var to string
		if err := json.Unmarshal(raw, &to); err == nil && to != "" {
			cmd.To = &to
		}
	}
	return cmd, nil
}

// scalarText renders a JSON scalar as message text. Strings are unquoted,
// numbers and booleans keep their JSON spelling. Null, objects and arrays
// are rejected.
func scalarText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case 'n', '{', '[':
		return "", false
	default:
		return string(raw), true
	}
}

type wireCommand struct {
	SendMsg *bool   `json:"sendmsg,omitempty"`
	Message *string `json:"message,omitempty"`
	To      *string `json:"to,omitempty"`
}

// EncodeCommand serializes a command in the shape accepted by Decode.
func EncodeCommand(cmd InboundCommand) []byte {
	wire := wireCommand{Message: cmd.Message, To: cmd.To}
	if cmd.SendMsg {
		wire.SendMsg = ptr.Ptr(true)
	}
	return exerrors.Must(json.Marshal(&wire))
}
