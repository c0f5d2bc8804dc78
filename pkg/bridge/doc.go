// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bridge relays messages between a single IRC channel and an MQTT
// topic.
//
// # Core Types
//
// [Bridge] is the translation engine. It consumes the event streams of both
// sessions on a single goroutine, turns IRC activity into JSON [Envelope]
// values published on the base topic, and turns commands received on the
// "<base>_msg" topic into IRC messages.
//
// [IRCClient] owns the IRC connection. It reconnects after a fixed delay,
// re-joins the home channel after every welcome and optionally identifies
// with NickServ before joining.
//
// [MQTTClient] owns the broker connection. Reconnection is delegated to the
// paho client; every (re)connect is reported so the bridge can resubscribe
// and announce itself again.
//
// # Liveness Guard
//
// Envelopes are only published while the bus is connected. Events that
// arrive while it is down are dropped, never queued.
//
// # Sub-packages
//
//   - ircfmt strips mIRC formatting codes and renders light markdown as IRC
//     formatting.
package bridge
