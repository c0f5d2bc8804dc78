// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command irc-mqtt-bridge relays messages between an IRC channel and an
// MQTT topic. IRC activity is published as JSON envelopes on the base
// topic, and commands published on <topic>_msg are sent to IRC.
//
// Configuration is read from the environment. A YAML file can provide the
// same settings when its path is given with --config or in bridge_config.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/irc-mqtt-bridge/pkg/bridge"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const configPathEnv = "bridge_config"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "irc-mqtt-bridge",
	Short:        "Relay an IRC channel to an MQTT topic and back",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runBridge,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Load the configuration and report missing settings",
	Args:  cobra.NoArgs,
	RunE:  runCheckConfig,
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", Tag, Commit, BuildTime)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(configPathEnv),
		"path to an optional YAML config file")
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCheckConfig(_ *cobra.Command, _ []string) error {
	cfg, err := bridge.Load(configPath)
	if err != nil {
		return err
	}
	missing := cfg.MissingSettings()
	for _, setting := range missing {
		fmt.Printf("missing: %s (%s)\n", setting.Variable, setting.Description)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%d required settings missing", len(missing))
	}
	fmt.Println("configuration OK")
	return nil
}

func runBridge(_ *cobra.Command, _ []string) error {
	cfg, err := bridge.Load(configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := cfg.NewLogger(os.Stdout)
	globalLog := log.With().Str("component", "global").Logger()

	missing := cfg.MissingSettings()
	for _, setting := range missing {
		globalLog.Error().
			Str("variable", setting.Variable).
			Msgf("%s was not defined! Please define at environment variable '%s'", setting.Description, setting.Variable)
	}
	if len(missing) > 0 {
		globalLog.Fatal().Msg("One or more environment variables not defined. Aborting...")
	}

	globalLog.Info().
		Str("version", Tag).
		Str("commit", Commit).
		Str("build_time", BuildTime).
		Msg("Starting irc-mqtt-bridge")
	globalLog.Info().
		Str("irc_server", cfg.IRC.Server).
		Str("irc_channel", cfg.IRC.Channel).
		Str("irc_nickname", cfg.IRC.Nickname).
		Bool("irc_tls", cfg.IRC.TLS).
		Str("mqtt_server", cfg.MQTT.BrokerURL()).
		Str("mqtt_topic", cfg.MQTT.Topic).
		Str("mqtt_client_id", cfg.MQTT.ClientID).
		Msg("Configuration")

	bridge.RouteMQTTLogs(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ircClient := bridge.NewIRCClient(&cfg.IRC, log)
	mqttClient := bridge.NewMQTTClient(&cfg.MQTT, log)
	br := bridge.New(cfg, ircClient, mqttClient, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ircClient.Run(gctx) })
	g.Go(func() error { return mqttClient.Run(gctx) })
	g.Go(func() error { return br.Run(gctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("bridge stopped: %w", err)
	}
	globalLog.Info().Msg("Shutdown complete")
	return nil
}
