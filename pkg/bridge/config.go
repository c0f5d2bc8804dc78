// Copyright 2024-2026 Aiku AI

package bridge

import (
	_ "embed"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

const (
	defaultRetryDelay  = 60 * time.Second
	defaultQuitMessage = "Farewell my friends"
	defaultMQTTPort    = "1883"
)

// Config holds the bridge configuration. Values come from the embedded
// example config, an optional YAML file merged on top of it, and finally
// the environment.
type Config struct {
	IRC     IRCConfig     `yaml:"irc"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Logging LoggingConfig `yaml:"logging"`

	minLevel zerolog.Level
}

// IRCConfig configures the IRC session.
type IRCConfig struct {
	Server      string        `yaml:"server" env:"irc_server"`
	Channel     string        `yaml:"channel" env:"irc_channel"`
	Nickname    string        `yaml:"nickname" env:"irc_nickname"`
	Password    string        `yaml:"password" env:"irc_password"`
	TLS         bool          `yaml:"tls" env:"irc_tls"`
	RetryDelay  time.Duration `yaml:"retry_delay" env:"irc_retry_delay"`
	QuitMessage string        `yaml:"quit_message" env:"irc_quit_message"`
	SendLimit   time.Duration `yaml:"send_limit" env:"irc_send_limit"`
	SendBurst   int           `yaml:"send_burst" env:"irc_send_burst"`
	// StripFormatting removes mIRC control codes from message text before
	// it is published. Off by default so messages are forwarded verbatim.
	StripFormatting bool `yaml:"strip_formatting" env:"irc_strip_formatting"`
}

// MQTTConfig configures the MQTT session.
type MQTTConfig struct {
	Server           string        `yaml:"server" env:"mqtt_server"`
	Topic            string        `yaml:"topic" env:"mqtt_topic"`
	User             string        `yaml:"user" env:"mqtt_user"`
	Password         string        `yaml:"password" env:"mqtt_pass"`
	ClientID         string        `yaml:"client_id" env:"mqtt_client_id"`
	QoS              int           `yaml:"qos" env:"mqtt_qos"`
	KeepAlive        time.Duration `yaml:"keep_alive" env:"mqtt_keep_alive"`
	PingTimeout      time.Duration `yaml:"ping_timeout" env:"mqtt_ping_timeout"`
	MarkdownCommands bool          `yaml:"markdown_commands" env:"mqtt_markdown_commands"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	MinLevel string `yaml:"min_level" env:"log_level"`
	Pretty   bool   `yaml:"pretty" env:"log_pretty"`
}

// RequiredSetting describes a setting that must be provided.
type RequiredSetting struct {
	Variable    string
	Description string
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "irc", "server")
	helper.Copy(up.Str, "irc", "channel")
	helper.Copy(up.Str, "irc", "nickname")
	helper.Copy(up.Str, "irc", "password")
	helper.Copy(up.Bool, "irc", "tls")
	helper.Copy(up.Str, "irc", "retry_delay")
	helper.Copy(up.Str, "irc", "quit_message")
	helper.Copy(up.Str, "irc", "send_limit")
	helper.Copy(up.Int, "irc", "send_burst")
	helper.Copy(up.Bool, "irc", "strip_formatting")

	helper.Copy(up.Str, "mqtt", "server")
	helper.Copy(up.Str, "mqtt", "topic")
	helper.Copy(up.Str, "mqtt", "user")
	helper.Copy(up.Str, "mqtt", "password")
	helper.Copy(up.Str, "mqtt", "client_id")
	helper.Copy(up.Int, "mqtt", "qos")
	helper.Copy(up.Str, "mqtt", "keep_alive")
	helper.Copy(up.Str, "mqtt", "ping_timeout")
	helper.Copy(up.Bool, "mqtt", "markdown_commands")

	helper.Copy(up.Str, "logging", "min_level")
	helper.Copy(up.Bool, "logging", "pretty")
}

// Load builds the configuration. path may be empty, in which case only the
// example defaults and the environment are used. The returned config has
// been post-processed but not validated, see MissingSettings.
func Load(path string) (*Config, error) {
	var base yaml.Node
	if err := yaml.Unmarshal([]byte(ExampleConfig), &base); err != nil {
		return nil, fmt.Errorf("failed to parse example config: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		var user yaml.Node
		if err := yaml.Unmarshal(data, &user); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		upgradeConfig(up.NewHelper(&base, &user))
	}

	var cfg Config
	if err := base.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PostProcess fills derived defaults and validates value ranges.
func (c *Config) PostProcess() error {
	if c.IRC.Nickname == "" {
		c.IRC.Nickname = fmt.Sprintf("redbot-%d", rand.IntN(101))
	}
	if c.IRC.RetryDelay <= 0 {
		c.IRC.RetryDelay = defaultRetryDelay
	}
	if c.IRC.QuitMessage == "" {
		c.IRC.QuitMessage = defaultQuitMessage
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "irc-mqtt-bridge-" + c.IRC.Nickname
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos %d: must be 0, 1 or 2", c.MQTT.QoS)
	}

	c.minLevel = zerolog.DebugLevel
	if c.Logging.MinLevel != "" {
		level, err := zerolog.ParseLevel(c.Logging.MinLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.Logging.MinLevel, err)
		}
		c.minLevel = level
	}
	return nil
}

// MissingSettings returns every required setting that is empty, in a
// stable order.
func (c *Config) MissingSettings() []RequiredSetting {
	var missing []RequiredSetting
	if c.IRC.Server == "" {
		missing = append(missing, RequiredSetting{Variable: "irc_server", Description: "IRC Server"})
	}
	if c.IRC.Channel == "" {
		missing = append(missing, RequiredSetting{Variable: "irc_channel", Description: "IRC Channel"})
	}
	if c.MQTT.Server == "" {
		missing = append(missing, RequiredSetting{Variable: "mqtt_server", Description: "MQTT Server"})
	}
	if c.MQTT.Topic == "" {
		missing = append(missing, RequiredSetting{Variable: "mqtt_topic", Description: "MQTT Topic"})
	}
	return missing
}

// BrokerURL returns the broker address as a paho URL. A bare host gets the
// tcp scheme, and the default MQTT port when it has none. Servers given with
// a scheme (ssl://, ws://, wss://) are used as is.
func (c *MQTTConfig) BrokerURL() string {
	if strings.Contains(c.Server, "://") {
		return c.Server
	}
	host := c.Server
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, defaultMQTTPort)
	}
	return "tcp://" + host
}

// NewLogger creates the root logger writing to w.
func (c *Config) NewLogger(w io.Writer) zerolog.Logger {
	if c.Logging.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(c.minLevel).With().Timestamp().Logger()
}
