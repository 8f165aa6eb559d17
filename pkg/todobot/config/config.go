// Package config defines the TodoBot configuration file format and its
// loader. Configuration is YAML with environment variable expansion; secrets
// resolve through the OS keyring and environment before falling back to the
// file itself.
package config

import (
	"fmt"

	"github.com/harmonyservices/todobot/pkg/todobot/channels/discord"
	"github.com/harmonyservices/todobot/pkg/todobot/channels/whatsapp"
	"github.com/harmonyservices/todobot/pkg/todobot/conversation"
	"github.com/harmonyservices/todobot/pkg/todobot/enhance"
	"github.com/harmonyservices/todobot/pkg/todobot/gateway"
	"github.com/harmonyservices/todobot/pkg/todobot/messenger"
	"github.com/harmonyservices/todobot/pkg/todobot/scheduler"
	"github.com/harmonyservices/todobot/pkg/todobot/store"
)

// Config is the root TodoBot configuration.
type Config struct {
	// Gateway configures the HTTP server (webhook, REST API, web UI).
	Gateway gateway.Config `yaml:"gateway"`

	// Store configures the SQLite task database.
	Store store.SQLiteConfig `yaml:"store"`

	// Enhance configures the AI enhancement service.
	Enhance enhance.Config `yaml:"enhance"`

	// Messenger configures the outbound UltraMsg sender.
	Messenger messenger.Config `yaml:"messenger"`

	// Conversation configures the dialogue engine.
	Conversation ConversationConfig `yaml:"conversation"`

	// WhatsApp configures the optional native whatsmeow channel.
	WhatsApp whatsapp.Config `yaml:"whatsapp"`

	// Discord configures the optional Discord DM channel.
	Discord discord.Config `yaml:"discord"`

	// Digest configures the scheduled open-task summary.
	Digest scheduler.Config `yaml:"digest"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ConversationConfig holds dialogue engine settings.
type ConversationConfig struct {
	// Trigger is the activation keyword for fresh sessions.
	Trigger string `yaml:"trigger"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Gateway: gateway.DefaultConfig(),
		Store: store.SQLiteConfig{
			Path:        "./data/todobot.db",
			JournalMode: "WAL",
			BusyTimeout: 5000,
		},
		Enhance:   enhance.DefaultConfig(),
		Messenger: messenger.DefaultConfig(),
		Conversation: ConversationConfig{
			Trigger: conversation.DefaultTrigger,
		},
		WhatsApp: whatsapp.DefaultConfig(),
		Digest:   scheduler.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks settings that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	if c.Gateway.Address == "" {
		return fmt.Errorf("gateway.address is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Discord.Enabled && c.Discord.Token == "" {
		return fmt.Errorf("discord.token is required when discord is enabled")
	}
	return nil
}
