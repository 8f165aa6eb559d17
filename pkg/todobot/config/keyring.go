// Package config – keyring.go resolves secrets through the operating
// system's native keyring (Linux: Secret Service, macOS: Keychain, Windows:
// Credential Manager).
//
// Priority for each secret:
//  1. OS keyring (encrypted by the OS)
//  2. Environment variable (also covers .env via godotenv)
//  3. config.yaml value (plaintext on disk, least secure)
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "todobot"

	// KeyOpenAI is the keyring entry for the enhancement API key.
	KeyOpenAI = "openai_api_key"

	// KeyUltraMsg is the keyring entry for the UltraMsg token.
	KeyUltraMsg = "ultramsg_token"

	// KeyDiscord is the keyring entry for the Discord bot token.
	KeyDiscord = "discord_token"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring, or "" if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__todobot_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveSecrets fills the config's secret fields from the keyring and
// environment, in that order, leaving config file values as the last resort.
func ResolveSecrets(cfg *Config, logger *slog.Logger) {
	cfg.Enhance.APIKey = resolveSecret(cfg.Enhance.APIKey, KeyOpenAI,
		[]string{"OPENAI_API_KEY", "TODOBOT_API_KEY"}, "enhancement API key", logger)

	cfg.Messenger.Token = resolveSecret(cfg.Messenger.Token, KeyUltraMsg,
		[]string{"ULTRAMSG_TOKEN"}, "UltraMsg token", logger)

	if cfg.Discord.Enabled {
		cfg.Discord.Token = resolveSecret(cfg.Discord.Token, KeyDiscord,
			[]string{"DISCORD_BOT_TOKEN"}, "Discord token", logger)
	}

	if cfg.Gateway.AuthToken == "" || IsEnvReference(cfg.Gateway.AuthToken) {
		if val := os.Getenv("TODOBOT_AUTH_TOKEN"); val != "" {
			cfg.Gateway.AuthToken = val
		}
	}
}

// resolveSecret runs one secret through the keyring, then the env vars, then
// keeps the config value.
func resolveSecret(current, keyringKey string, envVars []string, name string, logger *slog.Logger) string {
	if val := GetKeyring(keyringKey); val != "" {
		logger.Debug("secret loaded from OS keyring", "secret", name)
		return val
	}
	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			logger.Debug("secret loaded from environment", "secret", name, "var", env)
			return val
		}
	}
	if current != "" && !IsEnvReference(current) {
		return current
	}
	return ""
}

// ReadPassword prompts for a secret without echoing it to the terminal.
func ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}
