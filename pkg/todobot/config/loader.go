package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment variable references in config values:
//   - ${VAR}            simple variable
//   - ${VAR:-default}   default value if not set
//   - ${VAR:?error}     error message if not set
//   - $VAR              bare variable
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadFromFile reads and parses a YAML configuration file. .env files are
// loaded first and environment references in the YAML are expanded before
// parsing. A ${VAR:?message} reference with VAR unset is an error.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVarsWithValidation(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := Parse([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveRelativePaths(cfg, path)
	checkFilePermissions(path)

	return cfg, nil
}

// Parse parses YAML bytes into a Config, overlaying the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes a Config as YAML. Secrets that match an environment
// variable are replaced with the reference, and the previous file is kept as
// a .bak backup.
func SaveToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.Enhance.APIKey = sanitizeSecret(cfg.Enhance.APIKey, "OPENAI_API_KEY")
	sanitized.Messenger.Token = sanitizeSecret(cfg.Messenger.Token, "ULTRAMSG_TOKEN")
	sanitized.Discord.Token = sanitizeSecret(cfg.Discord.Token, "DISCORD_BOT_TOKEN")
	sanitized.Gateway.AuthToken = sanitizeSecret(cfg.Gateway.AuthToken, "TODOBOT_AUTH_TOKEN")

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches standard locations for a config file.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"todobot.yaml",
		"todobot.yml",
		"configs/config.yaml",
		"configs/todobot.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadEnvFiles loads .env files without overwriting existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces environment references in a string. Unset variables
// without a modifier keep their placeholder; ${VAR:?msg} returns an ERROR:
// marker that expandEnvVarsWithValidation turns into an error.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		varName, modifier, modValue, bareVar := sub[1], sub[2], sub[3], sub[4]

		if bareVar != "" {
			if val, ok := os.LookupEnv(bareVar); ok {
				return val
			}
			return match
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		switch modifier {
		case "?":
			msg := modValue
			if msg == "" {
				msg = "required environment variable not set"
			}
			return "ERROR:" + varName + ":" + msg
		case "-":
			return modValue
		}
		return match
	})
}

func expandEnvVarsWithValidation(input string) (string, error) {
	result := expandEnvVars(input)
	if idx := strings.Index(result, "ERROR:"); idx >= 0 {
		rest := result[idx+len("ERROR:"):]
		colon := strings.Index(rest, ":")
		if colon == -1 {
			return "", fmt.Errorf("config error: malformed error marker")
		}
		msg := rest[colon+1:]
		if nl := strings.IndexByte(msg, '\n'); nl >= 0 {
			msg = msg[:nl]
		}
		return "", fmt.Errorf("config error: %s - %s", rest[:colon], msg)
	}
	return result, nil
}

// resolveRelativePaths resolves file paths against the config file's
// directory so startup works from any working directory.
func resolveRelativePaths(cfg *Config, configPath string) {
	configDir := filepath.Dir(configPath)
	cfg.Store.Path = resolvePathFromConfig(cfg.Store.Path, configDir)
	cfg.WhatsApp.SessionDir = resolvePathFromConfig(cfg.WhatsApp.SessionDir, configDir)
}

func resolvePathFromConfig(path, configDir string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		path = filepath.Join(home, path[2:])
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}

// sanitizeSecret replaces a real secret with an env var reference when the
// variable carries the same value.
func sanitizeSecret(value, envVar string) string {
	if value == "" || IsEnvReference(value) {
		return value
	}
	if os.Getenv(envVar) == value {
		return "${" + envVar + "}"
	}
	return value
}

// IsEnvReference checks if a string is an environment variable reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") || strings.HasPrefix(s, "$")
}

// checkFilePermissions warns if the config file is group/world readable.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
		)
	}
}
