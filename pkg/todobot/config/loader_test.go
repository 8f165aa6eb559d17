package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
gateway:
  address: ":9090"
conversation:
  trigger: "#tasks"
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Gateway.Address != ":9090" {
		t.Errorf("gateway.address = %q, want :9090", cfg.Gateway.Address)
	}
	if cfg.Conversation.Trigger != "#tasks" {
		t.Errorf("trigger = %q, want #tasks", cfg.Conversation.Trigger)
	}
	// Untouched sections keep their defaults.
	if cfg.Store.Path != "./data/todobot.db" {
		t.Errorf("store.path = %q, want default", cfg.Store.Path)
	}
	if cfg.Digest.Schedule != "0 8 * * *" {
		t.Errorf("digest.schedule = %q, want default", cfg.Digest.Schedule)
	}
}

func TestParseRejectsBadYAML(t *testing.T) {
	if _, err := Parse([]byte("gateway: [not a map")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TODOBOT_TEST_TOKEN", "tok-123")

	t.Run("simple reference", func(t *testing.T) {
		got := expandEnvVars("token: ${TODOBOT_TEST_TOKEN}")
		if got != "token: tok-123" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("default value", func(t *testing.T) {
		got := expandEnvVars("addr: ${TODOBOT_TEST_UNSET:-:8080}")
		if got != "addr: :8080" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("unset without modifier keeps placeholder", func(t *testing.T) {
		got := expandEnvVars("key: ${TODOBOT_TEST_UNSET}")
		if got != "key: ${TODOBOT_TEST_UNSET}" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("required variable errors when unset", func(t *testing.T) {
		_, err := expandEnvVarsWithValidation("key: ${TODOBOT_TEST_UNSET:?token is required}")
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "token is required") {
			t.Errorf("error %q does not carry the message", err)
		}
	})
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("TODOBOT_TEST_TOKEN", "tok-456")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
gateway:
  auth_token: ${TODOBOT_TEST_TOKEN}
store:
  path: data/tasks.db
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.AuthToken != "tok-456" {
		t.Errorf("auth_token = %q, want expanded env value", cfg.Gateway.AuthToken)
	}
	want := filepath.Join(dir, "data/tasks.db")
	if cfg.Store.Path != want {
		t.Errorf("store.path = %q, want %q (resolved against config dir)", cfg.Store.Path, want)
	}
}

func TestSaveToFileSanitizesSecrets(t *testing.T) {
	t.Setenv("ULTRAMSG_TOKEN", "secret-tok")

	cfg := DefaultConfig()
	cfg.Messenger.Token = "secret-tok"

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := SaveToFile(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if strings.Contains(string(data), "secret-tok") {
		t.Error("plaintext secret written to config file")
	}
	if !strings.Contains(string(data), "${ULTRAMSG_TOKEN}") {
		t.Error("expected env reference in saved config")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %04o, want 0600", perm)
	}
}

func TestValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		if err := DefaultConfig().Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("discord enabled without token", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Discord.Enabled = true
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing discord token")
		}
	})
}
