// Package messenger delivers outbound chat texts through an UltraMsg-style
// WhatsApp HTTP gateway. Delivery is best-effort: Send returns the transport
// error and callers decide whether to log, retry, or drop it.
package messenger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sender sends a text message to a phone-number-like address.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// Config holds the messaging gateway configuration.
type Config struct {
	// BaseURL is the gateway root (e.g. "https://api.ultramsg.com").
	BaseURL string `yaml:"base_url"`

	// InstanceID identifies the gateway instance.
	InstanceID string `yaml:"instance_id"`

	// Token authenticates against the gateway. Resolved from the keyring or
	// environment when empty in the config file.
	Token string `yaml:"token"`

	// Timeout bounds a single send call.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.ultramsg.com",
		Timeout: 15 * time.Second,
	}
}

// UltraMsg implements Sender against the UltraMsg chat API.
type UltraMsg struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an UltraMsg sender from config.
func New(cfg Config, logger *slog.Logger) *UltraMsg {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.ultramsg.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &UltraMsg{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "messenger"),
	}
}

// Send posts a form-encoded chat message to the gateway.
func (m *UltraMsg) Send(ctx context.Context, to, text string) error {
	if m.cfg.InstanceID == "" || m.cfg.Token == "" {
		return fmt.Errorf("messenger: instance_id and token are required")
	}

	form := url.Values{
		"token": {m.cfg.Token},
		"to":    {to},
		"body":  {text},
	}
	endpoint := fmt.Sprintf("%s/%s/messages/chat", m.cfg.BaseURL, m.cfg.InstanceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gateway status %d sending to %s: %s",
			resp.StatusCode, to, strings.TrimSpace(string(raw)))
	}

	m.logger.Debug("message sent", "to", to, "chars", len(text))
	return nil
}
