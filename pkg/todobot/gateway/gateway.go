// Package gateway provides the HTTP surface of TodoBot: the WhatsApp webhook
// entry point, the REST /tasks API used by the web UI, and the embedded pages.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/harmonyservices/todobot/pkg/todobot/conversation"
	"github.com/harmonyservices/todobot/pkg/todobot/enhance"
	"github.com/harmonyservices/todobot/pkg/todobot/messenger"
	"github.com/harmonyservices/todobot/pkg/todobot/store"
)

// Config holds the HTTP gateway configuration.
type Config struct {
	// Address is the listen address (host:port).
	Address string `yaml:"address"`

	// AuthToken, when set, is required as a Bearer token on /tasks requests.
	// The webhook and health endpoints stay public.
	AuthToken string `yaml:"auth_token"`

	// CORSOrigins lists allowed origins for browser clients ("*" for any).
	CORSOrigins []string `yaml:"cors_origins"`

	// BotNumber is the bot's own WhatsApp number; inbound messages from it
	// are discarded to avoid reply loops.
	BotNumber string `yaml:"bot_number"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{Address: ":8080"}
}

// Gateway is the HTTP server tying the webhook, the REST API, and the web UI
// to the conversation engine and the task store.
type Gateway struct {
	cfg       Config
	engine    *conversation.Engine
	store     store.Store
	enhancer  enhance.Enhancer
	sender    messenger.Sender
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a Gateway.
func New(cfg Config, engine *conversation.Engine, st store.Store, enhancer enhance.Enhancer, sender messenger.Sender, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	return &Gateway{
		cfg:      cfg,
		engine:   engine,
		store:    st,
		enhancer: enhancer,
		sender:   sender,
		logger:   logger.With("component", "gateway"),
	}
}

// routes builds the full handler with the middleware chain applied.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	// Health (always public).
	mux.HandleFunc("/health", g.handleHealth)

	// WhatsApp webhook (public, the messaging gateway cannot authenticate).
	mux.HandleFunc("/webhook/whatsapp", g.handleWebhook)

	// Task CRUD for the web UI.
	mux.HandleFunc("/tasks", g.handleTasks)
	mux.HandleFunc("/tasks/", g.handleTaskByID)

	// Embedded pages.
	mux.HandleFunc("/", g.handleIndex)
	mux.HandleFunc("/chatbot", g.handleChatbot)

	return g.securityHeadersMiddleware(g.corsMiddleware(g.authMiddleware(mux)))
}

// Start starts the HTTP server in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:    g.cfg.Address,
		Handler: g.routes(),
	}

	// Warn when the task API has no auth token and is bound beyond loopback.
	if g.cfg.AuthToken == "" {
		host, _, _ := net.SplitHostPort(g.cfg.Address)
		if host == "" {
			host = "0.0.0.0"
		}
		ip := net.ParseIP(host)
		isLoopback := ip != nil && ip.IsLoopback()
		if !isLoopback && host != "localhost" {
			g.logger.Warn("SECURITY: task API has no auth token and is bound to a non-loopback address",
				"address", g.cfg.Address)
		}
	}

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", g.cfg.Address)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping...")
	return g.server.Shutdown(ctx)
}

// handleHealth implements GET /health.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"webhook":        "ready",
		"uptime_seconds": int(time.Since(g.startedAt).Seconds()),
	})
}

// errorResponse is the consistent error format.
type errorResponse struct {
	Error string `json:"error"`
}

func (g *Gateway) writeError(w http.ResponseWriter, msg string, code int) {
	g.writeJSON(w, code, errorResponse{Error: msg})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
