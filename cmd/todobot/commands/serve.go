package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harmonyservices/todobot/pkg/todobot/channels"
	"github.com/harmonyservices/todobot/pkg/todobot/channels/discord"
	"github.com/harmonyservices/todobot/pkg/todobot/channels/whatsapp"
	"github.com/harmonyservices/todobot/pkg/todobot/config"
	"github.com/harmonyservices/todobot/pkg/todobot/conversation"
	"github.com/harmonyservices/todobot/pkg/todobot/enhance"
	"github.com/harmonyservices/todobot/pkg/todobot/gateway"
	"github.com/harmonyservices/todobot/pkg/todobot/messenger"
	"github.com/harmonyservices/todobot/pkg/todobot/scheduler"
	"github.com/harmonyservices/todobot/pkg/todobot/store"
)

// newServeCmd creates the `todobot serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bot daemon",
		Long: `Start TodoBot as a daemon: the HTTP gateway (WhatsApp webhook,
REST API, web UI), the daily digest, and any enabled native channels.

Examples:
  todobot serve
  todobot serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := buildLogger(cmd, cfg)
	config.ResolveSecrets(cfg, logger)

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Task store.
	st, err := store.OpenSQLite(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening task store: %w", err)
	}
	defer st.Close()
	logger.Info("task store ready", "path", cfg.Store.Path)

	// Enhancement service.
	var enhancer enhance.Enhancer = enhance.NewOpenAIClient(cfg.Enhance, logger)
	if cfg.Enhance.APIKey == "" {
		logger.Warn("no enhancement API key configured, tasks will use the local breakdown")
	}

	// Outbound sender.
	sender := messenger.New(cfg.Messenger, logger)
	if cfg.Messenger.Token == "" {
		logger.Warn("no UltraMsg token configured, webhook replies cannot be delivered")
	}

	// Conversation engine with in-process sessions.
	sessions := conversation.NewMemoryStore()
	engine := conversation.NewEngine(st, enhancer, sessions, cfg.Conversation.Trigger, logger)

	// HTTP gateway.
	gw := gateway.New(cfg.Gateway, engine, st, enhancer, sender, logger)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	// Daily digest.
	var digest *scheduler.Digest
	if cfg.Digest.Enabled {
		digest = scheduler.New(cfg.Digest, sessions, st, sender, logger)
		if err := digest.Start(ctx); err != nil {
			return fmt.Errorf("starting digest scheduler: %w", err)
		}
	}

	// Native channels feeding the same engine.
	var native []channels.Channel
	if cfg.WhatsApp.Enabled {
		wa := whatsapp.New(cfg.WhatsApp, logger)
		if err := wa.Connect(ctx); err != nil {
			logger.Error("failed to connect WhatsApp channel", "error", err)
		} else {
			native = append(native, wa)
			go routeChannel(ctx, wa, engine, logger)
		}
	}
	if cfg.Discord.Enabled {
		dc := discord.New(cfg.Discord, logger)
		if err := dc.Connect(ctx); err != nil {
			logger.Error("failed to connect Discord channel", "error", err)
		} else {
			native = append(native, dc)
			go routeChannel(ctx, dc, engine, logger)
		}
	}

	logger.Info("TodoBot running. Press Ctrl+C to stop.",
		"address", cfg.Gateway.Address,
		"trigger", engineTrigger(cfg),
		"channels", len(native),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		for _, ch := range native {
			_ = ch.Disconnect()
		}
		if digest != nil {
			digest.Stop()
		}
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		_ = gw.Stop(shutdownCtx)
		cancelShutdown()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}
	return nil
}

// routeChannel pumps a native channel's messages through the engine and
// sends the replies back over the same channel.
func routeChannel(ctx context.Context, ch channels.Channel, engine *conversation.Engine, logger *slog.Logger) {
	for msg := range ch.Receive() {
		if msg.IsGroup {
			continue
		}
		reply := engine.HandleMessage(ctx, msg.From, msg.Content)
		if reply == "" {
			continue
		}
		if err := ch.Send(ctx, msg.From, &channels.OutgoingMessage{Content: reply, ReplyTo: msg.ID}); err != nil {
			logger.Error("reply delivery failed", "channel", ch.Name(), "to", msg.From, "error", err)
		}
	}
}

// resolveConfig loads the config from the explicit flag, a discovered file,
// or the defaults.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := config.FindConfigFile(); found != "" {
		cfg, err := config.LoadFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	slog.Warn("no configuration file found, using defaults (run `todobot setup` to create one)")
	return config.DefaultConfig(), nil
}

// buildLogger configures slog from the config and the --verbose flag.
func buildLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	switch {
	case verbose || cfg.Logging.Level == "debug":
		level = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		level = slog.LevelWarn
	case cfg.Logging.Level == "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func engineTrigger(cfg *config.Config) string {
	if cfg.Conversation.Trigger != "" {
		return cfg.Conversation.Trigger
	}
	return conversation.DefaultTrigger
}
