package commands

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/harmonyservices/todobot/pkg/todobot/config"
)

// newSetupCmd creates the `todobot setup` command: an interactive wizard
// that writes config.yaml and stores secrets in the OS keyring.
func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run configuration",
		Long: `Walk through the initial configuration: gateway address, trigger
keyword, UltraMsg credentials, and the enhancement API key. Secrets go to
the OS keyring when available; everything else is written to config.yaml.`,
		RunE: runSetup,
	}
	cmd.Flags().String("output", "config.yaml", "where to write the configuration")
	return cmd
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg := config.DefaultConfig()

	var (
		apiKey        string
		ultraToken    string
		digestEnabled = cfg.Digest.Enabled
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway listen address").
				Description("host:port for the webhook, REST API, and web UI").
				Value(&cfg.Gateway.Address),
			huh.NewInput().
				Title("Activation keyword").
				Description("the message that wakes the bot in a fresh chat").
				Value(&cfg.Conversation.Trigger),
			huh.NewInput().
				Title("Task database path").
				Value(&cfg.Store.Path),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("UltraMsg instance ID").
				Description("leave empty if you only use the native channel or the web UI").
				Value(&cfg.Messenger.InstanceID),
			huh.NewInput().
				Title("UltraMsg token").
				EchoMode(huh.EchoModePassword).
				Value(&ultraToken),
			huh.NewInput().
				Title("Bot WhatsApp number").
				Description("used to filter the bot's own messages out of the webhook").
				Value(&cfg.Gateway.BotNumber),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API key").
				Description("leave empty to always use the local task breakdown").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewConfirm().
				Title("Send a daily open-task digest?").
				Value(&digestEnabled),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	cfg.Digest.Enabled = digestEnabled

	// Secrets go to the keyring when one is available; otherwise they stay
	// in the config file with a warning.
	keyringOK := config.KeyringAvailable()
	storeSecret := func(key, value, name string) {
		if value == "" {
			return
		}
		if keyringOK {
			if err := config.StoreKeyring(key, value); err == nil {
				fmt.Printf("✓ %s stored in the OS keyring\n", name)
				return
			}
		}
		fmt.Printf("! keyring unavailable, %s will be written to the config file\n", name)
		switch key {
		case config.KeyOpenAI:
			cfg.Enhance.APIKey = value
		case config.KeyUltraMsg:
			cfg.Messenger.Token = value
		}
	}
	storeSecret(config.KeyOpenAI, apiKey, "OpenAI API key")
	storeSecret(config.KeyUltraMsg, ultraToken, "UltraMsg token")

	output, _ := cmd.Flags().GetString("output")
	if err := config.SaveToFile(cfg, output); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("\nSetup complete! Configuration written to %s\n", output)
	fmt.Println("Start the bot with: todobot serve")
	return nil
}
