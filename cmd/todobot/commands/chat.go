package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/harmonyservices/todobot/pkg/todobot/config"
	"github.com/harmonyservices/todobot/pkg/todobot/conversation"
	"github.com/harmonyservices/todobot/pkg/todobot/enhance"
	"github.com/harmonyservices/todobot/pkg/todobot/store"
)

// newChatCmd creates the `todobot chat` command: a local REPL that drives
// the same dialogue the WhatsApp webhook does, useful for trying the bot
// without a messaging gateway.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot in the terminal",
		Long: `Start an interactive terminal session against the local task store.
The dialogue is identical to the WhatsApp one: send the trigger keyword
to activate, then follow the menu.

Example:
  todobot chat`,
		RunE: runChat,
	}
	cmd.Flags().String("address", "terminal", "session address to chat as")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)
	config.ResolveSecrets(cfg, logger)

	st, err := store.OpenSQLite(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening task store: %w", err)
	}
	defer st.Close()

	enhancer := enhance.NewOpenAIClient(cfg.Enhance, logger)
	engine := conversation.NewEngine(st, enhancer, conversation.NewMemoryStore(), cfg.Conversation.Trigger, logger)

	address, _ := cmd.Flags().GetString("address")

	rl, err := readline.New("you> ")
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	trigger := engineTrigger(cfg)
	fmt.Printf("TodoBot terminal chat. Send %s to begin, /quit to leave.\n\n", trigger)

	ctx := context.Background()
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		reply := engine.HandleMessage(ctx, address, line)
		if reply == "" {
			fmt.Println("(bot stays silent)")
			continue
		}
		fmt.Printf("bot> %s\n\n", reply)
	}
}
