// Package discord implements a Discord channel using discordgo. The task
// dialogue is personal, so the bot talks over direct messages: incoming DMs
// are forwarded to the conversation engine and replies go back to the same
// user.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/harmonyservices/todobot/pkg/todobot/channels"
)

// Config holds Discord channel configuration.
type Config struct {
	// Enabled turns the Discord channel on.
	Enabled bool `yaml:"enabled"`

	// Token is the Discord bot token.
	Token string `yaml:"token"`
}

// Discord implements channels.Channel over a discordgo session.
type Discord struct {
	cfg     Config
	logger  *slog.Logger
	session *discordgo.Session

	messages chan *channels.IncomingMessage

	connected  atomic.Bool
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64

	// dmChannels caches user id -> DM channel id.
	dmChannels   map[string]string
	dmChannelsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Discord channel instance.
func New(cfg Config, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		cfg:        cfg,
		logger:     logger.With("component", "discord"),
		messages:   make(chan *channels.IncomingMessage, 256),
		dmChannels: make(map[string]string),
	}
}

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Connect opens the Discord gateway WebSocket connection.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	d.session = session
	d.connected.Store(true)

	user := session.State.User
	d.logger.Info("discord: connected", "bot", user.Username, "id", user.ID)
	return nil
}

// Disconnect closes the Discord gateway connection.
func (d *Discord) Disconnect() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.session != nil {
		d.session.Close()
	}
	d.connected.Store(false)
	d.logger.Info("discord: disconnected")
	return nil
}

// Send delivers a text message to the given user id over DM. Long replies
// are split to fit the 2000 character message limit.
func (d *Discord) Send(ctx context.Context, to string, message *channels.OutgoingMessage) error {
	if d.session == nil {
		return channels.ErrChannelDisconnected
	}

	channelID, err := d.dmChannelFor(to)
	if err != nil {
		d.errorCount.Add(1)
		return fmt.Errorf("discord: opening DM with %s: %w", to, err)
	}

	for _, chunk := range splitMessage(message.Content, 2000) {
		if _, err := d.session.ChannelMessageSend(channelID, chunk); err != nil {
			d.errorCount.Add(1)
			return fmt.Errorf("discord: sending message: %w", err)
		}
	}
	return nil
}

// Receive returns the incoming messages channel.
func (d *Discord) Receive() <-chan *channels.IncomingMessage {
	return d.messages
}

// IsConnected returns true if the bot is connected.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// Health returns the channel health status.
func (d *Discord) Health() channels.HealthStatus {
	var lastAt time.Time
	if v := d.lastMsg.Load(); v != nil {
		lastAt = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     d.connected.Load(),
		LastMessageAt: lastAt,
		ErrorCount:    int(d.errorCount.Load()),
	}
}

// dmChannelFor resolves (and caches) the DM channel for a user id.
func (d *Discord) dmChannelFor(userID string) (string, error) {
	d.dmChannelsMu.Lock()
	defer d.dmChannelsMu.Unlock()

	if id, ok := d.dmChannels[userID]; ok {
		return id, nil
	}
	ch, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return "", err
	}
	d.dmChannels[userID] = ch.ID
	return ch.ID, nil
}

// onMessageCreate forwards direct messages to the consumer.
func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Skip our own messages and other bots.
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	// Guild messages are ignored, the dialogue is DM-only.
	if m.GuildID != "" {
		return
	}
	if m.Content == "" {
		return
	}

	// Remember the DM channel so replies skip the create call.
	d.dmChannelsMu.Lock()
	d.dmChannels[m.Author.ID] = m.ChannelID
	d.dmChannelsMu.Unlock()

	msg := &channels.IncomingMessage{
		ID:        m.ID,
		Channel:   "discord",
		From:      m.Author.ID,
		FromName:  m.Author.Username,
		ChatID:    m.ChannelID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}

	select {
	case d.messages <- msg:
		d.lastMsg.Store(time.Now())
	default:
		d.logger.Warn("discord: message channel full, dropping message", "from", msg.From)
	}
}

// splitMessage breaks content into chunks of at most limit bytes, preferring
// newline boundaries.
func splitMessage(content string, limit int) []string {
	if len(content) <= limit {
		return []string{content}
	}
	var chunks []string
	for len(content) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if content[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, content[:cut])
		content = content[cut:]
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}
