// Package telegram wraps the Telegram Bot API client for GPTPipe.
//
// It provides methods for receiving updates, sending and editing HTML messages with
// inline keyboards, answering callbacks, and downloading files.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Constants for Telegram client configuration
const (
	// DefaultUpdateTimeout is the long-polling timeout in seconds
	DefaultUpdateTimeout = 60
	// DefaultDownloadTimeout bounds file downloads
	DefaultDownloadTimeout = 30 * time.Second
	// MaxDownloadSize caps downloaded files (Bot API download limit is 20 MB)
	MaxDownloadSize = 20 << 20
)

// BotAPI is the subset of *tgbotapi.BotAPI used by Client.
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// BotClient is the interface the Telegram messaging service depends on (for production and testing).
type BotClient interface {
	Updates() tgbotapi.UpdatesChannel
	StopUpdates()
	SendText(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
	SetCommands(ctx context.Context, commands []Command) error
}

// Command is one entry of the bot's command menu.
type Command struct {
	Name        string
	Description string
}

// Opts holds configuration options for the Telegram client.
type Opts struct {
	Token      string
	Debug      bool
	HTTPClient *http.Client
}

// Option defines a configuration option for the Telegram client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithDebug enables request logging inside the Bot API library.
func WithDebug(debug bool) Option {
	return func(o *Opts) { o.Debug = debug }
}

// WithHTTPClient sets the client used for file downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client wraps the Bot API client.
type Client struct {
	bot  BotAPI
	http *http.Client
}

// Compile-time check that Client implements BotClient.
var _ BotClient = (*Client)(nil)

// NewClient connects to the Bot API with the configured token.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Telegram NewClient options set", "Token_set", cfg.Token != "", "Debug", cfg.Debug)
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token must be provided")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		slog.Error("Failed to initialize Telegram bot", "error", err)
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)
	return NewClientWithBot(bot, cfg.HTTPClient), nil
}

// NewClientWithBot wraps an existing BotAPI. A nil httpClient uses a client with DefaultDownloadTimeout.
func NewClientWithBot(bot BotAPI, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultDownloadTimeout}
	}
	return &Client{bot: bot, http: httpClient}
}

// Updates starts long polling and returns the update channel.
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = DefaultUpdateTimeout
	return c.bot.GetUpdatesChan(u)
}

// StopUpdates stops long polling and closes the update channel.
func (c *Client) StopUpdates() {
	c.bot.StopReceivingUpdates()
}

// SendText sends an HTML message and returns its message id.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := c.bot.Send(msg)
	if err != nil {
		slog.Error("Telegram SendText failed", "chat_id", chatID, "error", err)
		return 0, fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	slog.Debug("Telegram message sent", "chat_id", chatID, "message_id", sent.MessageID)
	return sent.MessageID, nil
}

// EditText replaces the text and keyboard of a message. A nil markup removes the keyboard.
func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	var edit tgbotapi.EditMessageTextConfig
	if markup != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := c.bot.Request(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			slog.Debug("Telegram EditText unchanged", "chat_id", chatID, "message_id", messageID)
			return nil
		}
		slog.Error("Telegram EditText failed", "chat_id", chatID, "message_id", messageID, "error", err)
		return fmt.Errorf("failed to edit message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if _, err := c.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		slog.Warn("Telegram AnswerCallback failed", "callback_id", callbackID, "error", err)
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// DownloadFile resolves a file id and downloads its content.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file %s: %w", fileID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file %s: status %d", fileID, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	slog.Debug("Telegram file downloaded", "file_id", fileID, "bytes", len(data))
	return data, nil
}

// SetCommands registers the bot command menu.
func (c *Client) SetCommands(ctx context.Context, commands []Command) error {
	cmds := make([]tgbotapi.BotCommand, 0, len(commands))
	for _, cmd := range commands {
		cmds = append(cmds, tgbotapi.BotCommand{Command: cmd.Name, Description: cmd.Description})
	}
	if _, err := c.bot.Request(tgbotapi.NewSetMyCommands(cmds...)); err != nil {
		slog.Error("Telegram SetCommands failed", "error", err)
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	slog.Info("Telegram bot commands registered", "count", len(cmds))
	return nil
}
