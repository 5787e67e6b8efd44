// Package whatsapp wraps the Whatsmeow client for the GPTPipe WhatsApp transport.
//
// It handles device login, text sends and edits, and media downloads.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/GPTPipe/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow device database
	DefaultSQLitePath = "/var/lib/gptpipe/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
)

// WhatsAppClient is the interface the WhatsApp messaging service depends on (for production and testing).
type WhatsAppClient interface {
	SendText(ctx context.Context, to string, body string) (string, error)
	EditText(ctx context.Context, to string, messageID string, body string) error
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
	AddEventHandler(handler func(evt any))
	Disconnect()
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints the raw login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps the Whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

// Compile-time check that Client implements WhatsAppClient.
var _ WhatsAppClient = (*Client)(nil)

// driverFor picks the database/sql driver for a whatsmeow DSN.
func driverFor(dsn string) string {
	if store.DetectDSNType(dsn) == "postgres" {
		return "postgres"
	}
	if !strings.Contains(dsn, "foreign_keys") {
		slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
			"Consider adding '?_foreign_keys=on' to your connection string.",
			"dsn_example", "file:"+dsn+"?_foreign_keys=on")
	}
	return "sqlite3"
}

// NewClient opens the device store, logs in when no device is paired, and connects.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}
	dbDriver := driverFor(dbDSN)

	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID == nil {
		if err := login(ctx, waClient, cfg); err != nil {
			return nil, err
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp server", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

// login runs the QR pairing flow until the channel closes.
func login(ctx context.Context, waClient *whatsmeow.Client, cfg Opts) error {
	slog.Info("WhatsApp login required; starting QR code flow")
	qrChan, _ := waClient.GetQRChannel(ctx)
	if err := waClient.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp during login", "error", err)
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}
	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			slog.Error("Failed to create QR file", "error", err)
			return fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		writer = f
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			slog.Info("WhatsApp login event", "event", evt.Event)
			continue
		}
		if cfg.NumericCode {
			fmt.Fprintln(writer, evt.Code)
		} else {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
		}
	}
	return nil
}

func (c *Client) ready() error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if c.waClient.Store == nil {
		return fmt.Errorf("whatsapp client store not available")
	}
	return nil
}

// SendText sends a text message to a phone number and returns the message id.
func (c *Client) SendText(ctx context.Context, to string, body string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if to == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return "", fmt.Errorf("message body cannot be empty")
	}

	slog.Debug("Sending WhatsApp message", "to", to, "body_length", len(body))
	resp, err := c.waClient.SendMessage(ctx, types.NewJID(to, JIDSuffix), &waE2E.Message{Conversation: &body})
	if err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", to)
		return "", fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return resp.ID, nil
}

// EditText replaces the body of a previously sent message.
func (c *Client) EditText(ctx context.Context, to string, messageID string, body string) error {
	if err := c.ready(); err != nil {
		return err
	}
	jid := types.NewJID(to, JIDSuffix)
	edit := c.waClient.BuildEdit(jid, types.MessageID(messageID), &waE2E.Message{Conversation: &body})
	if _, err := c.waClient.SendMessage(ctx, jid, edit); err != nil {
		slog.Error("Failed to edit WhatsApp message", "error", err, "to", to, "message_id", messageID)
		return fmt.Errorf("failed to edit message %s: %w", messageID, err)
	}
	return nil
}

// Download fetches and decrypts a media attachment.
func (c *Client) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	data, err := c.waClient.Download(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	return data, nil
}

// AddEventHandler registers a whatsmeow event handler.
func (c *Client) AddEventHandler(handler func(evt any)) {
	c.waClient.AddEventHandler(handler)
}

// Disconnect closes the websocket connection.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// MockClient implements WhatsAppClient in memory (for tests).
type MockClient struct {
	Sent     []SentMessage
	Edited   []SentMessage
	Media    []byte
	handlers []func(evt any)
	nextID   int
}

// SentMessage records a sent or edited message.
type SentMessage struct {
	To   string
	ID   string
	Body string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendText(ctx context.Context, to string, body string) (string, error) {
	m.nextID++
	id := fmt.Sprintf("mock-%d", m.nextID)
	m.Sent = append(m.Sent, SentMessage{To: to, ID: id, Body: body})
	return id, nil
}

func (m *MockClient) EditText(ctx context.Context, to string, messageID string, body string) error {
	m.Edited = append(m.Edited, SentMessage{To: to, ID: messageID, Body: body})
	return nil
}

func (m *MockClient) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	return m.Media, nil
}

func (m *MockClient) AddEventHandler(handler func(evt any)) {
	m.handlers = append(m.handlers, handler)
}

// Dispatch delivers evt to every registered handler.
func (m *MockClient) Dispatch(evt any) {
	for _, h := range m.handlers {
		h(evt)
	}
}

func (m *MockClient) Disconnect() {}
