// Package twiliowhatsapp wraps the Twilio API for the GPTPipe WhatsApp transport.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Constants for Twilio client configuration
const (
	// WhatsAppPrefix prefixes WhatsApp addresses in Twilio
	WhatsAppPrefix = "whatsapp:"
	// DefaultMediaTimeout bounds media downloads
	DefaultMediaTimeout = 30 * time.Second
	// MaxMediaSize caps downloaded media
	MaxMediaSize = 16 << 20
)

// TwilioWhatsAppClient is the interface the Twilio messaging service depends on (for production and testing).
type TwilioWhatsAppClient interface {
	SendMessage(ctx context.Context, to string, body string) (string, error)
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error)
	ValidateSignature(url string, params map[string]string, signature string) bool
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
	HTTPClient *http.Client
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token, also used for webhook signatures.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sender in "whatsapp:+1234567890" format.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// WithHTTPClient sets the client used for media downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client     *twilio.RestClient
	validator  twilioClient.RequestValidator
	http       *http.Client
	accountSID string
	authToken  string
	fromWhats  string
}

// Compile-time check that Client implements TwilioWhatsAppClient.
var _ TwilioWhatsAppClient = (*Client)(nil)

// NewClient creates a Twilio client. Missing options fall back to TWILIO_* environment variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultMediaTimeout}
	}

	return &Client{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		validator:  twilioClient.NewRequestValidator(cfg.AuthToken),
		http:       cfg.HTTPClient,
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromWhats:  cfg.FromWhats,
	}, nil
}

// SendMessage sends a WhatsApp message to a phone number and returns the message SID.
func (c *Client) SendMessage(ctx context.Context, to string, body string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(WhatsAppPrefix + to)
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return "", fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	var sid string
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("Twilio message sent", "to", to, "sid", sid)
	return sid, nil
}

// DownloadMedia fetches an inbound media URL with account credentials.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download media: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, MaxMediaSize))
}

// ValidateSignature checks the X-Twilio-Signature of a webhook request.
func (c *Client) ValidateSignature(url string, params map[string]string, signature string) bool {
	return c.validator.Validate(url, params, signature)
}

// MockClient implements TwilioWhatsAppClient in memory (for tests).
type MockClient struct {
	SentMessages []SentMessage
	Media        map[string][]byte
	// ValidSignature is the only signature ValidateSignature accepts; empty accepts all.
	ValidSignature string
}

type SentMessage struct {
	To   string
	Body string
}

func NewMockClient() *MockClient {
	return &MockClient{
		SentMessages: []SentMessage{},
		Media:        map[string][]byte{},
	}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) (string, error) {
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return fmt.Sprintf("SM%d", len(m.SentMessages)), nil
}

func (m *MockClient) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	data, ok := m.Media[mediaURL]
	if !ok {
		return nil, fmt.Errorf("media %s not found", mediaURL)
	}
	return data, nil
}

func (m *MockClient) ValidateSignature(url string, params map[string]string, signature string) bool {
	return m.ValidSignature == "" || signature == m.ValidSignature
}
