package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/GPTPipe/internal/twiliowhatsapp"
)

// phoneNumberRegex strips everything but digits.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// TwilioService implements Service using the Twilio API. Inbound messages arrive through WebhookHandler.
type TwilioService struct {
	client     twiliowhatsapp.TwilioWhatsAppClient
	menus      *MenuMemory
	webhookURL string // public URL the signature is computed over; empty rejects every request
	events     chan Event
	mu         sync.RWMutex
	stopped    bool
}

// Compile-time check that TwilioService implements Service.
var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a TwilioService. Webhook requests must carry an X-Twilio-Signature valid for webhookURL.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppClient, webhookURL string) *TwilioService {
	return &TwilioService{
		client:     client,
		menus:      NewMenuMemory(),
		webhookURL: webhookURL,
		events:     make(chan Event, DefaultChannelBufferSize),
	}
}

// ChatIDFromAddress converts "whatsapp:+15551234567" to 15551234567.
func ChatIDFromAddress(addr string) (int64, error) {
	digits := phoneNumberRegex.ReplaceAllString(strings.TrimPrefix(addr, twiliowhatsapp.WhatsAppPrefix), "")
	if len(digits) < 6 {
		return 0, fmt.Errorf("invalid phone number %q", addr)
	}
	return strconv.ParseInt(digits, 10, 64)
}

// Start is a no-op; messages are pushed by the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the Events channel.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.events)
	return nil
}

// Events returns the channel of inbound events.
func (s *TwilioService) Events() <-chan Event {
	return s.events
}

// Send renders msg as text with a numbered menu and sends it.
func (s *TwilioService) Send(ctx context.Context, chatID int64, msg Outbound) (MessageRef, error) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return MessageRef{}, ErrServiceStopped
	}
	sid, err := s.client.SendMessage(ctx, "+"+strconv.FormatInt(chatID, 10), s.menus.Render(chatID, msg))
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChatID: chatID, MessageID: sid}, nil
}

// Edit sends a new message; Twilio cannot edit sent WhatsApp messages.
func (s *TwilioService) Edit(ctx context.Context, ref MessageRef, msg Outbound) error {
	_, err := s.Send(ctx, ref.ChatID, msg)
	return err
}

// AnswerCallback is a no-op.
func (s *TwilioService) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return nil
}

// DownloadImage fetches the media URL carried in FileID.
func (s *TwilioService) DownloadImage(ctx context.Context, img Image) ([]byte, error) {
	return s.client.DownloadMedia(ctx, img.FileID)
}

// WebhookHandler handles inbound Twilio webhook requests and emits them as events.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.webhookURL == "" {
		slog.Warn("Twilio webhook rejected, no webhook URL configured for signature validation", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	if !s.client.ValidateSignature(s.webhookURL, params, r.Header.Get("X-Twilio-Signature")) {
		slog.Warn("Twilio webhook signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	from := r.FormValue("From")
	chatID, err := ChatIDFromAddress(from)
	if err != nil {
		slog.Warn("Twilio webhook invalid sender", "from", from, "error", err)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	sender := Sender{ID: chatID, Username: r.FormValue("ProfileName")}
	sid := r.FormValue("MessageSid")

	var ev Event
	if n, _ := strconv.Atoi(r.FormValue("NumMedia")); n > 0 {
		mime := r.FormValue("MediaContentType0")
		ev = Event{
			Kind:      EventImage,
			ChatID:    chatID,
			From:      sender,
			MessageID: sid,
			Time:      time.Now(),
			Image: &Image{
				FileID:     r.FormValue("MediaUrl0"),
				MIMEType:   mime,
				IsDocument: !strings.HasPrefix(mime, "image/"),
			},
		}
	} else {
		body := r.FormValue("Body")
		if body == "" {
			slog.Warn("Twilio webhook missing fields", "from", from)
			http.Error(w, "Missing required fields", http.StatusBadRequest)
			return
		}
		ev = s.menus.Classify(chatID, sender, sid, body)
	}

	s.safeEmit(ev)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *TwilioService) safeEmit(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TwilioService dropping inbound message (service stopped)", "chat_id", ev.ChatID)
		return
	}
	if !emit(s.events, ev) {
		slog.Warn("TwilioService events channel blocked, dropping message", "chat_id", ev.ChatID)
	}
}
