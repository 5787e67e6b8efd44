package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/GPTPipe/internal/twiliowhatsapp"
)

func TestChatIDFromAddress(t *testing.T) {
	tests := []struct {
		addr string
		want int64
		ok   bool
	}{
		{"whatsapp:+15551234567", 15551234567, true},
		{"+44 20 7946 0958", 442079460958, true},
		{"whatsapp:+123", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ChatIDFromAddress(tt.addr)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ChatIDFromAddress(%q) = %d, %v", tt.addr, got, err)
		}
	}
}

const testWebhookURL = "https://bot.example.com/twilio/webhook"

func postWebhook(svc *TwilioService, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	svc.WebhookHandler(rr, req)
	return rr
}

func TestTwilioServiceMenuRoundTrip(t *testing.T) {
	client := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(client, testWebhookURL)
	ctx := context.Background()

	if _, err := svc.Send(ctx, 15551234567, Outbound{Text: "Pick", Keyboard: quizKeyboard()}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(client.SentMessages) != 1 || client.SentMessages[0].To != "+15551234567" || !strings.Contains(client.SentMessages[0].Body, "1. Science") {
		t.Fatalf("unexpected sent messages %+v", client.SentMessages)
	}

	rr := postWebhook(svc, url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"1"}, "MessageSid": {"SM9"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("webhook status %d", rr.Code)
	}
	ev := nextEvent(t, svc.Events())
	if ev.Kind != EventCallback || ev.Callback.Data != "quiz:select_topic:science" {
		t.Errorf("numeric reply should resolve to the menu option, got %+v", ev)
	}
}

func TestTwilioWebhookMediaAndErrors(t *testing.T) {
	client := twiliowhatsapp.NewMockClient()
	client.Media["https://api.twilio.com/media/1"] = []byte("jpeg")
	svc := NewTwilioService(client, testWebhookURL)

	rr := postWebhook(svc, url.Values{
		"From": {"whatsapp:+15551234567"}, "NumMedia": {"1"}, "MessageSid": {"SM1"},
		"MediaUrl0": {"https://api.twilio.com/media/1"}, "MediaContentType0": {"image/jpeg"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("webhook status %d", rr.Code)
	}
	ev := nextEvent(t, svc.Events())
	if ev.Kind != EventImage || ev.Image.IsDocument {
		t.Fatalf("unexpected image event %+v", ev)
	}
	data, err := svc.DownloadImage(context.Background(), *ev.Image)
	if err != nil || string(data) != "jpeg" {
		t.Errorf("DownloadImage = %q, %v", data, err)
	}

	if rr := postWebhook(svc, url.Values{"From": {"whatsapp:+15551234567"}}); rr.Code != http.StatusBadRequest {
		t.Errorf("empty body should be rejected, got %d", rr.Code)
	}
	if rr := postWebhook(svc, url.Values{"From": {"nobody"}, "Body": {"hi"}}); rr.Code != http.StatusBadRequest {
		t.Errorf("bad sender should be rejected, got %d", rr.Code)
	}

	svc.Stop()
	if rr := postWebhook(svc, url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"late"}}); rr.Code != http.StatusOK {
		t.Errorf("webhook after Stop should still acknowledge, got %d", rr.Code)
	}
}

func TestTwilioWebhookRequiresSignature(t *testing.T) {
	form := url.Values{"From": {"whatsapp:+15550000001"}, "Body": {"/gpt"}, "MessageSid": {"SM2"}}

	client := twiliowhatsapp.NewMockClient()
	client.ValidSignature = "real-signature"
	unconfigured := NewTwilioService(client, "")
	if rr := postWebhook(unconfigured, form); rr.Code != http.StatusForbidden {
		t.Errorf("webhook without a configured URL should be forbidden, got %d", rr.Code)
	}
	select {
	case ev := <-unconfigured.Events():
		t.Fatalf("rejected request emitted %+v", ev)
	default:
	}

	svc := NewTwilioService(client, testWebhookURL)
	if rr := postWebhook(svc, form); rr.Code != http.StatusForbidden {
		t.Errorf("unsigned request should be forbidden, got %d", rr.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "real-signature")
	rr := httptest.NewRecorder()
	svc.WebhookHandler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("signed request status %d", rr.Code)
	}
	if ev := nextEvent(t, svc.Events()); ev.Kind != EventCommand || ev.ChatID != 15550000001 {
		t.Errorf("unexpected event %+v", ev)
	}
}
