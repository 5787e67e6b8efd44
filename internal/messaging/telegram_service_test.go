package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/GPTPipe/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestConvertUpdate(t *testing.T) {
	user := &tgbotapi.User{ID: 7, UserName: "ann"}
	chat := &tgbotapi.Chat{ID: 7}

	tests := []struct {
		name   string
		update tgbotapi.Update
		check  func(t *testing.T, ev Event)
	}{
		{
			name: "command with args",
			update: tgbotapi.Update{Message: &tgbotapi.Message{
				MessageID: 5, From: user, Chat: chat, Text: "/gpt what is go",
				Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 4}},
			}},
			check: func(t *testing.T, ev Event) {
				if ev.Kind != EventCommand || ev.Command != "gpt" || ev.Args != "what is go" || ev.MessageID != "5" {
					t.Errorf("unexpected event %+v", ev)
				}
			},
		},
		{
			name:   "text",
			update: tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 6, From: user, Chat: chat, Text: "hello"}},
			check: func(t *testing.T, ev Event) {
				if ev.Kind != EventText || ev.Text != "hello" || ev.From.Username != "ann" {
					t.Errorf("unexpected event %+v", ev)
				}
			},
		},
		{
			name: "photo uses largest size",
			update: tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 7, From: user, Chat: chat,
				Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}}},
			check: func(t *testing.T, ev Event) {
				if ev.Kind != EventImage || ev.Image.FileID != "large" || ev.Image.IsDocument {
					t.Errorf("unexpected event %+v", ev)
				}
			},
		},
		{
			name: "document",
			update: tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 8, From: user, Chat: chat,
				Document: &tgbotapi.Document{FileID: "doc", MimeType: "image/png"}}},
			check: func(t *testing.T, ev Event) {
				if ev.Kind != EventImage || !ev.Image.IsDocument || ev.Image.MIMEType != "image/png" {
					t.Errorf("unexpected event %+v", ev)
				}
			},
		},
		{
			name:   "sticker is other",
			update: tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 9, From: user, Chat: chat, Sticker: &tgbotapi.Sticker{FileID: "s"}}},
			check: func(t *testing.T, ev Event) {
				if ev.Kind != EventOther {
					t.Errorf("unexpected event %+v", ev)
				}
			},
		},
		{
			name: "callback",
			update: tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb1", From: user, Data: "quiz:cancel",
				Message: &tgbotapi.Message{MessageID: 11, Chat: chat}}},
			check: func(t *testing.T, ev Event) {
				if ev.Kind != EventCallback || ev.ChatID != 7 || ev.Callback.Data != "quiz:cancel" || ev.Callback.Message.MessageID != "11" {
					t.Errorf("unexpected event %+v", ev)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := convertUpdate(tt.update)
			if !ok {
				t.Fatal("update should convert")
			}
			tt.check(t, ev)
		})
	}

	if _, ok := convertUpdate(tgbotapi.Update{UpdateID: 1}); ok {
		t.Error("empty update should be ignored")
	}
}

func TestTelegramServiceLifecycle(t *testing.T) {
	client := telegram.NewMockClient()
	svc := NewTelegramService(client)
	ctx := context.Background()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	client.Push(tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: 3}, Text: "hi"}})
	if ev := nextEvent(t, svc.Events()); ev.Kind != EventText || ev.ChatID != 3 || ev.From.ID != 3 {
		t.Errorf("unexpected event %+v", ev)
	}

	ref, err := svc.Send(ctx, 3, Outbound{Text: "<b>hi</b>", Keyboard: Keyboard{Row(Button{Text: "Go", Data: "main:start"})}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ref.MessageID != "1" || len(client.Sent) != 1 || client.Sent[0].Markup == nil {
		t.Errorf("unexpected send %+v %+v", ref, client.Sent)
	}
	if err := svc.Edit(ctx, ref, Outbound{Text: "done"}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if len(client.Edited) != 1 || client.Edited[0].MessageID != 1 || client.Edited[0].Markup != nil {
		t.Errorf("unexpected edit %+v", client.Edited)
	}
	if err := svc.Edit(ctx, MessageRef{ChatID: 3, MessageID: "abc"}, Outbound{Text: "x"}); err == nil {
		t.Error("non-numeric message id should fail")
	}
	if err := svc.AnswerCallback(ctx, "cb1", ""); err != nil || len(client.Answered) != 1 {
		t.Errorf("AnswerCallback: %v %v", err, client.Answered)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := <-svc.Events(); ok {
		t.Error("Events should be closed after Stop")
	}
	if _, err := svc.Send(ctx, 3, Outbound{Text: "late"}); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("Send after Stop = %v, want ErrServiceStopped", err)
	}
	if err := svc.Start(ctx); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("Start after Stop = %v, want ErrServiceStopped", err)
	}
	if err := svc.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}
