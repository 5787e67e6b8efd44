package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/GPTPipe/internal/whatsapp"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func strPtr(s string) *string { return &s }

func waMessage(id string, chat types.JID, msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: chat},
			ID:            types.MessageID(id),
			PushName:      "ann",
			Timestamp:     time.Unix(1700000000, 0),
		},
		Message: msg,
	}
}

func TestWhatsAppServiceEvents(t *testing.T) {
	client := whatsapp.NewMockClient()
	client.Media = []byte("png")
	svc := NewWhatsAppService(client)
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	chat := types.NewJID("15551234567", types.DefaultUserServer)

	client.Dispatch(waMessage("A1", chat, &waE2E.Message{Conversation: strPtr("/start")}))
	if ev := nextEvent(t, svc.Events()); ev.Kind != EventCommand || ev.Command != "start" || ev.ChatID != 15551234567 || ev.From.Username != "ann" {
		t.Errorf("unexpected command event %+v", ev)
	}

	client.Dispatch(waMessage("A2", chat, &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Mimetype: strPtr("image/png")}}))
	ev := nextEvent(t, svc.Events())
	if ev.Kind != EventImage || ev.Image.FileID != "A2" || ev.Image.MIMEType != "image/png" {
		t.Fatalf("unexpected image event %+v", ev)
	}
	if data, err := svc.DownloadImage(ctx, *ev.Image); err != nil || string(data) != "png" {
		t.Errorf("DownloadImage = %q, %v", data, err)
	}
	if _, err := svc.DownloadImage(ctx, *ev.Image); err == nil {
		t.Error("media should be downloadable once")
	}

	group := waMessage("G1", types.NewJID("120363", types.GroupServer), &waE2E.Message{Conversation: strPtr("hi")})
	group.Info.IsGroup = true
	client.Dispatch(group)
	own := waMessage("S1", chat, &waE2E.Message{Conversation: strPtr("hi")})
	own.Info.IsFromMe = true
	client.Dispatch(own)
	select {
	case ev := <-svc.Events():
		t.Errorf("group and own messages should be ignored, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWhatsAppServiceSendAndEdit(t *testing.T) {
	client := whatsapp.NewMockClient()
	svc := NewWhatsAppService(client)
	ctx := context.Background()

	ref, err := svc.Send(ctx, 15551234567, Outbound{Text: "<b>Pick</b>", Keyboard: quizKeyboard()})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ref.MessageID != "mock-1" || client.Sent[0].To != "15551234567" || client.Sent[0].Body[:6] != "*Pick*" {
		t.Errorf("unexpected send %+v %+v", ref, client.Sent)
	}

	if err := svc.Edit(ctx, ref, Outbound{Text: "Thinking done"}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if len(client.Edited) != 1 || client.Edited[0].ID != "mock-1" {
		t.Errorf("unexpected edits %+v", client.Edited)
	}
	if err := svc.Edit(ctx, MessageRef{ChatID: 15551234567}, Outbound{Text: "fresh"}); err != nil || len(client.Sent) != 2 {
		t.Errorf("edit without id should send anew: %v %+v", err, client.Sent)
	}

	svc.Stop()
	if _, ok := <-svc.Events(); ok {
		t.Error("Events should be closed after Stop")
	}
	if _, err := svc.Send(ctx, 1, Outbound{Text: "late"}); err != ErrServiceStopped {
		t.Errorf("Send after Stop = %v", err)
	}
}
