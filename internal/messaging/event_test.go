package messaging

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"/start", "start", "", true},
		{"/Quiz@GPTPipeBot", "quiz", "", true},
		{"/gpt what is go", "gpt", "what is go", true},
		{"  /help  ", "help", "", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}
	for _, tt := range tests {
		name, args, ok := ParseCommand(tt.text)
		if name != tt.wantName || args != tt.wantArgs || ok != tt.wantOK {
			t.Errorf("ParseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.text, name, args, ok, tt.wantName, tt.wantArgs, tt.wantOK)
		}
	}
}

func TestTextEvent(t *testing.T) {
	ev := TextEvent(1, Sender{ID: 2}, "m1", "/random")
	if ev.Kind != EventCommand || ev.Command != "random" {
		t.Errorf("expected random command, got %+v", ev)
	}
	ev = TextEvent(1, Sender{ID: 2}, "m2", "bonjour")
	if ev.Kind != EventText || ev.Text != "bonjour" {
		t.Errorf("expected text event, got %+v", ev)
	}
}

func TestImageSupported(t *testing.T) {
	tests := []struct {
		img  Image
		want bool
	}{
		{Image{MIMEType: "image/jpeg"}, true},
		{Image{IsDocument: true, MIMEType: "image/png"}, true},
		{Image{IsDocument: true, MIMEType: "application/pdf"}, false},
		{Image{IsDocument: true}, false},
	}
	for _, tt := range tests {
		if got := tt.img.Supported(); got != tt.want {
			t.Errorf("%+v.Supported() = %v, want %v", tt.img, got, tt.want)
		}
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("hello", 10); got != "hello" {
		t.Errorf("unexpected preview %q", got)
	}
	if got := Preview("héllo world", 5); got != "héllo..." {
		t.Errorf("unexpected preview %q", got)
	}
}

func TestEventKindString(t *testing.T) {
	if EventCallback.String() != "callback" || EventImage.String() != "image" {
		t.Errorf("unexpected kind names %q %q", EventCallback, EventImage)
	}
}
