package messaging

import (
	"strings"
	"time"
)

// EventKind tags an inbound Event.
type EventKind int

const (
	EventOther EventKind = iota
	EventCommand
	EventText
	EventCallback
	EventImage
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventText:
		return "text"
	case EventCallback:
		return "callback"
	case EventImage:
		return "image"
	default:
		return "other"
	}
}

// Sender is the acting user.
type Sender struct {
	ID       int64
	Username string
}

// MessageRef addresses a message previously sent to a chat.
type MessageRef struct {
	ChatID    int64
	MessageID string
}

// CallbackQuery is a button press.
type CallbackQuery struct {
	ID      string
	Data    string
	Message MessageRef // the message carrying the keyboard
}

// Image is a photo or document attachment.
type Image struct {
	FileID     string
	MIMEType   string
	IsDocument bool
}

// Supported reports whether the attachment is an image. Photos always are; documents must carry an image MIME type.
func (i Image) Supported() bool {
	return !i.IsDocument || strings.Contains(i.MIMEType, "image")
}

// Event is one inbound update. Exactly the fields for Kind are set.
type Event struct {
	Kind      EventKind
	ChatID    int64
	From      Sender
	MessageID string
	Time      time.Time

	Command  string // EventCommand: name without slash, lower-case
	Args     string // EventCommand: text after the command
	Text     string // EventText and EventCommand: full message text
	Callback *CallbackQuery
	Image    *Image
}

// ParseCommand splits "/name@bot args" into ("name", "args"). ok is false for non-command text.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || text[0] != '/' {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// TextEvent classifies plain inbound text as a command or free text.
func TextEvent(chatID int64, from Sender, messageID, text string) Event {
	ev := Event{Kind: EventText, ChatID: chatID, From: from, MessageID: messageID, Time: time.Now(), Text: text}
	if name, args, ok := ParseCommand(text); ok {
		ev.Kind = EventCommand
		ev.Command = name
		ev.Args = args
	}
	return ev
}

// Preview returns at most n runes of s, with "..." appended when truncated.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
