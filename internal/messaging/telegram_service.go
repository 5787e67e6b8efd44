package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/GPTPipe/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramService implements Service on top of the Telegram Bot API.
type TelegramService struct {
	client  telegram.BotClient
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	stopped bool
}

// Compile-time check that TelegramService implements Service.
var _ Service = (*TelegramService)(nil)

// NewTelegramService creates a TelegramService wrapping the given BotClient.
func NewTelegramService(client telegram.BotClient) *TelegramService {
	return &TelegramService{
		client: client,
		events: make(chan Event, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}
}

// Start begins long polling for updates.
func (s *TelegramService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrServiceStopped
	}
	if s.started {
		return nil
	}
	s.started = true

	updates := s.client.Updates()
	s.wg.Add(1)
	go s.poll(ctx, updates)
	slog.Info("TelegramService started polling")
	return nil
}

func (s *TelegramService) poll(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("TelegramService poll stopping due to context cancellation")
			return
		case <-s.done:
			return
		case u, ok := <-updates:
			if !ok {
				slog.Debug("TelegramService update channel closed")
				return
			}
			ev, ok := convertUpdate(u)
			if !ok {
				slog.Debug("TelegramService ignoring update", "update_id", u.UpdateID)
				continue
			}
			if !emit(s.events, ev) {
				slog.Warn("TelegramService events channel blocked, dropping update", "update_id", u.UpdateID, "timeout", DefaultChannelTimeout)
			}
		}
	}
}

// Stop stops polling and closes the Events channel.
func (s *TelegramService) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	close(s.done)
	s.mu.Unlock()

	if started {
		s.client.StopUpdates()
	}
	s.wg.Wait()
	close(s.events)
	slog.Info("TelegramService stopped and channels closed")
	return nil
}

// Events returns the channel of inbound events.
func (s *TelegramService) Events() <-chan Event {
	return s.events
}

func (s *TelegramService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// Send delivers an HTML message with an optional inline keyboard.
func (s *TelegramService) Send(ctx context.Context, chatID int64, msg Outbound) (MessageRef, error) {
	if s.isStopped() {
		return MessageRef{}, ErrServiceStopped
	}
	id, err := s.client.SendText(ctx, chatID, msg.Text, inlineMarkup(msg.Keyboard))
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChatID: chatID, MessageID: strconv.Itoa(id)}, nil
}

// Edit replaces the text and keyboard of a sent message.
func (s *TelegramService) Edit(ctx context.Context, ref MessageRef, msg Outbound) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	id, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return fmt.Errorf("invalid telegram message id %q: %w", ref.MessageID, err)
	}
	return s.client.EditText(ctx, ref.ChatID, id, msg.Text, inlineMarkup(msg.Keyboard))
}

// AnswerCallback acknowledges a button press.
func (s *TelegramService) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	return s.client.AnswerCallback(ctx, callbackID, text)
}

// DownloadImage downloads a photo or document by file id.
func (s *TelegramService) DownloadImage(ctx context.Context, img Image) ([]byte, error) {
	return s.client.DownloadFile(ctx, img.FileID)
}

// inlineMarkup converts a Keyboard. An empty keyboard yields nil.
func inlineMarkup(k Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(k) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(k))
	for _, row := range k {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func sender(u *tgbotapi.User) Sender {
	if u == nil {
		return Sender{}
	}
	return Sender{ID: u.ID, Username: u.UserName}
}

// convertUpdate maps a Telegram update to an Event. ok is false for updates without a message or callback.
func convertUpdate(u tgbotapi.Update) (Event, bool) {
	if cq := u.CallbackQuery; cq != nil {
		ev := Event{
			Kind:     EventCallback,
			From:     sender(cq.From),
			Time:     time.Now(),
			Callback: &CallbackQuery{ID: cq.ID, Data: cq.Data},
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.ChatID = cq.Message.Chat.ID
			ev.MessageID = strconv.Itoa(cq.Message.MessageID)
			ev.Callback.Message = MessageRef{ChatID: ev.ChatID, MessageID: ev.MessageID}
		} else if cq.From != nil {
			ev.ChatID = cq.From.ID
		}
		return ev, true
	}

	m := u.Message
	if m == nil || m.Chat == nil {
		return Event{}, false
	}
	ev := Event{
		Kind:      EventOther,
		ChatID:    m.Chat.ID,
		From:      sender(m.From),
		MessageID: strconv.Itoa(m.MessageID),
		Time:      time.Unix(int64(m.Date), 0),
	}
	if m.From == nil {
		ev.From = Sender{ID: m.Chat.ID}
	}

	switch {
	case m.IsCommand():
		ev.Kind = EventCommand
		ev.Command = strings.ToLower(m.Command())
		ev.Args = m.CommandArguments()
		ev.Text = m.Text
	case len(m.Photo) > 0:
		// Sizes are ascending; the last one is the largest.
		largest := m.Photo[len(m.Photo)-1]
		ev.Kind = EventImage
		ev.Image = &Image{FileID: largest.FileID, MIMEType: "image/jpeg"}
	case m.Document != nil:
		ev.Kind = EventImage
		ev.Image = &Image{FileID: m.Document.FileID, MIMEType: m.Document.MimeType, IsDocument: true}
	case m.Text != "":
		ev.Kind = EventText
		ev.Text = m.Text
	}
	return ev, true
}
