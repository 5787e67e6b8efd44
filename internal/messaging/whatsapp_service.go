package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/BTreeMap/GPTPipe/internal/whatsapp"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// MaxPendingMedia bounds the attachments kept for a later DownloadImage.
const MaxPendingMedia = 256

// WhatsAppService implements Service using the whatsmeow-based whatsapp client.
// Keyboards are rendered as numbered menus; a numeric reply becomes a callback event.
type WhatsAppService struct {
	client whatsapp.WhatsAppClient
	menus  *MenuMemory
	events chan Event

	mu         sync.RWMutex
	started    bool
	stopped    bool
	media      map[string]whatsmeow.DownloadableMessage
	mediaOrder []string
}

// Compile-time check that WhatsAppService implements Service.
var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a new WhatsAppService wrapping the given client.
func NewWhatsAppService(client whatsapp.WhatsAppClient) *WhatsAppService {
	return &WhatsAppService{
		client: client,
		menus:  NewMenuMemory(),
		events: make(chan Event, DefaultChannelBufferSize),
		media:  make(map[string]whatsmeow.DownloadableMessage),
	}
}

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrServiceStopped
	}
	if s.started {
		return nil
	}
	s.started = true
	s.client.AddEventHandler(s.handleEvent)
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop closes the Events channel and disconnects.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.events)
	s.client.Disconnect()
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

// Events returns the channel of inbound events.
func (s *WhatsAppService) Events() <-chan Event {
	return s.events
}

func (s *WhatsAppService) handleEvent(evt any) {
	msg, ok := evt.(*events.Message)
	if !ok {
		return
	}
	ev, ok := s.convert(msg)
	if !ok {
		return
	}

	// Holding the read lock keeps Stop from closing the channel mid-send.
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("WhatsAppService dropping inbound message (service stopped)", "chat_id", ev.ChatID)
		return
	}
	if !emit(s.events, ev) {
		slog.Warn("WhatsAppService events channel blocked, dropping message", "chat_id", ev.ChatID, "timeout", DefaultChannelTimeout)
	}
}

// convert maps a direct message to an Event. Group, self and non-phone chats are skipped.
func (s *WhatsAppService) convert(evt *events.Message) (Event, bool) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return Event{}, false
	}
	if evt.Info.Chat.Server != types.DefaultUserServer {
		slog.Debug("WhatsAppService ignoring non-user chat", "chat", evt.Info.Chat.String())
		return Event{}, false
	}
	chatID, err := strconv.ParseInt(evt.Info.Chat.User, 10, 64)
	if err != nil {
		slog.Debug("WhatsAppService ignoring chat with non-numeric id", "chat", evt.Info.Chat.String())
		return Event{}, false
	}
	from := Sender{ID: chatID, Username: evt.Info.PushName}
	id := string(evt.Info.ID)

	m := evt.Message
	var ev Event
	switch {
	case m.GetImageMessage() != nil:
		img := m.GetImageMessage()
		s.remember(id, img)
		ev = Event{Kind: EventImage, Image: &Image{FileID: id, MIMEType: img.GetMimetype()}}
	case m.GetDocumentMessage() != nil:
		doc := m.GetDocumentMessage()
		s.remember(id, doc)
		ev = Event{Kind: EventImage, Image: &Image{FileID: id, MIMEType: doc.GetMimetype(), IsDocument: true}}
	case m.GetConversation() != "":
		return s.menus.Classify(chatID, from, id, m.GetConversation()), true
	case m.GetExtendedTextMessage().GetText() != "":
		return s.menus.Classify(chatID, from, id, m.GetExtendedTextMessage().GetText()), true
	default:
		ev = Event{Kind: EventOther}
	}
	ev.ChatID = chatID
	ev.From = from
	ev.MessageID = id
	ev.Time = evt.Info.Timestamp
	return ev, true
}

func (s *WhatsAppService) remember(id string, msg whatsmeow.DownloadableMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media[id] = msg
	s.mediaOrder = append(s.mediaOrder, id)
	for len(s.mediaOrder) > MaxPendingMedia {
		delete(s.media, s.mediaOrder[0])
		s.mediaOrder = s.mediaOrder[1:]
	}
}

// Send renders msg as text with a numbered menu and sends it.
func (s *WhatsAppService) Send(ctx context.Context, chatID int64, msg Outbound) (MessageRef, error) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return MessageRef{}, ErrServiceStopped
	}
	to := strconv.FormatInt(chatID, 10)
	id, err := s.client.SendText(ctx, to, s.menus.Render(chatID, msg))
	if err != nil {
		slog.Error("WhatsAppService Send error", "error", err, "to", to)
		return MessageRef{}, err
	}
	return MessageRef{ChatID: chatID, MessageID: id}, nil
}

// Edit edits a sent message in place. Messages without an id are sent anew.
func (s *WhatsAppService) Edit(ctx context.Context, ref MessageRef, msg Outbound) error {
	if ref.MessageID == "" {
		_, err := s.Send(ctx, ref.ChatID, msg)
		return err
	}
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}
	return s.client.EditText(ctx, strconv.FormatInt(ref.ChatID, 10), ref.MessageID, s.menus.Render(ref.ChatID, msg))
}

// AnswerCallback is a no-op; numbered menus have no acknowledgement.
func (s *WhatsAppService) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return nil
}

// DownloadImage downloads a remembered attachment once.
func (s *WhatsAppService) DownloadImage(ctx context.Context, img Image) ([]byte, error) {
	s.mu.Lock()
	msg, ok := s.media[img.FileID]
	delete(s.media, img.FileID)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no pending media for message %s", img.FileID)
	}
	return s.client.Download(ctx, msg)
}
