package testutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/BTreeMap/GPTPipe/internal/genai"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
	"github.com/BTreeMap/GPTPipe/internal/models"
)

var (
	_ messaging.Service = (*FakeService)(nil)
	_ genai.Gateway     = (*FakeGateway)(nil)
)

// Delivery is one recorded outbound message or edit.
type Delivery struct {
	ChatID    int64
	MessageID string
	Text      string
	Keyboard  messaging.Keyboard
	Edit      bool
}

// FakeService is a recording messaging.Service.
type FakeService struct {
	mu         sync.Mutex
	events     chan messaging.Event
	deliveries []Delivery
	answered   []string
	images     map[string][]byte
	nextID     int
	stopped    bool

	// SendErr, when set, is returned by Send.
	SendErr error
}

// NewFakeService creates a FakeService with a buffered event channel.
func NewFakeService() *FakeService {
	return &FakeService{
		events: make(chan messaging.Event, messaging.DefaultChannelBufferSize),
		images: make(map[string][]byte),
	}
}

func (s *FakeService) Start(context.Context) error { return nil }

func (s *FakeService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.events)
	}
	return nil
}

func (s *FakeService) Events() <-chan messaging.Event { return s.events }

// Push queues an inbound event.
func (s *FakeService) Push(ev messaging.Event) { s.events <- ev }

func (s *FakeService) Send(_ context.Context, chatID int64, msg messaging.Outbound) (messaging.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return messaging.MessageRef{}, s.SendErr
	}
	s.nextID++
	id := strconv.Itoa(s.nextID)
	s.deliveries = append(s.deliveries, Delivery{ChatID: chatID, MessageID: id, Text: msg.Text, Keyboard: msg.Keyboard})
	return messaging.MessageRef{ChatID: chatID, MessageID: id}, nil
}

func (s *FakeService) Edit(_ context.Context, ref messaging.MessageRef, msg messaging.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, Delivery{ChatID: ref.ChatID, MessageID: ref.MessageID, Text: msg.Text, Keyboard: msg.Keyboard, Edit: true})
	return nil
}

func (s *FakeService) AnswerCallback(_ context.Context, callbackID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answered = append(s.answered, callbackID)
	return nil
}

// SetImage registers the bytes returned for fileID.
func (s *FakeService) SetImage(fileID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[fileID] = data
}

func (s *FakeService) DownloadImage(_ context.Context, img messaging.Image) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.images[img.FileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", img.FileID)
	}
	return data, nil
}

// Deliveries returns every recorded send and edit.
func (s *FakeService) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

// Last returns the most recent delivery.
func (s *FakeService) Last() (Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deliveries) == 0 {
		return Delivery{}, false
	}
	return s.deliveries[len(s.deliveries)-1], true
}

// Answered returns the acknowledged callback ids.
func (s *FakeService) Answered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.answered...)
}

// Reset forgets recorded deliveries and acknowledgements.
func (s *FakeService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = nil
	s.answered = nil
}

// GatewayCall is one recorded model request.
type GatewayCall struct {
	Method   string
	Messages []genai.Message
	Image    []byte
}

// ErrNoReply is returned by FakeGateway when its script is exhausted.
var ErrNoReply = errors.New("fake gateway: no scripted reply")

type scripted struct {
	text string
	err  error
}

// FakeGateway is a scripted genai.Gateway. Replies are consumed in order.
type FakeGateway struct {
	mu     sync.Mutex
	script []scripted
	calls  []GatewayCall
}

// NewFakeGateway creates a gateway that answers with replies in order.
func NewFakeGateway(replies ...string) *FakeGateway {
	g := &FakeGateway{}
	for _, r := range replies {
		g.Reply(r)
	}
	return g
}

// Reply queues a successful reply.
func (g *FakeGateway) Reply(text string) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script = append(g.script, scripted{text: text})
	return g
}

// Fail queues a gateway error of the given kind.
func (g *FakeGateway) Fail(kind genai.ErrorKind) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script = append(g.script, scripted{err: &genai.Error{Kind: kind, Err: errors.New("scripted failure")}})
	return g
}

// Calls returns the recorded requests.
func (g *FakeGateway) Calls() []GatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]GatewayCall(nil), g.calls...)
}

func (g *FakeGateway) next(call GatewayCall) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	if len(g.script) == 0 {
		return "", &genai.Error{Kind: genai.Unknown, Err: ErrNoReply}
	}
	s := g.script[0]
	g.script = g.script[1:]
	return s.text, s.err
}

func (g *FakeGateway) Complete(_ context.Context, messages []genai.Message) (string, error) {
	return g.next(GatewayCall{Method: "Complete", Messages: append([]genai.Message(nil), messages...)})
}

func (g *FakeGateway) CompleteSingle(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	var msgs []genai.Message
	if systemPrompt != "" {
		msgs = append(msgs, genai.Message{Role: models.RoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, genai.Message{Role: models.RoleUser, Content: userMessage})
	return g.next(GatewayCall{Method: "CompleteSingle", Messages: msgs})
}

func (g *FakeGateway) CaptionImage(_ context.Context, image []byte, prompt string) (string, error) {
	return g.next(GatewayCall{Method: "CaptionImage", Messages: []genai.Message{{Role: models.RoleUser, Content: prompt}}, Image: image})
}
