package telegram

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MockClient implements BotClient in memory (for tests).
type MockClient struct {
	mu        sync.Mutex
	updates   chan tgbotapi.Update
	nextID    int
	Sent      []SentMessage
	Edited    []SentMessage
	Answered  []string
	Commands  []Command
	Files     map[string][]byte
	SendError error
}

// SentMessage records a sent or edited message.
type SentMessage struct {
	ChatID    int64
	MessageID int
	Text      string
	Markup    *tgbotapi.InlineKeyboardMarkup
}

// NewMockClient creates a mock with a buffered update channel.
func NewMockClient() *MockClient {
	return &MockClient{updates: make(chan tgbotapi.Update, 16), Files: map[string][]byte{}}
}

// Push queues an inbound update.
func (m *MockClient) Push(u tgbotapi.Update) { m.updates <- u }

func (m *MockClient) Updates() tgbotapi.UpdatesChannel { return m.updates }

func (m *MockClient) StopUpdates() { close(m.updates) }

func (m *MockClient) SendText(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendError != nil {
		return 0, m.SendError
	}
	m.nextID++
	m.Sent = append(m.Sent, SentMessage{ChatID: chatID, MessageID: m.nextID, Text: text, Markup: markup})
	return m.nextID, nil
}

func (m *MockClient) EditText(ctx context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edited = append(m.Edited, SentMessage{ChatID: chatID, MessageID: messageID, Text: text, Markup: markup})
	return nil
}

func (m *MockClient) AnswerCallback(ctx context.Context, callbackID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Answered = append(m.Answered, callbackID)
	return nil
}

func (m *MockClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Files[fileID], nil
}

func (m *MockClient) SetCommands(ctx context.Context, commands []Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = commands
	return nil
}
