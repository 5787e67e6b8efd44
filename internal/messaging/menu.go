package messaging

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// MenuMemory renders keyboards as numbered option lists for transports without buttons,
// and maps a numeric reply back to the chosen button's callback token.
type MenuMemory struct {
	mu    sync.Mutex
	menus map[int64][]Button
}

// NewMenuMemory creates an empty menu memory.
func NewMenuMemory() *MenuMemory {
	return &MenuMemory{menus: make(map[int64][]Button)}
}

// Render returns msg as plain text with its keyboard appended as a numbered list,
// and remembers the options for chatID. A message without keyboard forgets the previous menu.
func (m *MenuMemory) Render(chatID int64, msg Outbound) string {
	text := HTMLToText(msg.Text)
	buttons := msg.Keyboard.Buttons()

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(buttons) == 0 {
		delete(m.menus, chatID)
		return text
	}
	m.menus[chatID] = buttons

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n")
	for i, btn := range buttons {
		fmt.Fprintf(&b, "\n%d. %s", i+1, btn.Text)
	}
	return b.String()
}

// Resolve returns the callback token for a numeric reply to the last menu of chatID.
func (m *MenuMemory) Resolve(chatID int64, reply string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		return "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buttons := m.menus[chatID]
	if n < 1 || n > len(buttons) {
		return "", false
	}
	return buttons[n-1].Data, true
}

// Classify turns inbound text into a callback event when it picks a menu option,
// or a command/text event otherwise.
func (m *MenuMemory) Classify(chatID int64, from Sender, messageID, text string) Event {
	if data, ok := m.Resolve(chatID, text); ok {
		ev := TextEvent(chatID, from, messageID, text)
		ev.Kind = EventCallback
		ev.Text = ""
		ev.Callback = &CallbackQuery{
			ID:      messageID,
			Data:    data,
			Message: MessageRef{ChatID: chatID},
		}
		return ev
	}
	return TextEvent(chatID, from, messageID, text)
}
