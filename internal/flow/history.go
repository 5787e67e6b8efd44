package flow

import (
	"context"
	"fmt"

	"github.com/BTreeMap/GPTPipe/internal/genai"
	"github.com/BTreeMap/GPTPipe/internal/models"
	"github.com/BTreeMap/GPTPipe/internal/store"
)

// TurnMode decides when the new user turn enters the stored history.
type TurnMode int

const (
	// Trailing sends the new turn after the history window and stores it only with a successful reply.
	Trailing TurnMode = iota
	// PersistFirst stores the new turn before the window is fetched so it is included in order.
	PersistFirst
)

// HistoryPolicy is the window size and turn mode for one kind of feature turn.
type HistoryPolicy struct {
	Window int
	Mode   TurnMode
}

// Policies used by the stateful features.
var (
	QAPolicy           = HistoryPolicy{Window: 6, Mode: Trailing}
	QuizQuestionPolicy = HistoryPolicy{Window: 10, Mode: PersistFirst}
	QuizAnswerPolicy   = HistoryPolicy{Window: 2, Mode: PersistFirst}
	PersonaPolicy      = HistoryPolicy{Window: 10, Mode: PersistFirst}
)

// Conversation types.
const (
	ConversationGPT  = "gpt_interface"
	ConversationQuiz = "quiz"
)

// PersonaConversation returns the conversation type of a persona chat, e.g. "personality_einstein".
func PersonaConversation(persona string) string {
	return "personality_" + persona
}

// Thread threads one (user, conversation type) history into model requests.
type Thread struct {
	Store   store.ConversationStore
	User    *models.User
	Type    string
	Persona string
	Policy  HistoryPolicy
}

// Build returns instruction + history window (+ trailing turn) for the model. An empty turn
// adds nothing. The instruction is never stored.
func (t Thread) Build(ctx context.Context, instruction, turn string) ([]genai.Message, error) {
	if turn != "" && t.Policy.Mode == PersistFirst {
		if err := t.append(ctx, models.RoleUser, turn); err != nil {
			return nil, err
		}
	}
	history, err := t.Store.RecentMessages(ctx, t.User, t.Type, t.Policy.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s history: %w", t.Type, err)
	}

	msgs := make([]genai.Message, 0, len(history)+2)
	msgs = append(msgs, genai.Message{Role: models.RoleSystem, Content: instruction})
	for _, h := range history {
		msgs = append(msgs, genai.Message{Role: h.Role, Content: h.Content})
	}
	if turn != "" && t.Policy.Mode == Trailing {
		msgs = append(msgs, genai.Message{Role: models.RoleUser, Content: turn})
	}
	return msgs, nil
}

// Commit stores the model reply, preceded by the turn when the policy deferred it.
func (t Thread) Commit(ctx context.Context, turn, reply string) error {
	if turn != "" && t.Policy.Mode == Trailing {
		if err := t.append(ctx, models.RoleUser, turn); err != nil {
			return err
		}
	}
	return t.append(ctx, models.RoleAssistant, reply)
}

// Clear drops the whole history of the thread.
func (t Thread) Clear(ctx context.Context) error {
	return t.Store.ClearConversation(ctx, t.User, t.Type)
}

func (t Thread) append(ctx context.Context, role models.Role, content string) error {
	return t.Store.AppendMessage(ctx, t.User, models.ConversationMessage{
		Role:             role,
		Content:          content,
		ConversationType: t.Type,
		Persona:          t.Persona,
	})
}
