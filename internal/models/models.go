// Package models defines the core data structures for GPTPipe.
//
// It includes users and their counters, stored conversation turns, quiz results,
// translation history and vocabulary words, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Error variables for better error handling and testability
var (
	ErrUnknownStatField = errors.New("unknown stat field")
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidRole      = errors.New("invalid message role")
	ErrNilUser          = errors.New("user cannot be nil")
)

// Role tags a stored or outbound conversation message.
type Role string

const (
	// RoleSystem is the instruction message prepended to every model request. It is never stored.
	RoleSystem Role = "system"
	// RoleUser marks a turn written by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the model.
	RoleAssistant Role = "assistant"
)

// IsValidRole checks if the given role is supported.
func IsValidRole(r Role) bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// User is a bot user keyed by the transport's external numeric identity.
type User struct {
	ID           int64     `json:"id"`
	TelegramID   int64     `json:"telegram_id"`
	Username     string    `json:"username,omitempty"`
	Stats        UserStats `json:"stats"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// UserStats holds the named per-user counters.
type UserStats struct {
	MessagesSent    int `json:"messages_sent"`
	FactsRequested  int `json:"facts_requested"`
	ModelQueries    int `json:"model_queries"`
	PersonaChats    int `json:"persona_chats"`
	QuizzesDone     int `json:"quizzes_completed"`
	Translations    int `json:"translations_made"`
	ImagesCaptioned int `json:"images_captioned"`
}

// ConversationMessage is one immutable turn of a stateful feature.
type ConversationMessage struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	Role             Role      `json:"role"`
	Content          string    `json:"content"`
	ConversationType string    `json:"conversation_type"`
	Persona          string    `json:"persona,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Validate checks a message before it is written.
func (m ConversationMessage) Validate() error {
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return fmt.Errorf("%w: %q cannot be stored", ErrInvalidRole, m.Role)
	}
	if m.ConversationType == "" {
		return errors.New("conversation type is required")
	}
	return nil
}

// QuizResult records one finished quiz session.
type QuizResult struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	Topic           string    `json:"topic"`
	CorrectAnswers  int       `json:"correct_answers"`
	TotalQuestions  int       `json:"total_questions"`
	ScorePercentage float64   `json:"score_percentage"`
	CreatedAt       time.Time `json:"created_at"`
}

// ScorePercentage returns correct/total*100, or 0 when total is 0.
func ScorePercentage(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

// QuizStats aggregates a user's quiz results.
type QuizStats struct {
	TotalQuizzes int      `json:"total_quizzes"`
	AverageScore float64  `json:"average_score"`
	BestScore    float64  `json:"best_score"`
	TopicsPlayed []string `json:"topics_played"`
}

// TranslationRecord is one completed translation.
type TranslationRecord struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	OriginalText   string    `json:"original_text"`
	TranslatedText string    `json:"translated_text"`
	SourceLanguage string    `json:"source_language,omitempty"`
	TargetLanguage string    `json:"target_language"`
	CreatedAt      time.Time `json:"created_at"`
}

// VocabularyWord is a learned word. (UserID, Word, Language) is unique.
type VocabularyWord struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	Word           string     `json:"word"`
	Translation    string     `json:"translation"`
	Language       string     `json:"language"`
	TimesPracticed int        `json:"times_practiced"`
	TimesCorrect   int        `json:"times_correct"`
	LearnedAt      time.Time  `json:"learned_at"`
	LastPracticed  *time.Time `json:"last_practiced,omitempty"`
}
