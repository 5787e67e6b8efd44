package models

import (
	"fmt"
	"strings"
)

// StatField names one countable per-user counter.
type StatField string

const (
	StatMessagesSent    StatField = "messages_sent"
	StatFactsRequested  StatField = "facts_requested"
	StatModelQueries    StatField = "model_queries"
	StatPersonaChats    StatField = "persona_chats"
	StatQuizzesDone     StatField = "quizzes_completed"
	StatTranslations    StatField = "translations_made"
	StatImagesCaptioned StatField = "images_captioned"
)

// StatFields lists every countable field in display order.
var StatFields = []StatField{
	StatMessagesSent,
	StatFactsRequested,
	StatModelQueries,
	StatPersonaChats,
	StatQuizzesDone,
	StatTranslations,
	StatImagesCaptioned,
}

// ParseStatField resolves a field name, rejecting unknown names.
func ParseStatField(name string) (StatField, error) {
	f := StatField(strings.ToLower(strings.TrimSpace(name)))
	if f.Valid() {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatField, name)
}

// Valid reports whether f is one of the known counters.
func (f StatField) Valid() bool {
	switch f {
	case StatMessagesSent, StatFactsRequested, StatModelQueries, StatPersonaChats,
		StatQuizzesDone, StatTranslations, StatImagesCaptioned:
		return true
	}
	return false
}

// Column returns the users-table column backing f.
func (f StatField) Column() (string, error) {
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatField, string(f))
	}
	return string(f), nil
}

// Increment adds by to the counter named f.
func (s *UserStats) Increment(f StatField, by int) error {
	switch f {
	case StatMessagesSent:
		s.MessagesSent += by
	case StatFactsRequested:
		s.FactsRequested += by
	case StatModelQueries:
		s.ModelQueries += by
	case StatPersonaChats:
		s.PersonaChats += by
	case StatQuizzesDone:
		s.QuizzesDone += by
	case StatTranslations:
		s.Translations += by
	case StatImagesCaptioned:
		s.ImagesCaptioned += by
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStatField, string(f))
	}
	return nil
}

// Get returns the value of the counter named f.
func (s UserStats) Get(f StatField) (int, error) {
	switch f {
	case StatMessagesSent:
		return s.MessagesSent, nil
	case StatFactsRequested:
		return s.FactsRequested, nil
	case StatModelQueries:
		return s.ModelQueries, nil
	case StatPersonaChats:
		return s.PersonaChats, nil
	case StatQuizzesDone:
		return s.QuizzesDone, nil
	case StatTranslations:
		return s.Translations, nil
	case StatImagesCaptioned:
		return s.ImagesCaptioned, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStatField, string(f))
}
