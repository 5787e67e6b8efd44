package flow

import "maps"

// Scratch data keys shared by the feature handlers.
const (
	KeyTopic            = "topic"
	KeyCorrectAnswers   = "correct_answers"
	KeyTotalQuestions   = "total_questions"
	KeyPersona          = "personality"
	KeyTargetLangCode   = "target_language_code"
	KeyTargetLangName   = "target_language_name"
	KeyPracticeWords    = "practice_words"
	KeyCurrentWordIndex = "current_word_index"
	KeyCurrentWordID    = "current_word_id"
)

// Data is the untyped per-session scratch area.
type Data map[string]any

// Clone returns a shallow copy.
func (d Data) Clone() Data {
	if d == nil {
		return Data{}
	}
	return maps.Clone(d)
}

// String returns the string stored under key, or "".
func (d Data) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Int returns the integer stored under key. ok is false when the key is absent or not numeric.
func (d Data) Int(key string) (n int, ok bool) {
	switch v := d[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// IntOr returns the integer under key or def.
func (d Data) IntOr(key string, def int) int {
	if n, ok := d.Int(key); ok {
		return n
	}
	return def
}

// PracticeWord is one queued vocabulary practice item.
type PracticeWord struct {
	ID   int64
	Word string
}

// PracticeWords returns the queued practice words, or nil.
func (d Data) PracticeWords() []PracticeWord {
	words, _ := d[KeyPracticeWords].([]PracticeWord)
	return words
}
