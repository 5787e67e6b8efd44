// Package flow holds the per-user Session State Machine and the History-Threading Policy.
package flow

import (
	"context"
	"strings"
)

// State identifies a node of a feature's turn-taking protocol. StateNone means no active feature.
type State string

// StateNone is the idle node every terminal transition returns to.
const StateNone State = ""

// Direct Q&A.
const (
	StateGPTAwaitingQuestion State = "gpt:awaiting_question"
)

// Quiz.
const (
	StateQuizChoosingTopic   State = "quiz:choosing_topic"
	StateQuizConfirmingStart State = "quiz:confirming_start"
	StateQuizAwaitingAnswer  State = "quiz:awaiting_answer"
)

// Persona chat.
const (
	StatePersonaChoosing State = "personality:choosing"
	StatePersonaChatting State = "personality:chatting"
)

// Translation.
const (
	StateTranslateChoosingLanguage State = "translate:choosing_language"
	StateTranslateAwaitingText     State = "translate:awaiting_text"
)

// Image captioning.
const (
	StateImageAwaitingImage State = "image:awaiting_image"
)

// Vocabulary.
const (
	StateVocabularyLearningMenu        State = "vocabulary:learning_menu"
	StateVocabularyPractice            State = "vocabulary:practice"
	StateVocabularyAwaitingTranslation State = "vocabulary:awaiting_translation"
)

// entryStates are reachable from any node through their command or menu entry.
var entryStates = map[State]bool{
	StateGPTAwaitingQuestion:       true,
	StateQuizChoosingTopic:         true,
	StatePersonaChoosing:           true,
	StateTranslateChoosingLanguage: true,
	StateImageAwaitingImage:        true,
	StateVocabularyLearningMenu:    true,
}

// transitions lists the non-entry successors of each node.
var transitions = map[State][]State{
	StateGPTAwaitingQuestion:           {StateGPTAwaitingQuestion},
	StateQuizChoosingTopic:             {StateQuizConfirmingStart},
	StateQuizConfirmingStart:           {StateQuizAwaitingAnswer, StateQuizConfirmingStart},
	StateQuizAwaitingAnswer:            {StateQuizConfirmingStart},
	StatePersonaChoosing:               {StatePersonaChatting},
	StatePersonaChatting:               {StatePersonaChatting},
	StateTranslateChoosingLanguage:     {StateTranslateAwaitingText},
	StateTranslateAwaitingText:         {StateTranslateAwaitingText},
	StateVocabularyLearningMenu:        {StateVocabularyPractice},
	StateVocabularyPractice:            {StateVocabularyAwaitingTranslation},
	StateVocabularyAwaitingTranslation: {StateVocabularyPractice},
}

// Known reports whether s is StateNone or one of the declared nodes.
func (s State) Known() bool {
	if s == StateNone {
		return true
	}
	_, ok := transitions[s]
	return ok || entryStates[s]
}

// Feature returns the feature prefix of the node, e.g. "quiz".
func (s State) Feature() string {
	feature, _, _ := strings.Cut(string(s), ":")
	return feature
}

// IsEntry reports whether s is a feature entry point.
func (s State) IsEntry() bool { return entryStates[s] }

// ValidTransition reports whether moving from one node to another is declared.
// Returning to StateNone and entering a feature are always allowed.
func ValidTransition(from, to State) bool {
	if to == StateNone || entryStates[to] {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateManager stores the FSM node and scratch data per user.
type StateManager interface {
	// State returns the current node, StateNone when there is no live session.
	State(ctx context.Context, userID int64) (State, error)
	// SetState replaces the node without touching scratch data.
	SetState(ctx context.Context, userID int64, state State) error
	// UpdateData merges keys into the scratch area, last write wins per key.
	UpdateData(ctx context.Context, userID int64, partial Data) error
	// Data returns a snapshot of the scratch area.
	Data(ctx context.Context, userID int64) (Data, error)
	// Clear resets the node to StateNone and empties scratch data.
	Clear(ctx context.Context, userID int64) error
}
