package models

import (
	"errors"
	"testing"
)

func TestScorePercentage(t *testing.T) {
	tests := []struct {
		correct, total int
		want           float64
	}{
		{3, 4, 75.0},
		{0, 0, 0},
		{5, 5, 100},
		{0, 3, 0},
	}
	for _, tt := range tests {
		if got := ScorePercentage(tt.correct, tt.total); got != tt.want {
			t.Errorf("ScorePercentage(%d, %d) = %v, want %v", tt.correct, tt.total, got, tt.want)
		}
	}
}

func TestParseStatField(t *testing.T) {
	f, err := ParseStatField(" Translations_Made ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != StatTranslations {
		t.Errorf("expected %q, got %q", StatTranslations, f)
	}

	if _, err := ParseStatField("total_money"); !errors.Is(err, ErrUnknownStatField) {
		t.Errorf("expected ErrUnknownStatField, got %v", err)
	}
}

func TestUserStatsIncrement(t *testing.T) {
	var s UserStats
	for _, f := range StatFields {
		if err := s.Increment(f, 2); err != nil {
			t.Fatalf("Increment(%s) failed: %v", f, err)
		}
		got, err := s.Get(f)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", f, err)
		}
		if got != 2 {
			t.Errorf("expected %s = 2, got %d", f, got)
		}
	}

	if err := s.Increment(StatField("bogus"), 1); !errors.Is(err, ErrUnknownStatField) {
		t.Errorf("expected ErrUnknownStatField for bogus field, got %v", err)
	}
}

func TestConversationMessageValidate(t *testing.T) {
	ok := ConversationMessage{Role: RoleUser, Content: "hi", ConversationType: "quiz"}
	if err := ok.Validate(); err != nil {
		t.Errorf("expected valid message, got %v", err)
	}

	system := ConversationMessage{Role: RoleSystem, Content: "be nice", ConversationType: "quiz"}
	if err := system.Validate(); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole for system message, got %v", err)
	}

	untyped := ConversationMessage{Role: RoleAssistant, Content: "x"}
	if err := untyped.Validate(); err == nil {
		t.Error("expected error for missing conversation type")
	}
}
