package store

import (
	"context"
	"errors"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/BTreeMap/GPTPipe/internal/models"
)

// backends returns every store implementation available in the test environment.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{"memory": NewInMemoryStore()}

	sqlite, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "gptpipe.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	out["sqlite"] = sqlite

	// Tables are wiped before use, so only a dedicated test database is touched.
	if dsn, ok := syscall.Getenv("TEST_DATABASE_URL"); ok && dsn != "" {
		pg, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			t.Logf("Postgres not available: %v", err)
		} else {
			for _, table := range []string{"vocabulary_words", "translation_history", "quiz_results", "conversation_messages", "users"} {
				pg.db.Exec("DELETE FROM " + table)
			}
			out["postgres"] = pg
		}
	}
	for _, s := range out {
		s := s
		t.Cleanup(func() { s.Close() })
	}
	return out
}

func openSession(t *testing.T, s Store) (Session, *models.User) {
	t.Helper()
	sess, err := s.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	u, err := sess.GetOrCreateUser(context.Background(), 42, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	return sess, u
}

func TestGetOrCreateUser(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sess, u := openSession(t, s)
			if u.TelegramID != 42 || u.Username != "alice" {
				t.Fatalf("unexpected user: %+v", u)
			}
			again, err := sess.GetOrCreateUser(ctx, 42, "alice")
			if err != nil {
				t.Fatalf("GetOrCreateUser again: %v", err)
			}
			if again.ID != u.ID {
				t.Errorf("expected same id %d, got %d", u.ID, again.ID)
			}
			if _, err := sess.GetUser(ctx, 7); !errors.Is(err, models.ErrUserNotFound) {
				t.Errorf("expected ErrUserNotFound, got %v", err)
			}
		})
	}
}

func TestIncrementStat(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sess, u := openSession(t, s)
			if err := sess.IncrementStat(ctx, u, models.StatModelQueries, 1); err != nil {
				t.Fatalf("IncrementStat: %v", err)
			}
			if err := sess.IncrementStat(ctx, u, models.StatModelQueries, 2); err != nil {
				t.Fatalf("IncrementStat: %v", err)
			}
			if u.Stats.ModelQueries != 3 {
				t.Errorf("in-memory user not updated: %d", u.Stats.ModelQueries)
			}
			stored, err := sess.GetUser(ctx, 42)
			if err != nil {
				t.Fatalf("GetUser: %v", err)
			}
			if stored.Stats.ModelQueries != 3 {
				t.Errorf("expected 3 model queries stored, got %d", stored.Stats.ModelQueries)
			}
			err = sess.IncrementStat(ctx, u, models.StatField("bogus"), 1)
			if !errors.Is(err, models.ErrUnknownStatField) {
				t.Errorf("expected ErrUnknownStatField, got %v", err)
			}
		})
	}
}

func TestRecentMessagesOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sess, u := openSession(t, s)
			contents := []string{"m1", "m2", "m3", "m4", "m5"}
			for i, c := range contents {
				role := models.RoleUser
				if i%2 == 1 {
					role = models.RoleAssistant
				}
				if err := sess.AppendMessage(ctx, u, models.ConversationMessage{Role: role, Content: c, ConversationType: "gpt"}); err != nil {
					t.Fatalf("AppendMessage: %v", err)
				}
			}
			got, err := sess.RecentMessages(ctx, u, "gpt", 3)
			if err != nil {
				t.Fatalf("RecentMessages: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 messages, got %d", len(got))
			}
			for i, want := range []string{"m3", "m4", "m5"} {
				if got[i].Content != want {
					t.Errorf("message %d: expected %s, got %s", i, want, got[i].Content)
				}
			}
		})
	}
}

func TestAppendMessageRejectsSystemRole(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sess, u := openSession(t, s)
			err := sess.AppendMessage(context.Background(), u, models.ConversationMessage{Role: models.RoleSystem, Content: "x", ConversationType: "gpt"})
			if !errors.Is(err, models.ErrInvalidRole) {
				t.Errorf("expected ErrInvalidRole, got %v", err)
			}
		})
	}
}

func TestClearConversationIsolation(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sess, u := openSession(t, s)
			for _, typ := range []string{"gpt", "personality"} {
				if err := sess.AppendMessage(ctx, u, models.ConversationMessage{Role: models.RoleUser, Content: typ, ConversationType: typ}); err != nil {
					t.Fatalf("AppendMessage: %v", err)
				}
			}
			if err := sess.ClearConversation(ctx, u, "gpt"); err != nil {
				t.Fatalf("ClearConversation: %v", err)
			}
			gpt, _ := sess.RecentMessages(ctx, u, "gpt", 10)
			persona, _ := sess.RecentMessages(ctx, u, "personality", 10)
			if len(gpt) != 0 {
				t.Errorf("expected gpt history cleared, got %d", len(gpt))
			}
			if len(persona) != 1 {
				t.Errorf("expected personality history untouched, got %d", len(persona))
			}
		})
	}
}

func TestQuizResultsAndStats(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sess, u := openSession(t, s)
			r, err := sess.SaveQuizResult(ctx, u, "science", 3, 4)
			if err != nil {
				t.Fatalf("SaveQuizResult: %v", err)
			}
			if r.ScorePercentage != 75.0 {
				t.Errorf("expected 75.0, got %v", r.ScorePercentage)
			}
			if _, err := sess.SaveQuizResult(ctx, u, "history", 0, 0); err != nil {
				t.Fatalf("SaveQuizResult: %v", err)
			}
			if u.Stats.QuizzesDone != 2 {
				t.Errorf("expected quizzes_completed 2, got %d", u.Stats.QuizzesDone)
			}

			stats, err := sess.QuizStats(ctx, u, "")
			if err != nil {
				t.Fatalf("QuizStats: %v", err)
			}
			if stats.TotalQuizzes != 2 || stats.BestScore != 75 || stats.AverageScore != 37.5 {
				t.Errorf("unexpected stats: %+v", stats)
			}
			if len(stats.TopicsPlayed) != 2 || stats.TopicsPlayed[0] != "science" {
				t.Errorf("unexpected topics: %v", stats.TopicsPlayed)
			}

			science, err := sess.QuizStats(ctx, u, "science")
			if err != nil {
				t.Fatalf("QuizStats: %v", err)
			}
			if science.TotalQuizzes != 1 {
				t.Errorf("expected 1 science quiz, got %d", science.TotalQuizzes)
			}
		})
	}
}

func TestSaveTranslationCountsOnce(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sess, u := openSession(t, s)
			rec, err := sess.SaveTranslation(ctx, u, models.TranslationRecord{OriginalText: "Hello", TranslatedText: "Bonjour", TargetLanguage: "French"})
			if err != nil {
				t.Fatalf("SaveTranslation: %v", err)
			}
			if rec.ID == 0 {
				t.Error("expected translation id to be assigned")
			}
			stored, _ := sess.GetUser(ctx, 42)
			if stored.Stats.Translations != 1 {
				t.Errorf("expected translations_made 1, got %d", stored.Stats.Translations)
			}
		})
	}
}

func TestVocabularyUniqueness(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sess, u := openSession(t, s)
			added, err := sess.AddVocabularyWord(ctx, u, "Haus", "house", "German")
			if err != nil || !added {
				t.Fatalf("first add: added=%v err=%v", added, err)
			}
			added, err = sess.AddVocabularyWord(ctx, u, "Haus", "home", "German")
			if err != nil {
				t.Fatalf("duplicate add: %v", err)
			}
			if added {
				t.Error("expected duplicate word to be rejected")
			}
			if _, err := sess.AddVocabularyWord(ctx, u, "Haus", "house", "Dutch"); err != nil {
				t.Fatalf("other language add: %v", err)
			}

			german, err := sess.Vocabulary(ctx, u, "German")
			if err != nil {
				t.Fatalf("Vocabulary: %v", err)
			}
			if len(german) != 1 || german[0].Translation != "house" {
				t.Fatalf("unexpected vocabulary: %+v", german)
			}

			if err := sess.UpdateVocabularyStats(ctx, german[0].ID, true); err != nil {
				t.Fatalf("UpdateVocabularyStats: %v", err)
			}
			if err := sess.UpdateVocabularyStats(ctx, german[0].ID, false); err != nil {
				t.Fatalf("UpdateVocabularyStats: %v", err)
			}
			german, _ = sess.Vocabulary(ctx, u, "German")
			w := german[0]
			if w.TimesPracticed != 2 || w.TimesCorrect != 1 || w.LastPracticed == nil {
				t.Errorf("unexpected practice stats: %+v", w)
			}
		})
	}
}

func TestClosedSession(t *testing.T) {
	s := NewInMemoryStore()
	sess, _ := s.Open(context.Background())
	sess.Close()
	if _, err := sess.GetOrCreateUser(context.Background(), 1, ""); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":   "postgres",
		"postgresql://localhost/db":     "postgres",
		"host=localhost dbname=gptpipe": "postgres",
		"user=postgres password=secret": "postgres",
		"/var/lib/gptpipe/state.db":     "sqlite3",
		"file:test.db?cache=shared":     "sqlite3",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestWithSQLiteParams(t *testing.T) {
	cases := []struct{ dsn, want string }{
		{"/data/app.db", "/data/app.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"},
		{"file:app.db?cache=shared", "file:app.db?cache=shared&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"},
		{"file:app.db?_fk=1", "file:app.db?_fk=1&_busy_timeout=5000&_journal_mode=WAL"},
		{"file:app.db?_journal_mode=DELETE", "file:app.db?_journal_mode=DELETE&_busy_timeout=5000&_foreign_keys=on"},
		{"app.db?", "app.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"},
		{"app.db?_timeout=1&_journal=WAL&_foreign_keys=off", "app.db?_timeout=1&_journal=WAL&_foreign_keys=off"},
	}
	for _, c := range cases {
		if got := withSQLiteParams(c.dsn); got != c.want {
			t.Errorf("withSQLiteParams(%q) = %q, want %q", c.dsn, got, c.want)
		}
	}
}

func TestSQLiteDSNWithQueryUsesWAL(t *testing.T) {
	s, err := NewSQLiteStore(WithSQLiteDSN("file:" + filepath.Join(t.TempDir(), "app.db") + "?cache=shared"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestRebind(t *testing.T) {
	got := postgresDialect.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	if got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected rebind: %s", got)
	}
	if sqliteDialect.rebind("a = ?") != "a = ?" {
		t.Error("sqlite rebind should be identity")
	}
}
