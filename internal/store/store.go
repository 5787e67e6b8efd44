// Package store provides storage backends for GPTPipe.
//
// A Store hands out one Session per inbound event. The Session exposes the user,
// conversation, quiz, translation and vocabulary repositories the handlers use, and
// must be closed when the event has been processed.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/BTreeMap/GPTPipe/internal/models"
)

// ErrSessionClosed is returned by operations on a closed Session.
var ErrSessionClosed = errors.New("store session closed")

// UserRepository tracks users and their counters.
type UserRepository interface {
	// GetOrCreateUser returns the user with the given external identity, creating it on first contact.
	GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*models.User, error)
	// GetUser returns models.ErrUserNotFound when no user has the identity.
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	// IncrementStat adds by to a counter and refreshes last activity. The in-memory copy in user is updated too.
	IncrementStat(ctx context.Context, user *models.User, field models.StatField, by int) error
}

// ConversationStore is the append-only, per-(user, conversation type) message log.
type ConversationStore interface {
	AppendMessage(ctx context.Context, user *models.User, msg models.ConversationMessage) error
	// RecentMessages returns at most limit messages, oldest first.
	RecentMessages(ctx context.Context, user *models.User, conversationType string, limit int) ([]models.ConversationMessage, error)
	ClearConversation(ctx context.Context, user *models.User, conversationType string) error
}

// QuizRepository persists finished quiz sessions.
type QuizRepository interface {
	// SaveQuizResult stores the result and increments the user's quizzes_completed counter.
	SaveQuizResult(ctx context.Context, user *models.User, topic string, correct, total int) (*models.QuizResult, error)
	// QuizStats aggregates results, optionally restricted to one topic.
	QuizStats(ctx context.Context, user *models.User, topic string) (models.QuizStats, error)
}

// TranslationRepository persists translation history.
type TranslationRepository interface {
	// SaveTranslation stores the record and increments the user's translations_made counter.
	SaveTranslation(ctx context.Context, user *models.User, rec models.TranslationRecord) (*models.TranslationRecord, error)
}

// VocabularyRepository manages learned words.
type VocabularyRepository interface {
	// AddVocabularyWord returns false when (user, word, language) already exists.
	AddVocabularyWord(ctx context.Context, user *models.User, word, translation, language string) (bool, error)
	// Vocabulary lists words newest first, optionally restricted to one language.
	Vocabulary(ctx context.Context, user *models.User, language string) ([]models.VocabularyWord, error)
	UpdateVocabularyStats(ctx context.Context, wordID int64, correct bool) error
}

// Session is the storage resource scoped to one inbound event.
type Session interface {
	UserRepository
	ConversationStore
	QuizRepository
	TranslationRepository
	VocabularyRepository
	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Store opens per-event sessions.
type Store interface {
	Open(ctx context.Context) (Session, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN  string // database connection string
	Kind string // "sqlite", "postgres" or "" for in-memory
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithPostgresDSN selects the PostgreSQL backend with the given DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Kind = "postgres"
	}
}

// WithSQLiteDSN selects the SQLite backend with the given file path or DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Kind = "sqlite"
	}
}

// DetectDSNType returns the database/sql driver name for a DSN: "postgres" for URL or
// keyword/value PostgreSQL connection strings, "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	if strings.HasPrefix(lower, "file:") {
		return "sqlite3"
	}
	for _, field := range strings.Fields(lower) {
		key, _, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "host", "user", "dbname", "password", "sslmode", "port":
			return "postgres"
		}
	}
	return "sqlite3"
}

// New builds the backend selected by opts. With no DSN it returns an InMemoryStore.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch cfg.Kind {
	case "postgres":
		return NewPostgresStore(opts...)
	case "sqlite":
		return NewSQLiteStore(opts...)
	default:
		return NewInMemoryStore(), nil
	}
}
