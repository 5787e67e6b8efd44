package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BTreeMap/GPTPipe/internal/models"
)

// InMemoryStore is a process-local Store used for tests and when no database is configured.
type InMemoryStore struct {
	mu           sync.Mutex
	now          func() time.Time
	nextID       int64
	users        map[int64]*models.User // keyed by telegram id
	messages     []models.ConversationMessage
	quizResults  []models.QuizResult
	translations []models.TranslationRecord
	words        []models.VocabularyWord
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		now:   time.Now,
		users: make(map[int64]*models.User),
	}
}

// Open returns a session view over the shared in-memory data.
func (s *InMemoryStore) Open(ctx context.Context) (Session, error) {
	return &memorySession{store: s}, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// Translations returns a copy of all stored translation records (for tests).
func (s *InMemoryStore) Translations() []models.TranslationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TranslationRecord(nil), s.translations...)
}

// QuizResults returns a copy of all stored quiz results (for tests).
func (s *InMemoryStore) QuizResults() []models.QuizResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.QuizResult(nil), s.quizResults...)
}

func (s *InMemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

type memorySession struct {
	store  *InMemoryStore
	closed bool
}

func (m *memorySession) Close() error {
	m.closed = true
	return nil
}

func (m *memorySession) lock() (*InMemoryStore, error) {
	if m.closed {
		return nil, ErrSessionClosed
	}
	m.store.mu.Lock()
	return m.store, nil
}

func (m *memorySession) GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*models.User, error) {
	s, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if u, ok := s.users[telegramID]; ok {
		cp := *u
		return &cp, nil
	}
	now := s.now()
	u := &models.User{ID: s.id(), TelegramID: telegramID, Username: username, CreatedAt: now, LastActivity: now}
	s.users[telegramID] = u
	cp := *u
	return &cp, nil
}

func (m *memorySession) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	s, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	u, ok := s.users[telegramID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memorySession) IncrementStat(ctx context.Context, user *models.User, field models.StatField, by int) error {
	if user == nil {
		return models.ErrNilUser
	}
	if !field.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownStatField, string(field))
	}
	s, err := m.lock()
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.incrementLocked(user, field, by)
}

func (s *InMemoryStore) incrementLocked(user *models.User, field models.StatField, by int) error {
	u, ok := s.users[user.TelegramID]
	if !ok {
		return models.ErrUserNotFound
	}
	if err := u.Stats.Increment(field, by); err != nil {
		return err
	}
	u.LastActivity = s.now()
	user.Stats = u.Stats
	user.LastActivity = u.LastActivity
	return nil
}

func (m *memorySession) AppendMessage(ctx context.Context, user *models.User, msg models.ConversationMessage) error {
	if user == nil {
		return models.ErrNilUser
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	s, err := m.lock()
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	msg.ID = s.id()
	msg.UserID = user.ID
	msg.CreatedAt = s.now()
	s.messages = append(s.messages, msg)
	return nil
}

func (m *memorySession) RecentMessages(ctx context.Context, user *models.User, conversationType string, limit int) ([]models.ConversationMessage, error) {
	if user == nil {
		return nil, models.ErrNilUser
	}
	s, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}
	var out []models.ConversationMessage
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		msg := s.messages[i]
		if msg.UserID == user.ID && msg.ConversationType == conversationType {
			out = append(out, msg)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *memorySession) ClearConversation(ctx context.Context, user *models.User, conversationType string) error {
	if user == nil {
		return models.ErrNilUser
	}
	s, err := m.lock()
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	kept := s.messages[:0]
	for _, msg := range s.messages {
		if msg.UserID == user.ID && msg.ConversationType == conversationType {
			continue
		}
		kept = append(kept, msg)
	}
	s.messages = kept
	return nil
}

func (m *memorySession) SaveQuizResult(ctx context.Context, user *models.User, topic string, correct, total int) (*models.QuizResult, error) {
	if user == nil {
		return nil, models.ErrNilUser
	}
	s, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if err := s.incrementLocked(user, models.StatQuizzesDone, 1); err != nil {
		return nil, err
	}
	r := models.QuizResult{
		ID:              s.id(),
		UserID:          user.ID,
		Topic:           topic,
		CorrectAnswers:  correct,
		TotalQuestions:  total,
		ScorePercentage: models.ScorePercentage(correct, total),
		CreatedAt:       s.now(),
	}
	s.quizResults = append(s.quizResults, r)
	return &r, nil
}

func (m *memorySession) QuizStats(ctx context.Context, user *models.User, topic string) (models.QuizStats, error) {
	if user == nil {
		return models.QuizStats{}, models.ErrNilUser
	}
	s, err := m.lock()
	if err != nil {
		return models.QuizStats{}, err
	}
	defer s.mu.Unlock()

	var results []models.QuizResult
	for _, r := range s.quizResults {
		if r.UserID == user.ID && (topic == "" || r.Topic == topic) {
			results = append(results, r)
		}
	}
	return aggregateQuizStats(results), nil
}

func (m *memorySession) SaveTranslation(ctx context.Context, user *models.User, rec models.TranslationRecord) (*models.TranslationRecord, error) {
	if user == nil {
		return nil, models.ErrNilUser
	}
	s, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if err := s.incrementLocked(user, models.StatTranslations, 1); err != nil {
		return nil, err
	}
	rec.ID = s.id()
	rec.UserID = user.ID
	rec.CreatedAt = s.now()
	s.translations = append(s.translations, rec)
	return &rec, nil
}

func (m *memorySession) AddVocabularyWord(ctx context.Context, user *models.User, word, translation, language string) (bool, error) {
	if user == nil {
		return false, models.ErrNilUser
	}
	s, err := m.lock()
	if err != nil {
		return false, err
	}
	defer s.mu.Unlock()

	for _, w := range s.words {
		if w.UserID == user.ID && w.Word == word && w.Language == language {
			return false, nil
		}
	}
	s.words = append(s.words, models.VocabularyWord{
		ID:          s.id(),
		UserID:      user.ID,
		Word:        word,
		Translation: translation,
		Language:    language,
		LearnedAt:   s.now(),
	})
	return true, nil
}

func (m *memorySession) Vocabulary(ctx context.Context, user *models.User, language string) ([]models.VocabularyWord, error) {
	if user == nil {
		return nil, models.ErrNilUser
	}
	s, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	var out []models.VocabularyWord
	for i := len(s.words) - 1; i >= 0; i-- {
		w := s.words[i]
		if w.UserID == user.ID && (language == "" || w.Language == language) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memorySession) UpdateVocabularyStats(ctx context.Context, wordID int64, correct bool) error {
	s, err := m.lock()
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	for i := range s.words {
		if s.words[i].ID != wordID {
			continue
		}
		now := s.now()
		s.words[i].TimesPracticed++
		if correct {
			s.words[i].TimesCorrect++
		}
		s.words[i].LastPracticed = &now
		return nil
	}
	return fmt.Errorf("vocabulary word %d not found", wordID)
}

// aggregateQuizStats computes totals, the average and best score rounded to two decimals,
// and the distinct topics in first-played order.
func aggregateQuizStats(results []models.QuizResult) models.QuizStats {
	stats := models.QuizStats{TopicsPlayed: []string{}}
	if len(results) == 0 {
		return stats
	}
	seen := make(map[string]bool)
	var sum float64
	for _, r := range results {
		sum += r.ScorePercentage
		if r.ScorePercentage > stats.BestScore {
			stats.BestScore = r.ScorePercentage
		}
		if !seen[r.Topic] {
			seen[r.Topic] = true
			stats.TopicsPlayed = append(stats.TopicsPlayed, r.Topic)
		}
	}
	stats.TotalQuizzes = len(results)
	stats.AverageScore = round2(sum / float64(len(results)))
	stats.BestScore = round2(stats.BestScore)
	return stats
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
