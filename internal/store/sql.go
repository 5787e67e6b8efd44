package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/GPTPipe/internal/models"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name         string
	numbered     bool // $1, $2 placeholders instead of ?
	insertIgnore string
}

var (
	sqliteDialect   = dialect{name: "SQLiteStore", insertIgnore: "ON CONFLICT DO NOTHING"}
	postgresDialect = dialect{name: "PostgresStore", numbered: true, insertIgnore: "ON CONFLICT DO NOTHING"}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore is the database/sql core shared by SQLiteStore and PostgresStore.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

// Open pins one pooled connection for the duration of an event.
func (s *sqlStore) Open(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		slog.Error(s.d.name+" Open failed", "error", err)
		return nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	return &sqlSession{conn: conn, d: s.d, now: s.now}, nil
}

// Close closes the underlying database.
func (s *sqlStore) Close() error {
	slog.Debug(s.d.name + " Close invoked")
	return s.db.Close()
}

// querier is satisfied by both *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlSession struct {
	conn   *sql.Conn
	d      dialect
	now    func() time.Time
	closed bool
}

func (s *sqlSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// withTx runs fn in a transaction on the pinned connection.
func (s *sqlSession) withTx(ctx context.Context, fn func(q querier) error) error {
	if s.closed {
		return ErrSessionClosed
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn(s.d.name+" rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *sqlSession) q() (querier, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.conn, nil
}

const userColumns = `id, telegram_id, username, messages_sent, facts_requested, model_queries, persona_chats,
	quizzes_completed, translations_made, images_captioned, created_at, last_activity`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var username sql.NullString
	err := row.Scan(&u.ID, &u.TelegramID, &username,
		&u.Stats.MessagesSent, &u.Stats.FactsRequested, &u.Stats.ModelQueries, &u.Stats.PersonaChats,
		&u.Stats.QuizzesDone, &u.Stats.Translations, &u.Stats.ImagesCaptioned,
		&u.CreatedAt, &u.LastActivity)
	if err != nil {
		return nil, err
	}
	u.Username = username.String
	return &u, nil
}

func (s *sqlSession) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	q, err := s.q()
	if err != nil {
		return nil, err
	}
	row := q.QueryRowContext(ctx, s.d.rebind(`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`), telegramID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		slog.Error(s.d.name+" GetUser failed", "error", err, "telegram_id", telegramID)
		return nil, fmt.Errorf("failed to get user %d: %w", telegramID, err)
	}
	return u, nil
}

func (s *sqlSession) GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*models.User, error) {
	var user *models.User
	err := s.withTx(ctx, func(q querier) error {
		now := s.now()
		_, err := q.ExecContext(ctx, s.d.rebind(`INSERT INTO users (telegram_id, username, created_at, last_activity)
			VALUES (?, ?, ?, ?) `+s.d.insertIgnore), telegramID, nilIfEmpty(username), now, now)
		if err != nil {
			return fmt.Errorf("failed to insert user %d: %w", telegramID, err)
		}
		row := q.QueryRowContext(ctx, s.d.rebind(`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`), telegramID)
		user, err = scanUser(row)
		if err != nil {
			return fmt.Errorf("failed to load user %d: %w", telegramID, err)
		}
		return nil
	})
	if err != nil {
		slog.Error(s.d.name+" GetOrCreateUser failed", "error", err, "telegram_id", telegramID)
		return nil, err
	}
	slog.Debug(s.d.name+" GetOrCreateUser succeeded", "telegram_id", telegramID, "user_id", user.ID)
	return user, nil
}

func (s *sqlSession) incrementStat(ctx context.Context, q querier, user *models.User, field models.StatField, by int) error {
	col, err := field.Column()
	if err != nil {
		return err
	}
	now := s.now()
	res, err := q.ExecContext(ctx, s.d.rebind(`UPDATE users SET `+col+` = `+col+` + ?, last_activity = ? WHERE id = ?`), by, now, user.ID)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", col, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrUserNotFound
	}
	if err := user.Stats.Increment(field, by); err != nil {
		return err
	}
	user.LastActivity = now
	return nil
}

func (s *sqlSession) IncrementStat(ctx context.Context, user *models.User, field models.StatField, by int) error {
	if user == nil {
		return models.ErrNilUser
	}
	if !field.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownStatField, string(field))
	}
	err := s.withTx(ctx, func(q querier) error {
		return s.incrementStat(ctx, q, user, field, by)
	})
	if err != nil {
		slog.Error(s.d.name+" IncrementStat failed", "error", err, "user_id", user.ID, "field", field)
		return err
	}
	slog.Debug(s.d.name+" IncrementStat succeeded", "user_id", user.ID, "field", field, "by", by)
	return nil
}

func (s *sqlSession) AppendMessage(ctx context.Context, user *models.User, msg models.ConversationMessage) error {
	if user == nil {
		return models.ErrNilUser
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	err := s.withTx(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, s.d.rebind(`INSERT INTO conversation_messages
			(user_id, role, content, conversation_type, persona, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
			user.ID, string(msg.Role), msg.Content, msg.ConversationType, nilIfEmpty(msg.Persona), s.now())
		return err
	})
	if err != nil {
		slog.Error(s.d.name+" AppendMessage failed", "error", err, "user_id", user.ID, "type", msg.ConversationType)
		return fmt.Errorf("failed to append %s message: %w", msg.ConversationType, err)
	}
	slog.Debug(s.d.name+" AppendMessage succeeded", "user_id", user.ID, "type", msg.ConversationType, "role", msg.Role)
	return nil
}

func (s *sqlSession) RecentMessages(ctx context.Context, user *models.User, conversationType string, limit int) ([]models.ConversationMessage, error) {
	if user == nil {
		return nil, models.ErrNilUser
	}
	q, err := s.q()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := q.QueryContext(ctx, s.d.rebind(`SELECT id, user_id, role, content, conversation_type, persona, created_at
		FROM conversation_messages WHERE user_id = ? AND conversation_type = ? ORDER BY id DESC LIMIT ?`),
		user.ID, conversationType, limit)
	if err != nil {
		slog.Error(s.d.name+" RecentMessages query failed", "error", err, "user_id", user.ID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		var role string
		var persona sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.Content, &m.ConversationType, &persona, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Role = models.Role(role)
		m.Persona = persona.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *sqlSession) ClearConversation(ctx context.Context, user *models.User, conversationType string) error {
	if user == nil {
		return models.ErrNilUser
	}
	err := s.withTx(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, s.d.rebind(`DELETE FROM conversation_messages WHERE user_id = ? AND conversation_type = ?`),
			user.ID, conversationType)
		return err
	})
	if err != nil {
		slog.Error(s.d.name+" ClearConversation failed", "error", err, "user_id", user.ID, "type", conversationType)
		return fmt.Errorf("failed to clear %s conversation: %w", conversationType, err)
	}
	slog.Debug(s.d.name+" ClearConversation succeeded", "user_id", user.ID, "type", conversationType)
	return nil
}

func (s *sqlSession) SaveQuizResult(ctx context.Context, user *models.User, topic string, correct, total int) (*models.QuizResult, error) {
	if user == nil {
		return nil, models.ErrNilUser
	}
	r := models.QuizResult{
		UserID:          user.ID,
		Topic:           topic,
		CorrectAnswers:  correct,
		TotalQuestions:  total,
		ScorePercentage: models.ScorePercentage(correct, total),
		CreatedAt:       s.now(),
	}
	err := s.withTx(ctx, func(q querier) error {
		row := q.QueryRowContext(ctx, s.d.rebind(`INSERT INTO quiz_results
			(user_id, topic, correct_answers, total_questions, score_percentage, created_at)
			VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
			r.UserID, r.Topic, r.CorrectAnswers, r.TotalQuestions, r.ScorePercentage, r.CreatedAt)
		if err := row.Scan(&r.ID); err != nil {
			return fmt.Errorf("failed to insert quiz result: %w", err)
		}
		return s.incrementStat(ctx, q, user, models.StatQuizzesDone, 1)
	})
	if err != nil {
		slog.Error(s.d.name+" SaveQuizResult failed", "error", err, "user_id", user.ID, "topic", topic)
		return nil, err
	}
	slog.Debug(s.d.name+" SaveQuizResult succeeded", "user_id", user.ID, "topic", topic, "score", r.ScorePercentage)
	return &r, nil
}

func (s *sqlSession) QuizStats(ctx context.Context, user *models.User, topic string) (models.QuizStats, error) {
	if user == nil {
		return models.QuizStats{}, models.ErrNilUser
	}
	q, err := s.q()
	if err != nil {
		return models.QuizStats{}, err
	}
	query := `SELECT id, user_id, topic, correct_answers, total_questions, score_percentage, created_at
		FROM quiz_results WHERE user_id = ?`
	args := []any{user.ID}
	if topic != "" {
		query += ` AND topic = ?`
		args = append(args, topic)
	}
	query += ` ORDER BY id ASC`
	rows, err := q.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		slog.Error(s.d.name+" QuizStats query failed", "error", err, "user_id", user.ID)
		return models.QuizStats{}, fmt.Errorf("failed to query quiz results: %w", err)
	}
	defer rows.Close()

	var results []models.QuizResult
	for rows.Next() {
		var r models.QuizResult
		if err := rows.Scan(&r.ID, &r.UserID, &r.Topic, &r.CorrectAnswers, &r.TotalQuestions, &r.ScorePercentage, &r.CreatedAt); err != nil {
			return models.QuizStats{}, fmt.Errorf("failed to scan quiz row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return models.QuizStats{}, fmt.Errorf("failed to iterate quiz rows: %w", err)
	}
	return aggregateQuizStats(results), nil
}

func (s *sqlSession) SaveTranslation(ctx context.Context, user *models.User, rec models.TranslationRecord) (*models.TranslationRecord, error) {
	if user == nil {
		return nil, models.ErrNilUser
	}
	rec.UserID = user.ID
	rec.CreatedAt = s.now()
	err := s.withTx(ctx, func(q querier) error {
		row := q.QueryRowContext(ctx, s.d.rebind(`INSERT INTO translation_history
			(user_id, original_text, translated_text, source_language, target_language, created_at)
			VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
			rec.UserID, rec.OriginalText, rec.TranslatedText, nilIfEmpty(rec.SourceLanguage), rec.TargetLanguage, rec.CreatedAt)
		if err := row.Scan(&rec.ID); err != nil {
			return fmt.Errorf("failed to insert translation: %w", err)
		}
		return s.incrementStat(ctx, q, user, models.StatTranslations, 1)
	})
	if err != nil {
		slog.Error(s.d.name+" SaveTranslation failed", "error", err, "user_id", user.ID)
		return nil, err
	}
	slog.Debug(s.d.name+" SaveTranslation succeeded", "user_id", user.ID, "target", rec.TargetLanguage)
	return &rec, nil
}

func (s *sqlSession) AddVocabularyWord(ctx context.Context, user *models.User, word, translation, language string) (bool, error) {
	if user == nil {
		return false, models.ErrNilUser
	}
	var added bool
	err := s.withTx(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx, s.d.rebind(`INSERT INTO vocabulary_words
			(user_id, word, translation, language, learned_at) VALUES (?, ?, ?, ?, ?) `+s.d.insertIgnore),
			user.ID, word, translation, language, s.now())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		added = n > 0
		return nil
	})
	if err != nil {
		slog.Error(s.d.name+" AddVocabularyWord failed", "error", err, "user_id", user.ID, "word", word)
		return false, fmt.Errorf("failed to add vocabulary word: %w", err)
	}
	slog.Debug(s.d.name+" AddVocabularyWord done", "user_id", user.ID, "word", word, "added", added)
	return added, nil
}

func (s *sqlSession) Vocabulary(ctx context.Context, user *models.User, language string) ([]models.VocabularyWord, error) {
	if user == nil {
		return nil, models.ErrNilUser
	}
	q, err := s.q()
	if err != nil {
		return nil, err
	}
	query := `SELECT id, user_id, word, translation, language, times_practiced, times_correct, learned_at, last_practiced
		FROM vocabulary_words WHERE user_id = ?`
	args := []any{user.ID}
	if language != "" {
		query += ` AND language = ?`
		args = append(args, language)
	}
	query += ` ORDER BY learned_at DESC, id DESC`
	rows, err := q.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		slog.Error(s.d.name+" Vocabulary query failed", "error", err, "user_id", user.ID)
		return nil, fmt.Errorf("failed to query vocabulary: %w", err)
	}
	defer rows.Close()

	var out []models.VocabularyWord
	for rows.Next() {
		var w models.VocabularyWord
		var last sql.NullTime
		if err := rows.Scan(&w.ID, &w.UserID, &w.Word, &w.Translation, &w.Language,
			&w.TimesPracticed, &w.TimesCorrect, &w.LearnedAt, &last); err != nil {
			return nil, fmt.Errorf("failed to scan vocabulary row: %w", err)
		}
		if last.Valid {
			w.LastPracticed = &last.Time
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vocabulary rows: %w", err)
	}
	return out, nil
}

func (s *sqlSession) UpdateVocabularyStats(ctx context.Context, wordID int64, correct bool) error {
	inc := 0
	if correct {
		inc = 1
	}
	err := s.withTx(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx, s.d.rebind(`UPDATE vocabulary_words
			SET times_practiced = times_practiced + 1, times_correct = times_correct + ?, last_practiced = ?
			WHERE id = ?`), inc, s.now(), wordID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("vocabulary word %d not found", wordID)
		}
		return nil
	})
	if err != nil {
		slog.Error(s.d.name+" UpdateVocabularyStats failed", "error", err, "word_id", wordID)
		return err
	}
	return nil
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
