package handlers

import (
	"fmt"

	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/keyboards"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
	"github.com/BTreeMap/GPTPipe/internal/router"
)

func (h *Handlers) vocabularyRouter() *router.Router {
	awaiting := []flow.State{flow.StateVocabularyAwaitingTranslation}
	return router.New("vocabulary").
		Command("vocabulary", h.vocabularyMenu).
		Callback("start", codec.Match(callback.NSVocabulary, keyboards.ActStart), h.vocabularyMenu).
		Callback("get_new_word", codec.Match(callback.NSVocabulary, keyboards.ActNewWord), h.vocabularyNewWord).
		Callback("start_practice", codec.Match(callback.NSVocabulary, keyboards.ActStartPractice), h.practiceStart).
		Message("answer", []messaging.EventKind{messaging.EventText}, awaiting, h.practiceAnswer).
		Message("non_text", nonText, awaiting, h.practiceNeedText)
}

// vocabularyMenu enters the trainer menu, ending any practice session.
func (h *Handlers) vocabularyMenu(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	if err := h.enter(c, flow.StateVocabularyLearningMenu); err != nil {
		return err
	}
	words, err := c.DB.Vocabulary(c.Context(), u, lexicon.VocabularyLanguage)
	if err != nil {
		return fmt.Errorf("failed to list vocabulary: %w", err)
	}
	return c.Show(lexicon.VocabularyWelcome(len(words)), keyboards.VocabularyActions())
}

func (h *Handlers) vocabularyNewWord(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	if err := h.enter(c, flow.StateVocabularyLearningMenu); err != nil {
		return err
	}

	st := startStatus(c, lexicon.VocabularySearchingText)
	raw, err := h.Gateway.CompleteSingle(c.Context(), lexicon.NewWordPrompt, "")
	if err != nil {
		return st.finish(apology(c, "vocabulary", "new_word", err), keyboards.VocabularyActions())
	}
	word, translation, example, ok := lexicon.ParseNewWord(raw)
	if !ok {
		c.Logger.Warn("Vocabulary malformed word reply", "reply", messaging.Preview(raw, 80))
		return st.finish(lexicon.VocabularyBadWordText, keyboards.VocabularyActions())
	}
	added, err := c.DB.AddVocabularyWord(c.Context(), u, word, translation, lexicon.VocabularyLanguage)
	if err != nil {
		return fmt.Errorf("failed to add vocabulary word: %w", err)
	}
	c.Logger.Info("Vocabulary word learned", "word", word, "added", added)
	return st.finish(lexicon.NewWord(word, translation, example, added), keyboards.VocabularyActions())
}

// practiceStart queues the user's words in random order and asks the first one.
func (h *Handlers) practiceStart(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	words, err := c.DB.Vocabulary(c.Context(), u, lexicon.VocabularyLanguage)
	if err != nil {
		return fmt.Errorf("failed to list vocabulary: %w", err)
	}
	if len(words) == 0 {
		if err := h.enter(c, flow.StateVocabularyLearningMenu); err != nil {
			return err
		}
		return reply(c, lexicon.PracticeNoWordsText, keyboards.VocabularyActions())
	}

	queue := make([]flow.PracticeWord, len(words))
	for i, w := range words {
		queue[i] = flow.PracticeWord{ID: w.ID, Word: w.Word}
	}
	h.Shuffle(queue)

	if err := h.enter(c, flow.StateVocabularyLearningMenu); err != nil {
		return err
	}
	if err := c.FSM.Update(c.Context(), flow.Data{
		flow.KeyPracticeWords:    queue,
		flow.KeyCurrentWordIndex: 0,
		flow.KeyCorrectAnswers:   0,
	}); err != nil {
		return err
	}
	if err := c.FSM.Set(c.Context(), flow.StateVocabularyPractice); err != nil {
		return err
	}
	if err := reply(c, lexicon.PracticeStartText, nil); err != nil {
		return err
	}
	return h.practiceNext(c)
}

// practiceNext asks the next queued word, or reports the result and returns to the menu.
func (h *Handlers) practiceNext(c *router.Context) error {
	data, err := c.FSM.Data(c.Context())
	if err != nil {
		return err
	}
	words := data.PracticeWords()
	if words == nil {
		return expired("practice queue missing")
	}
	idx := data.IntOr(flow.KeyCurrentWordIndex, 0)
	if idx >= len(words) {
		correct := data.IntOr(flow.KeyCorrectAnswers, 0)
		c.Logger.Info("Vocabulary practice finished", "correct", correct, "total", len(words))
		if err := reply(c, lexicon.PracticeResult(correct, len(words)), nil); err != nil {
			return err
		}
		return h.vocabularyMenu(c)
	}

	w := words[idx]
	if err := c.FSM.Update(c.Context(), flow.Data{
		flow.KeyCurrentWordIndex: idx + 1,
		flow.KeyCurrentWordID:    w.ID,
	}); err != nil {
		return err
	}
	if err := c.FSM.Set(c.Context(), flow.StateVocabularyAwaitingTranslation); err != nil {
		return err
	}
	return reply(c, lexicon.PracticePrompt(w.Word, idx+1, len(words)), keyboards.Practice())
}

// practiceAnswer checks the translation of the asked word. A gateway failure keeps the word
// pending so the user can answer again.
func (h *Handlers) practiceAnswer(c *router.Context) error {
	data, err := c.FSM.Data(c.Context())
	if err != nil {
		return err
	}
	words := data.PracticeWords()
	idx := data.IntOr(flow.KeyCurrentWordIndex, 0)
	wordID, ok := data.Int(flow.KeyCurrentWordID)
	if words == nil || !ok || idx < 1 || idx > len(words) {
		return expired("practice word missing")
	}
	w := words[idx-1]

	st := startStatus(c, lexicon.PracticeCheckingText)
	verdict, err := h.Gateway.CompleteSingle(c.Context(), lexicon.WordValidationPrompt(w.Word, c.Event.Text), "")
	if err != nil {
		return st.finish(apology(c, "vocabulary", "check", err), keyboards.Practice())
	}
	correct := lexicon.IsAffirmative(verdict)
	if err := c.DB.UpdateVocabularyStats(c.Context(), int64(wordID), correct); err != nil {
		c.Logger.Error("Vocabulary failed to update word stats", "word_id", wordID, "error", err)
	}

	text := lexicon.PracticeIncorrectText
	if correct {
		text = lexicon.PracticeCorrectText
		if err := c.FSM.Update(c.Context(), flow.Data{
			flow.KeyCorrectAnswers: data.IntOr(flow.KeyCorrectAnswers, 0) + 1,
		}); err != nil {
			return err
		}
	}
	if err := st.finish(text, nil); err != nil {
		return err
	}
	if err := c.FSM.Set(c.Context(), flow.StateVocabularyPractice); err != nil {
		return err
	}
	return h.practiceNext(c)
}

func (h *Handlers) practiceNeedText(c *router.Context) error {
	return reply(c, lexicon.PracticeNeedText, keyboards.Practice())
}
