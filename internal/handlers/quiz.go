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

func (h *Handlers) quizRouter() *router.Router {
	answering := []flow.State{flow.StateQuizAwaitingAnswer}
	return router.New("quiz").
		Command("quiz", h.quizStart).
		Callback("start", codec.Match(callback.NSQuiz, keyboards.ActStart), h.quizStart).
		Callback("select_topic", codec.Match(callback.NSQuiz, keyboards.ActSelectTopic), h.quizSelectTopic).
		Callback("choose_another_topic", codec.Match(callback.NSQuiz, keyboards.ActChooseTopic), h.quizChooseAnother).
		Callback("continue", codec.Match(callback.NSQuiz, keyboards.ActContinue), h.quizQuestion).
		Callback("cancel", codec.Match(callback.NSQuiz, keyboards.ActCancel), h.quizCancel).
		Message("answer", []messaging.EventKind{messaging.EventText}, answering, h.quizAnswer).
		Message("non_text", nonText, answering, h.quizNeedText)
}

func (h *Handlers) quizStart(c *router.Context) error {
	if err := h.finishQuiz(c); err != nil {
		return err
	}
	if err := c.FSM.Set(c.Context(), flow.StateQuizChoosingTopic); err != nil {
		return err
	}
	c.Logger.Info("Quiz started")
	return reply(c, lexicon.QuizIntroText, keyboards.QuizTopics())
}

// quizSelectTopic starts a fresh session on the chosen topic with a zero score.
func (h *Handlers) quizSelectTopic(c *router.Context) error {
	topic, ok := lexicon.TopicByKey(c.Callback.Param(callback.ParamTopicKey))
	if !ok {
		return reply(c, lexicon.QuizInvalidTopicText, nil)
	}
	if err := h.finishQuiz(c); err != nil {
		return err
	}
	if err := c.FSM.Set(c.Context(), flow.StateQuizChoosingTopic); err != nil {
		return err
	}
	if err := c.FSM.Update(c.Context(), flow.Data{
		flow.KeyTopic:          topic.Key,
		flow.KeyCorrectAnswers: 0,
		flow.KeyTotalQuestions: 0,
	}); err != nil {
		return err
	}
	if err := c.FSM.Set(c.Context(), flow.StateQuizConfirmingStart); err != nil {
		return err
	}
	return reply(c, lexicon.QuizTopicChosen(topic.Name), keyboards.QuizConfirm())
}

func (h *Handlers) quizChooseAnother(c *router.Context) error {
	if err := h.finishQuiz(c); err != nil {
		return err
	}
	if err := c.FSM.Set(c.Context(), flow.StateQuizChoosingTopic); err != nil {
		return err
	}
	return reply(c, lexicon.QuizAnotherTopicText, keyboards.QuizTopics())
}

// quizQuestion asks the model for the next question on the session topic.
func (h *Handlers) quizQuestion(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	topic, _, err := h.quizSession(c)
	if err != nil {
		return err
	}

	st := startStatus(c, lexicon.ThinkingText)
	thread := flow.Thread{Store: c.DB, User: u, Type: flow.ConversationQuiz, Policy: flow.QuizQuestionPolicy}
	msgs, err := thread.Build(c.Context(), lexicon.QuizQuestionPrompt(topic.Name), "")
	if err != nil {
		return err
	}
	question, err := h.Gateway.Complete(c.Context(), msgs)
	if err != nil {
		return st.finish(apology(c, "quiz", "question", err), keyboards.QuizConfirm())
	}
	if err := thread.Commit(c.Context(), "", question); err != nil {
		return fmt.Errorf("failed to store quiz question: %w", err)
	}
	if err := c.FSM.Set(c.Context(), flow.StateQuizAwaitingAnswer); err != nil {
		return err
	}
	return st.finish(lexicon.QuizQuestion(question), keyboards.QuizAnswer())
}

// quizAnswer grades the answer against the last stored question and updates the score.
func (h *Handlers) quizAnswer(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	_, data, err := h.quizSession(c)
	if err != nil {
		return err
	}

	st := startStatus(c, lexicon.QuizCheckingText)
	thread := flow.Thread{Store: c.DB, User: u, Type: flow.ConversationQuiz, Policy: flow.QuizAnswerPolicy}
	msgs, err := thread.Build(c.Context(), lexicon.QuizAnswerCheckPrompt, c.Event.Text)
	if err != nil {
		return err
	}
	verdict, err := h.Gateway.Complete(c.Context(), msgs)
	if err != nil {
		return st.finish(apology(c, "quiz", "grade", err), keyboards.QuizAnswer())
	}
	if err := thread.Commit(c.Context(), c.Event.Text, verdict); err != nil {
		c.Logger.Error("Quiz failed to store verdict", "error", err)
	}

	correct := lexicon.IsAffirmative(verdict)
	score := data.IntOr(flow.KeyCorrectAnswers, 0)
	if correct {
		score++
	}
	total := data.IntOr(flow.KeyTotalQuestions, 0) + 1
	if err := c.FSM.Update(c.Context(), flow.Data{flow.KeyCorrectAnswers: score, flow.KeyTotalQuestions: total}); err != nil {
		return err
	}
	if err := c.FSM.Set(c.Context(), flow.StateQuizConfirmingStart); err != nil {
		return err
	}
	c.Logger.Debug("Quiz answer graded", "correct", correct, "score", score, "total", total)

	if err := st.finish(lexicon.QuizVerdict(correct, score, total), nil); err != nil {
		return err
	}
	return reply(c, lexicon.QuizNextText, keyboards.QuizPostAnswer())
}

func (h *Handlers) quizNeedText(c *router.Context) error {
	return reply(c, lexicon.QuizNeedTextText, nil)
}

func (h *Handlers) quizCancel(c *router.Context) error {
	if err := h.finishQuiz(c); err != nil {
		return err
	}
	return reply(c, lexicon.QuizCancelledText, keyboards.MainMenu())
}

// quizSession returns the topic and scratch data of the running quiz.
func (h *Handlers) quizSession(c *router.Context) (lexicon.Topic, flow.Data, error) {
	data, err := c.FSM.Data(c.Context())
	if err != nil {
		return lexicon.Topic{}, nil, err
	}
	topic, ok := lexicon.TopicByKey(data.String(flow.KeyTopic))
	if !ok {
		return lexicon.Topic{}, nil, expired("quiz topic not selected")
	}
	return topic, data, nil
}

// finishQuiz saves the running session's score when at least one question was answered,
// then clears the session and the quiz history.
func (h *Handlers) finishQuiz(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	data, err := c.FSM.Data(c.Context())
	if err != nil {
		return err
	}
	topic := data.String(flow.KeyTopic)
	correct := data.IntOr(flow.KeyCorrectAnswers, 0)
	total := data.IntOr(flow.KeyTotalQuestions, 0)

	if topic != "" && total > 0 {
		res, err := c.DB.SaveQuizResult(c.Context(), u, topic, correct, total)
		if err != nil {
			return fmt.Errorf("failed to save quiz result: %w", err)
		}
		c.Logger.Info("Quiz finished", "topic", topic, "correct", correct, "total", total, "score", res.ScorePercentage)
	}
	if err := c.FSM.Clear(c.Context()); err != nil {
		return err
	}
	return c.DB.ClearConversation(c.Context(), u, flow.ConversationQuiz)
}

// enter leaves the current feature and moves to state. A running quiz is finished first so
// its score is saved and its history dropped.
func (h *Handlers) enter(c *router.Context, state flow.State) error {
	current, err := c.FSM.State(c.Context())
	if err != nil {
		return err
	}
	if current.Feature() == "quiz" {
		if err := h.finishQuiz(c); err != nil {
			return err
		}
	}
	return c.FSM.Reset(c.Context(), state)
}
