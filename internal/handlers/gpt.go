package handlers

import (
	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/keyboards"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
	"github.com/BTreeMap/GPTPipe/internal/models"
	"github.com/BTreeMap/GPTPipe/internal/router"
)

func (h *Handlers) gptRouter() *router.Router {
	awaiting := []flow.State{flow.StateGPTAwaitingQuestion}
	return router.New("gpt").
		Command("gpt", h.gptStart).
		Callback("start", codec.Match(callback.NSGPT, keyboards.ActStart), h.gptStart).
		Callback("ask_another", codec.Match(callback.NSGPT, keyboards.ActAskAnother), h.gptAskAnother).
		Callback("cancel", codec.Match(callback.NSGPT, keyboards.ActCancel), h.gptCancel).
		Message("question", []messaging.EventKind{messaging.EventText}, awaiting, h.gptQuestion).
		Message("non_text", nonText, awaiting, h.gptNeedText)
}

func (h *Handlers) gptStart(c *router.Context) error {
	if err := h.enter(c, flow.StateGPTAwaitingQuestion); err != nil {
		return err
	}
	c.Logger.Info("GPT interface started")
	return reply(c, lexicon.GPTIntroText, keyboards.GPTInterface())
}

func (h *Handlers) gptAskAnother(c *router.Context) error {
	if err := c.FSM.Set(c.Context(), flow.StateGPTAwaitingQuestion); err != nil {
		return err
	}
	return reply(c, lexicon.GPTAskAnotherText, keyboards.GPTInterface())
}

func (h *Handlers) gptCancel(c *router.Context) error {
	if err := h.enter(c, flow.StateNone); err != nil {
		return err
	}
	return c.Show(lexicon.GPTCancelledText, keyboards.MainMenu())
}

// gptQuestion answers a direct question. The question and answer are stored together on
// success only, so a failed turn leaves no trace in the history.
func (h *Handlers) gptQuestion(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	question := c.Event.Text
	thread := flow.Thread{Store: c.DB, User: u, Type: flow.ConversationGPT, Policy: flow.QAPolicy}
	msgs, err := thread.Build(c.Context(), lexicon.GPTSystemPrompt, question)
	if err != nil {
		return err
	}

	st := startStatus(c, lexicon.GPTProcessingText)
	answer, err := h.Gateway.Complete(c.Context(), msgs)
	if err != nil {
		return st.finish(apology(c, "gpt", "question", err), keyboards.GPTActions())
	}
	if err := thread.Commit(c.Context(), question, answer); err != nil {
		c.Logger.Error("GPT failed to store turn", "error", err)
	}
	count(c, u, models.StatModelQueries)
	count(c, u, models.StatMessagesSent)
	c.Logger.Info("GPT response sent")
	return st.finish(lexicon.GPTAnswer(answer), keyboards.GPTActions())
}

func (h *Handlers) gptNeedText(c *router.Context) error {
	return reply(c, lexicon.GPTNeedTextText, nil)
}
