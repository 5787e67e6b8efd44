package handlers

import (
	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/keyboards"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/models"
	"github.com/BTreeMap/GPTPipe/internal/router"
)

func (h *Handlers) randomRouter() *router.Router {
	return router.New("random").
		Command("random", h.randomFact).
		Callback("get_fact", codec.Match(callback.NSRandom, keyboards.ActGetFact), h.randomFact)
}

// randomFact asks the model for a one-shot fact.
func (h *Handlers) randomFact(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	if err := h.enter(c, flow.StateNone); err != nil {
		return err
	}

	st := startStatus(c, lexicon.RandomFactWaitText)
	count(c, u, models.StatFactsRequested)
	fact, err := h.Gateway.CompleteSingle(c.Context(), lexicon.RandomFactPrompt, "")
	if err != nil {
		return st.finish(apology(c, "random", "fact", err), keyboards.RandomFact())
	}
	return st.finish(lexicon.RandomFact(fact), keyboards.RandomFact())
}
