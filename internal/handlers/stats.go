package handlers

import (
	"fmt"

	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/keyboards"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/router"
)

func (h *Handlers) statsRouter() *router.Router {
	return router.New("stats").
		Command("stats", h.stats).
		Callback("show", codec.Match(callback.NSStart, keyboards.ActStats), h.stats)
}

// stats shows the user's counters and quiz statistics.
func (h *Handlers) stats(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	qs, err := c.DB.QuizStats(c.Context(), u, "")
	if err != nil {
		return fmt.Errorf("failed to load quiz stats: %w", err)
	}
	return c.Show(lexicon.Stats(u, qs), keyboards.BackToMenu())
}
