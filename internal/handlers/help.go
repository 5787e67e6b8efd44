package handlers

import (
	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/keyboards"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/router"
)

func (h *Handlers) helpRouter() *router.Router {
	return router.New("help").
		Command("help", h.help).
		Callback("show_menu", codec.Match(callback.NSHelp, keyboards.ActShowMenu), h.help)
}

func (h *Handlers) help(c *router.Context) error {
	if err := h.enter(c, flow.StateNone); err != nil {
		return err
	}
	return c.Show(lexicon.HelpText, keyboards.BackToMenu())
}
