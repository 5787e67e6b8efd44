package handlers

import (
	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/keyboards"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/router"
)

func (h *Handlers) startRouter() *router.Router {
	return router.New("start").
		Command("start", h.start).
		Callback("main_menu", codec.Match(callback.NSStart, keyboards.ActMainMenu), h.mainMenu)
}

// start greets the user, clears any active feature and shows the main menu.
func (h *Handlers) start(c *router.Context) error {
	if err := h.enter(c, flow.StateNone); err != nil {
		return err
	}
	name := c.Event.From.Username
	if c.User != nil && c.User.Username != "" {
		name = c.User.Username
	}
	c.Logger.Info("Start user started the bot", "username", name)
	return reply(c, lexicon.Welcome(name), keyboards.MainMenu())
}

func (h *Handlers) mainMenu(c *router.Context) error {
	if err := h.enter(c, flow.StateNone); err != nil {
		return err
	}
	return c.Show(lexicon.MainMenuText, keyboards.MainMenu())
}
