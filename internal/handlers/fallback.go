package handlers

import (
	"github.com/BTreeMap/GPTPipe/internal/keyboards"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
	"github.com/BTreeMap/GPTPipe/internal/router"
)

// fallbackRouter catches whatever no feature group claimed.
func (h *Handlers) fallbackRouter() *router.Router {
	return router.New("fallback").
		Handle("stale_callback", h.staleCallback, router.OfKind(messaging.EventCallback)).
		Handle("unhandled", h.unhandled, router.Any())
}

// staleCallback drops buttons whose token no feature accepts. The press was already acknowledged.
func (h *Handlers) staleCallback(c *router.Context) error {
	data := ""
	if c.Event.Callback != nil {
		data = c.Event.Callback.Data
	}
	c.Logger.Warn("Fallback unhandled callback", "data", data, "state", string(c.State))
	return nil
}

func (h *Handlers) unhandled(c *router.Context) error {
	c.Logger.Debug("Fallback unhandled event", "kind", c.Event.Kind.String(), "state", string(c.State))
	return reply(c, lexicon.FallbackText, keyboards.MainMenu())
}
