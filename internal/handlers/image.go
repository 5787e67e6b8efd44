package handlers

import (
	"html"

	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/keyboards"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
	"github.com/BTreeMap/GPTPipe/internal/models"
	"github.com/BTreeMap/GPTPipe/internal/router"
)

func (h *Handlers) imageRouter() *router.Router {
	awaiting := []flow.State{flow.StateImageAwaitingImage}
	return router.New("image").
		Command("image", h.imageStart).
		Callback("start", codec.Match(callback.NSImage, keyboards.ActStart), h.imageStart).
		Callback("cancel", codec.Match(callback.NSImage, keyboards.ActCancel), h.imageCancel).
		Message("image", []messaging.EventKind{messaging.EventImage}, awaiting, h.imageCaption).
		Message("not_image", []messaging.EventKind{messaging.EventText, messaging.EventOther}, awaiting, h.imageOnly)
}

func (h *Handlers) imageStart(c *router.Context) error {
	if err := h.enter(c, flow.StateImageAwaitingImage); err != nil {
		return err
	}
	return reply(c, lexicon.ImageIntroText, keyboards.Image())
}

func (h *Handlers) imageCancel(c *router.Context) error {
	if err := h.enter(c, flow.StateNone); err != nil {
		return err
	}
	return c.Show(lexicon.ImageCancelledText, keyboards.MainMenu())
}

// imageCaption describes the received image. Success and failure both end the feature.
func (h *Handlers) imageCaption(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	img := c.Event.Image
	if img == nil || !img.Supported() {
		return reply(c, lexicon.ImageUnsupportedText, keyboards.Image())
	}

	st := startStatus(c, lexicon.ImageProcessingText)
	defer func() {
		if err := c.FSM.Clear(c.Context()); err != nil {
			c.Logger.Error("Image failed to clear session", "error", err)
		}
	}()

	data, err := c.Service.DownloadImage(c.Context(), *img)
	if err != nil {
		c.Logger.Error("Image download failed", "file_id", img.FileID, "error", err)
		return st.finish(lexicon.ImageFailedText, nil)
	}
	caption, err := h.Gateway.CaptionImage(c.Context(), data, lexicon.ImageDescriptionPrompt)
	if err != nil {
		return st.finish(apology(c, "image", "caption", err), nil)
	}
	if caption == "" {
		return st.finish(lexicon.ImageNoCaptionText, nil)
	}
	count(c, u, models.StatImagesCaptioned)
	return st.finish(html.EscapeString(caption), nil)
}

func (h *Handlers) imageOnly(c *router.Context) error {
	return reply(c, lexicon.ImageOnlyText, keyboards.Image())
}
