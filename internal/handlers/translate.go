package handlers

import (
	"fmt"

	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/keyboards"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
	"github.com/BTreeMap/GPTPipe/internal/models"
	"github.com/BTreeMap/GPTPipe/internal/router"
)

func (h *Handlers) translateRouter() *router.Router {
	awaiting := []flow.State{flow.StateTranslateAwaitingText}
	return router.New("translate").
		Command("translate", h.translateStart).
		Callback("start", codec.Match(callback.NSTranslate, keyboards.ActStart), h.translateStart).
		Callback("select_lang", codec.Match(callback.NSTranslate, keyboards.ActSelectLang), h.translateSelect).
		Message("text", []messaging.EventKind{messaging.EventText}, awaiting, h.translateText).
		Message("non_text", nonText, awaiting, h.translateNeedText)
}

func (h *Handlers) translateStart(c *router.Context) error {
	if err := h.enter(c, flow.StateTranslateChoosingLanguage); err != nil {
		return err
	}
	return c.Show(lexicon.ChooseLanguageText, keyboards.Languages())
}

func (h *Handlers) translateSelect(c *router.Context) error {
	lang, ok := lexicon.LanguageByCode(c.Callback.Param(callback.ParamLanguageCode))
	if !ok {
		return reply(c, lexicon.UnknownLanguage, keyboards.Languages())
	}
	if err := h.enter(c, flow.StateTranslateChoosingLanguage); err != nil {
		return err
	}
	if err := c.FSM.Update(c.Context(), flow.Data{
		flow.KeyTargetLangCode: lang.Code,
		flow.KeyTargetLangName: lang.Name,
	}); err != nil {
		return err
	}
	if err := c.FSM.Set(c.Context(), flow.StateTranslateAwaitingText); err != nil {
		return err
	}
	return c.Show(lexicon.WaitingForTextText, nil)
}

// translateText translates one message and records it. On success the user picks the next
// language; on a gateway failure the language stays selected for a retry.
func (h *Handlers) translateText(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	data, err := c.FSM.Data(c.Context())
	if err != nil {
		return err
	}
	language := data.String(flow.KeyTargetLangName)
	if language == "" {
		return expired("target language not selected")
	}

	original := c.Event.Text
	st := startStatus(c, lexicon.Translating(language))
	translated, err := h.Gateway.CompleteSingle(c.Context(), lexicon.TranslationPrompt(original, language), "")
	if err != nil {
		return st.finish(apology(c, "translate", "translate", err), nil)
	}

	if _, err := c.DB.SaveTranslation(c.Context(), u, models.TranslationRecord{
		OriginalText:   original,
		TranslatedText: translated,
		TargetLanguage: language,
	}); err != nil {
		return fmt.Errorf("failed to save translation: %w", err)
	}
	if err := c.FSM.Set(c.Context(), flow.StateTranslateChoosingLanguage); err != nil {
		return err
	}
	return st.finish(lexicon.TranslationResult(original, translated, language), keyboards.Languages())
}

func (h *Handlers) translateNeedText(c *router.Context) error {
	return reply(c, lexicon.TranslateNeedText, nil)
}
