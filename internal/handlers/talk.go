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

func (h *Handlers) talkRouter() *router.Router {
	chatting := []flow.State{flow.StatePersonaChatting}
	return router.New("talk").
		Command("talk", h.talkStart).
		Callback("show_selection", codec.Match(callback.NSPersonality, keyboards.ActShowSelection), h.talkStart).
		Callback("select", codec.Match(callback.NSPersonality, keyboards.ActSelect), h.talkSelect).
		Callback("change", codec.Match(callback.NSPersonality, keyboards.ActChange), h.talkChange).
		Callback("end_chat", codec.Match(callback.NSPersonality, keyboards.ActEndChat), h.talkEnd).
		Message("chat", []messaging.EventKind{messaging.EventText}, chatting, h.talkChat).
		Message("non_text", nonText, chatting, h.talkNeedText)
}

func (h *Handlers) talkStart(c *router.Context) error {
	if err := h.enter(c, flow.StatePersonaChoosing); err != nil {
		return err
	}
	return c.Show(lexicon.TalkMenuText, keyboards.PersonaSelection())
}

func (h *Handlers) talkSelect(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	persona, ok := lexicon.PersonaByKey(c.Callback.Param(callback.ParamKey))
	if !ok {
		return reply(c, lexicon.UnknownPersonaText, nil)
	}

	count(c, u, models.StatPersonaChats)
	if err := c.FSM.Update(c.Context(), flow.Data{flow.KeyPersona: persona.Key}); err != nil {
		return err
	}
	if err := c.FSM.Set(c.Context(), flow.StatePersonaChatting); err != nil {
		return err
	}
	c.Logger.Info("Talk persona selected", "persona", persona.Key)
	return c.Show(lexicon.NowChatting(persona.Name), keyboards.PersonaActions())
}

func (h *Handlers) talkChange(c *router.Context) error {
	if err := c.FSM.Set(c.Context(), flow.StatePersonaChoosing); err != nil {
		return err
	}
	return c.Show(lexicon.ChangePersonaText, keyboards.PersonaSelection())
}

func (h *Handlers) talkEnd(c *router.Context) error {
	if err := h.enter(c, flow.StateNone); err != nil {
		return err
	}
	return c.Show(lexicon.EndChatText, keyboards.MainMenu())
}

// talkChat continues the conversation with the selected persona. The user turn is stored
// before the history window is read.
func (h *Handlers) talkChat(c *router.Context) error {
	u, err := user(c)
	if err != nil {
		return err
	}
	data, err := c.FSM.Data(c.Context())
	if err != nil {
		return err
	}
	persona, ok := lexicon.PersonaByKey(data.String(flow.KeyPersona))
	if !ok {
		return expired("persona not selected")
	}

	thread := flow.Thread{
		Store:   c.DB,
		User:    u,
		Type:    flow.PersonaConversation(persona.Key),
		Persona: persona.Key,
		Policy:  flow.PersonaPolicy,
	}
	st := startStatus(c, lexicon.ThinkingText)
	msgs, err := thread.Build(c.Context(), persona.Prompt, c.Event.Text)
	if err != nil {
		return err
	}
	answer, err := h.Gateway.Complete(c.Context(), msgs)
	if err != nil {
		return st.finish(apology(c, "talk", "chat", err), keyboards.PersonaActions())
	}
	if err := thread.Commit(c.Context(), c.Event.Text, answer); err != nil {
		c.Logger.Error("Talk failed to store reply", "persona", persona.Key, "error", err)
	}
	count(c, u, models.StatMessagesSent)
	return st.finish(lexicon.PersonaReply(persona.Name, answer), keyboards.PersonaActions())
}

func (h *Handlers) talkNeedText(c *router.Context) error {
	return reply(c, lexicon.PersonaNeedText, nil)
}
