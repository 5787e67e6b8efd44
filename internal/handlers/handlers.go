// Package handlers implements the bot's feature handler groups: start, statistics, help,
// random facts, direct Q&A, persona chat, quiz, translation, image captioning, vocabulary
// and the lowest-precedence fallback.
package handlers

import (
	"fmt"

	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/genai"
	"github.com/BTreeMap/GPTPipe/internal/keyboards"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
	"github.com/BTreeMap/GPTPipe/internal/models"
	"github.com/BTreeMap/GPTPipe/internal/router"
	"github.com/BTreeMap/GPTPipe/internal/util"
)

// Handler group priorities.
const (
	FeaturePriority  = router.DefaultPriority
	FallbackPriority = 100
)

var codec = callback.Default()

// Non-text inbound kinds, used for re-prompting in text-only states.
var nonText = []messaging.EventKind{messaging.EventImage, messaging.EventOther}

// Deps are the collaborators of the handler groups.
type Deps struct {
	Gateway genai.Gateway
	// Shuffle orders a vocabulary practice queue. Defaults to a random permutation.
	Shuffle func([]flow.PracticeWord)
}

// module is one registered handler group.
type module struct {
	rt       *router.Router
	priority int
}

func (m module) Router() *router.Router { return m.rt }
func (m module) Priority() int          { return m.priority }

// Register adds every handler group to reg.
func Register(reg *router.Registry, deps Deps) {
	h := &Handlers{Deps: deps}
	if h.Shuffle == nil {
		h.Shuffle = util.Shuffle[flow.PracticeWord]
	}
	for _, m := range []struct {
		name string
		rt   *router.Router
		prio int
	}{
		{"start", h.startRouter(), FeaturePriority},
		{"stats", h.statsRouter(), FeaturePriority},
		{"help", h.helpRouter(), FeaturePriority},
		{"random", h.randomRouter(), FeaturePriority},
		{"gpt", h.gptRouter(), FeaturePriority},
		{"talk", h.talkRouter(), FeaturePriority},
		{"quiz", h.quizRouter(), FeaturePriority},
		{"translate", h.translateRouter(), FeaturePriority},
		{"image", h.imageRouter(), FeaturePriority},
		{"vocabulary", h.vocabularyRouter(), FeaturePriority},
		{"fallback", h.fallbackRouter(), FallbackPriority},
	} {
		reg.Include(m.name, module{rt: m.rt, priority: m.prio})
	}
}

// PipelineOptions are the boundary replies used with the handler groups.
func PipelineOptions() []router.PipelineOption {
	return []router.PipelineOption{
		router.WithErrorReply(lexicon.GenericErrorText),
		router.WithSessionExpiredReply(lexicon.SessionExpiredText, keyboards.MainMenu()),
	}
}

// Handlers holds the handler implementations.
type Handlers struct {
	Deps
}

// user returns the resolved user or models.ErrNilUser.
func user(c *router.Context) (*models.User, error) {
	if c.User == nil {
		return nil, models.ErrNilUser
	}
	return c.User, nil
}

// expired wraps router.ErrSessionState with the missing item.
func expired(what string) error {
	return fmt.Errorf("%w: %s", router.ErrSessionState, what)
}

// count increments a counter. Failures are logged only.
func count(c *router.Context, u *models.User, field models.StatField) {
	if err := c.DB.IncrementStat(c.Context(), u, field, 1); err != nil {
		c.Logger.Error("Handler failed to increment stat", "field", string(field), "error", err)
	}
}

// apology logs a gateway failure and returns the reply for its kind.
func apology(c *router.Context, feature, operation string, err error) string {
	kind := genai.KindOf(err)
	c.Logger.Error("Handler gateway call failed", "feature", feature, "operation", operation, "kind", kind.String(), "error", err)
	return lexicon.Apology(kind)
}

// status is a progress message later replaced by the result.
type status struct {
	c   *router.Context
	ref messaging.MessageRef
	ok  bool
}

func startStatus(c *router.Context, text string) status {
	ref, err := c.Reply(text, nil)
	return status{c: c, ref: ref, ok: err == nil && ref.MessageID != ""}
}

func (s status) finish(text string, kb messaging.Keyboard) error {
	if s.ok {
		return s.c.Edit(s.ref, text, kb)
	}
	_, err := s.c.Reply(text, kb)
	return err
}

// reply sends a new message.
func reply(c *router.Context, text string, kb messaging.Keyboard) error {
	_, err := c.Reply(text, kb)
	return err
}
