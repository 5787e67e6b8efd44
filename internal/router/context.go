// Package router composes handler groups and middlewares into one inbound-event dispatch chain.
//
// Handler groups (Router) bind commands, callback tokens and FSM states to handlers. A Registry
// holds the explicit registration list of routers and middlewares with their priorities and
// builds a Pipeline; a Dispatcher feeds transport events through it.
package router

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
	"github.com/BTreeMap/GPTPipe/internal/models"
	"github.com/BTreeMap/GPTPipe/internal/store"
)

// ErrSessionState marks a session-consistency failure: the FSM node requires scratch data that is
// missing. The pipeline clears the session and tells the user to start over.
var ErrSessionState = errors.New("session state missing")

// Context is the invocation context of one inbound event. Middlewares fill in the storage
// session, user and FSM before the matched handler runs.
type Context struct {
	Event   messaging.Event
	Service messaging.Service
	Logger  *slog.Logger
	TraceID string

	DB    store.Session
	User  *models.User
	FSM   *flow.Session
	State flow.State

	// Callback is the decoded token when a callback route matched.
	Callback callback.Data

	ctx context.Context
}

// NewContext creates a Context for ev.
func NewContext(ctx context.Context, svc messaging.Service, ev messaging.Event) *Context {
	return &Context{Event: ev, Service: svc, Logger: slog.Default(), ctx: ctx}
}

// Context returns the request context.
func (c *Context) Context() context.Context { return c.ctx }

// SetContext replaces the request context.
func (c *Context) SetContext(ctx context.Context) { c.ctx = ctx }

// UserID returns the acting identity.
func (c *Context) UserID() int64 { return c.Event.From.ID }

// Reply sends a new message to the chat of the event.
func (c *Context) Reply(text string, kb messaging.Keyboard) (messaging.MessageRef, error) {
	ref, err := c.Service.Send(c.ctx, c.Event.ChatID, messaging.Outbound{Text: text, Keyboard: kb})
	if err != nil {
		c.Logger.Error("Context Reply failed", "chat_id", c.Event.ChatID, "error", err)
	}
	return ref, err
}

// Edit replaces a message previously sent by the bot.
func (c *Context) Edit(ref messaging.MessageRef, text string, kb messaging.Keyboard) error {
	err := c.Service.Edit(c.ctx, ref, messaging.Outbound{Text: text, Keyboard: kb})
	if err != nil {
		c.Logger.Error("Context Edit failed", "chat_id", ref.ChatID, "message_id", ref.MessageID, "error", err)
	}
	return err
}

// Show edits the message carrying the pressed button, or sends a new message for any other event.
func (c *Context) Show(text string, kb messaging.Keyboard) error {
	if cq := c.Event.Callback; cq != nil && cq.Message.MessageID != "" {
		return c.Edit(cq.Message, text, kb)
	}
	_, err := c.Reply(text, kb)
	return err
}

// Answer acknowledges the pressed button. It is a no-op for other events.
func (c *Context) Answer(text string) error {
	if c.Event.Callback == nil {
		return nil
	}
	return c.Service.AnswerCallback(c.ctx, c.Event.Callback.ID, text)
}
