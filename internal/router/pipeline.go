package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/BTreeMap/GPTPipe/internal/messaging"
)

// Default user-visible replies of the pipeline boundary.
const (
	DefaultErrorReply          = "Sorry, something went wrong. Please try again."
	DefaultSessionExpiredReply = "Your session has expired. Please start again."
)

// PipelineOpts configures the pipeline boundary.
type PipelineOpts struct {
	ErrorReply          string
	SessionExpiredReply string
	SessionExpiredKB    messaging.Keyboard
}

// PipelineOption modifies PipelineOpts.
type PipelineOption func(*PipelineOpts)

// WithErrorReply sets the reply sent when a handler fails.
func WithErrorReply(text string) PipelineOption {
	return func(o *PipelineOpts) {
		o.ErrorReply = text
	}
}

// WithSessionExpiredReply sets the reply sent after a session-consistency error.
func WithSessionExpiredReply(text string, kb messaging.Keyboard) PipelineOption {
	return func(o *PipelineOpts) {
		o.SessionExpiredReply = text
		o.SessionExpiredKB = kb
	}
}

// Pipeline is the composed dispatch chain: middlewares around first-match-wins routing.
type Pipeline struct {
	svc     messaging.Service
	routers []RouterEntry
	chain   HandlerFunc
	opts    PipelineOpts
}

// Build composes the registered middlewares and routers. The lowest-priority middleware is
// outermost; routers are matched in ascending priority.
func (r *Registry) Build(svc messaging.Service, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		svc:     svc,
		routers: r.Routers(),
		opts: PipelineOpts{
			ErrorReply:          DefaultErrorReply,
			SessionExpiredReply: DefaultSessionExpiredReply,
		},
	}
	for _, opt := range opts {
		opt(&p.opts)
	}

	h := HandlerFunc(p.route)
	mws := r.Middlewares()
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i].Middleware(h)
	}
	p.chain = h

	slog.Info("Pipeline built", "routers", len(p.routers), "middlewares", len(mws))
	return p
}

// route runs the first matching route across all routers.
func (p *Pipeline) route(c *Context) error {
	for _, entry := range p.routers {
		rt, ok := entry.Router.match(c)
		if !ok {
			continue
		}
		c.Logger.Debug("Pipeline route matched", "router", entry.Router.Name(), "route", rt.Name)
		if err := rt.Handler(c); err != nil {
			return fmt.Errorf("%s %s: %w", entry.Router.Name(), rt.Name, err)
		}
		return nil
	}
	c.Logger.Debug("Pipeline event unhandled", "kind", c.Event.Kind.String(), "chat_id", c.Event.ChatID)
	return nil
}

// Handle dispatches one event. Errors and panics stop at this boundary: they are logged and
// answered with a fixed reply, and the event counts as handled.
func (p *Pipeline) Handle(ctx context.Context, ev messaging.Event) {
	c := NewContext(ctx, p.svc, ev)
	defer func() {
		if rec := recover(); rec != nil {
			c.Logger.Error("Pipeline handler panicked", "panic", rec, "user_id", ev.From.ID, "stack", string(debug.Stack()))
			p.reply(c, p.opts.ErrorReply, nil)
		}
	}()

	err := p.chain(c)
	if err == nil {
		return
	}
	if errors.Is(err, ErrSessionState) {
		c.Logger.Warn("Pipeline session state missing", "user_id", ev.From.ID, "state", string(c.State), "error", err)
		if c.FSM != nil {
			if cerr := c.FSM.Clear(c.Context()); cerr != nil {
				c.Logger.Error("Pipeline failed to clear session", "user_id", ev.From.ID, "error", cerr)
			}
		}
		p.reply(c, p.opts.SessionExpiredReply, p.opts.SessionExpiredKB)
		return
	}
	c.Logger.Error("Pipeline handler failed", "user_id", ev.From.ID, "kind", ev.Kind.String(), "error", err)
	p.reply(c, p.opts.ErrorReply, nil)
}

func (p *Pipeline) reply(c *Context, text string, kb messaging.Keyboard) {
	if c.Event.ChatID == 0 || text == "" {
		return
	}
	_, _ = c.Reply(text, kb)
}
