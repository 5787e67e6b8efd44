// Package middleware provides the cross-cutting stages of the dispatch chain: event logging,
// the per-event storage session, user resolution, FSM injection and callback acknowledgement.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
	"github.com/BTreeMap/GPTPipe/internal/router"
	"github.com/BTreeMap/GPTPipe/internal/store"
)

// Priorities of the built-in middlewares. Lower wraps further out.
const (
	LoggingPriority     = 5
	SessionPriority     = 10
	UserPriority        = 20
	FSMPriority         = 30
	CallbackAckPriority = 40
)

// ErrNoSession is returned by User when no storage session was opened.
var ErrNoSession = errors.New("storage session not available")

// previewLen bounds logged message text.
const previewLen = 30

// Logging attaches a trace id and a per-event logger to the context and logs each event.
func Logging() router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c *router.Context) error {
			c.TraceID = uuid.NewString()
			c.Logger = slog.Default().With("trace_id", c.TraceID, "user_id", c.Event.From.ID)

			start := time.Now()
			c.Logger.Info("Incoming event", "kind", c.Event.Kind.String(), "username", c.Event.From.Username, "description", Describe(c.Event))
			err := next(c)
			c.Logger.Debug("Event processed", "duration", time.Since(start), "error", err)
			return err
		}
	}
}

// Describe summarises an event for logging.
func Describe(ev messaging.Event) string {
	switch ev.Kind {
	case messaging.EventCommand:
		return "command /" + ev.Command
	case messaging.EventCallback:
		if ev.Callback == nil {
			return "callback"
		}
		return "callback " + ev.Callback.Data
	case messaging.EventText:
		return "text " + messaging.Preview(ev.Text, previewLen)
	case messaging.EventImage:
		if ev.Image != nil && ev.Image.IsDocument {
			return "image document " + ev.Image.MIMEType
		}
		return "photo"
	default:
		return "other"
	}
}

// Session opens a storage session for the event and releases it on every exit path.
// Failing to open aborts this event only.
func Session(st store.Store) router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c *router.Context) error {
			db, err := st.Open(c.Context())
			if err != nil {
				return fmt.Errorf("failed to open storage session: %w", err)
			}
			defer func() {
				if cerr := db.Close(); cerr != nil {
					c.Logger.Error("Session middleware failed to close storage session", "error", cerr)
				}
			}()
			c.DB = db
			return next(c)
		}
	}
}

// User resolves the acting identity with get-or-create. Events without a sender pass through.
func User() router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c *router.Context) error {
			if c.Event.From.ID == 0 {
				return next(c)
			}
			if c.DB == nil {
				return ErrNoSession
			}
			user, err := c.DB.GetOrCreateUser(c.Context(), c.Event.From.ID, c.Event.From.Username)
			if err != nil {
				return fmt.Errorf("failed to resolve user %d: %w", c.Event.From.ID, err)
			}
			c.User = user
			return next(c)
		}
	}
}

// FSM binds the user's session state to the context and loads the current node.
func FSM(m flow.StateManager) router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c *router.Context) error {
			c.FSM = flow.NewSession(m, c.UserID())
			state, err := c.FSM.State(c.Context())
			if err != nil {
				return fmt.Errorf("failed to load session state: %w", err)
			}
			c.State = state
			return next(c)
		}
	}
}

// CallbackAck acknowledges button presses before the handler runs.
func CallbackAck() router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c *router.Context) error {
			if c.Event.Kind == messaging.EventCallback {
				if err := c.Answer(""); err != nil {
					c.Logger.Warn("CallbackAck failed to answer callback", "error", err)
				}
			}
			return next(c)
		}
	}
}

// Register adds the built-in middlewares to reg at their priorities.
func Register(reg *router.Registry, st store.Store, m flow.StateManager) {
	reg.AddMiddleware("logging", Logging(), LoggingPriority)
	reg.AddMiddleware("session", Session(st), SessionPriority)
	reg.AddMiddleware("user", User(), UserPriority)
	reg.AddMiddleware("fsm", FSM(m), FSMPriority)
	reg.AddMiddleware("callback_ack", CallbackAck(), CallbackAckPriority)
}
