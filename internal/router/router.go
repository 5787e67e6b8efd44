package router

import (
	"slices"

	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
)

// HandlerFunc handles one inbound event.
type HandlerFunc func(c *Context) error

// Middleware wraps the rest of the dispatch chain.
type Middleware func(next HandlerFunc) HandlerFunc

// Filter is a route predicate. Filters must not have side effects other than setting c.Callback.
type Filter func(c *Context) bool

// Route binds filters to a handler. All filters must pass.
type Route struct {
	Name    string
	Filters []Filter
	Handler HandlerFunc
}

// Router is a named handler group. Routes are tried in registration order.
type Router struct {
	name   string
	routes []Route
}

// New creates an empty handler group.
func New(name string) *Router {
	return &Router{name: name}
}

// Name returns the handler group name.
func (r *Router) Name() string { return r.name }

// Routes returns a copy of the route list.
func (r *Router) Routes() []Route { return slices.Clone(r.routes) }

// Handle adds a route matching every filter.
func (r *Router) Handle(name string, h HandlerFunc, filters ...Filter) *Router {
	r.routes = append(r.routes, Route{Name: name, Filters: filters, Handler: h})
	return r
}

// Command routes the bot command "/name".
func (r *Router) Command(name string, h HandlerFunc, filters ...Filter) *Router {
	return r.Handle("/"+name, h, append([]Filter{IsCommand(name)}, filters...)...)
}

// Callback routes button presses whose token m accepts.
func (r *Router) Callback(name string, m callback.Matcher, h HandlerFunc, filters ...Filter) *Router {
	return r.Handle(name, h, append([]Filter{OnCallback(m)}, filters...)...)
}

// Message routes non-command messages of the given kinds while the FSM is in one of states.
func (r *Router) Message(name string, kinds []messaging.EventKind, states []flow.State, h HandlerFunc) *Router {
	filters := []Filter{OfKind(kinds...)}
	if len(states) > 0 {
		filters = append(filters, InState(states...))
	}
	return r.Handle(name, h, filters...)
}

// match returns the first route whose filters all pass.
func (r *Router) match(c *Context) (Route, bool) {
	for _, rt := range r.routes {
		c.Callback = callback.Data{}
		if rt.matches(c) {
			return rt, true
		}
	}
	c.Callback = callback.Data{}
	return Route{}, false
}

func (rt Route) matches(c *Context) bool {
	for _, f := range rt.Filters {
		if !f(c) {
			return false
		}
	}
	return true
}

// IsCommand matches the bot command name.
func IsCommand(name string) Filter {
	return func(c *Context) bool {
		return c.Event.Kind == messaging.EventCommand && c.Event.Command == name
	}
}

// OnCallback matches callback tokens accepted by m and stores the decoded data on the context.
// Undecodable tokens fall through.
func OnCallback(m callback.Matcher) Filter {
	return func(c *Context) bool {
		if c.Event.Kind != messaging.EventCallback || c.Event.Callback == nil {
			return false
		}
		d, ok := m(c.Event.Callback.Data)
		if ok {
			c.Callback = d
		}
		return ok
	}
}

// OfKind matches events of the given kinds.
func OfKind(kinds ...messaging.EventKind) Filter {
	return func(c *Context) bool {
		return slices.Contains(kinds, c.Event.Kind)
	}
}

// InState matches when the FSM node is one of states.
func InState(states ...flow.State) Filter {
	return func(c *Context) bool {
		return slices.Contains(states, c.State)
	}
}

// Any matches every event.
func Any() Filter {
	return func(*Context) bool { return true }
}
