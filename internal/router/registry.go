package router

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// DefaultPriority is used by modules that do not declare one.
const DefaultPriority = 50

// ErrNoExport is recorded for a module that provides neither a Router nor a Middleware.
var ErrNoExport = errors.New("module exports no router or middleware")

// RouterProvider is implemented by handler-group modules.
type RouterProvider interface {
	Router() *Router
}

// MiddlewareProvider is implemented by middleware modules.
type MiddlewareProvider interface {
	Middleware() Middleware
}

// Prioritized lets a module declare its priority. Lower runs and registers first.
type Prioritized interface {
	Priority() int
}

// RouterEntry is a registered handler group.
type RouterEntry struct {
	Module   string
	Router   *Router
	Priority int
	seq      int
}

// MiddlewareEntry is a registered middleware.
type MiddlewareEntry struct {
	Module     string
	Middleware Middleware
	Priority   int
	seq        int
}

// Registry is the explicit registration list of routers and middlewares.
// Ties in priority are broken by registration order.
type Registry struct {
	routers     []RouterEntry
	middlewares []MiddlewareEntry
	failures    []error
	seq         int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddRouter registers a handler group.
func (r *Registry) AddRouter(module string, rt *Router, priority int) {
	if rt == nil {
		r.fail(module, errors.New("nil router"))
		return
	}
	r.seq++
	r.routers = append(r.routers, RouterEntry{Module: module, Router: rt, Priority: priority, seq: r.seq})
	slog.Debug("Registry router added", "module", module, "router", rt.Name(), "priority", priority)
}

// AddMiddleware registers a middleware.
func (r *Registry) AddMiddleware(module string, mw Middleware, priority int) {
	if mw == nil {
		r.fail(module, errors.New("nil middleware"))
		return
	}
	r.seq++
	r.middlewares = append(r.middlewares, MiddlewareEntry{Module: module, Middleware: mw, Priority: priority, seq: r.seq})
	slog.Debug("Registry middleware added", "module", module, "priority", priority)
}

// Include registers whatever module exports: a Router, a Middleware or both, at its declared
// priority or DefaultPriority. A module exporting neither is skipped and recorded as a failure.
func (r *Registry) Include(name string, module any) {
	priority := DefaultPriority
	if p, ok := module.(Prioritized); ok {
		priority = p.Priority()
	}
	found := false
	if rp, ok := module.(RouterProvider); ok {
		r.AddRouter(name, rp.Router(), priority)
		found = true
	}
	if mp, ok := module.(MiddlewareProvider); ok {
		r.AddMiddleware(name, mp.Middleware(), priority)
		found = true
	}
	if !found {
		r.fail(name, ErrNoExport)
	}
}

func (r *Registry) fail(module string, err error) {
	err = fmt.Errorf("module %s: %w", module, err)
	slog.Warn("Registry skipped module", "module", module, "error", err)
	r.failures = append(r.failures, err)
}

// Failures returns the modules that were skipped.
func (r *Registry) Failures() []error {
	return append([]error(nil), r.failures...)
}

// Routers returns the handler groups in match order.
func (r *Registry) Routers() []RouterEntry {
	out := append([]RouterEntry(nil), r.routers...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Middlewares returns the middlewares outermost first.
func (r *Registry) Middlewares() []MiddlewareEntry {
	out := append([]MiddlewareEntry(nil), r.middlewares...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}
