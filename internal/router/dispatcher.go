package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/GPTPipe/internal/messaging"
)

const (
	// DefaultWorkers bounds concurrent event handling.
	DefaultWorkers = 4
	// workerQueueSize is how many events may wait on one worker before dispatch blocks.
	workerQueueSize = 16
)

// DispatcherOpts configures a Dispatcher.
type DispatcherOpts struct {
	Workers int
}

// DispatcherOption modifies DispatcherOpts.
type DispatcherOption func(*DispatcherOpts)

// WithWorkers sets the number of concurrently handled events.
func WithWorkers(n int) DispatcherOption {
	return func(o *DispatcherOpts) {
		o.Workers = n
	}
}

// Dispatcher feeds transport events through a Pipeline. Events are sharded by user onto
// a fixed set of workers, so one user's events are handled one at a time in arrival order
// while different users proceed concurrently.
type Dispatcher struct {
	pipeline *Pipeline
	svc      messaging.Service
	workers  int
}

// NewDispatcher creates a Dispatcher reading events from svc.
func NewDispatcher(p *Pipeline, svc messaging.Service, opts ...DispatcherOption) *Dispatcher {
	o := DispatcherOpts{Workers: DefaultWorkers}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	return &Dispatcher{pipeline: p, svc: svc, workers: o.Workers}
}

// shard picks the worker owning the event's user, falling back to the chat.
func (d *Dispatcher) shard(ev messaging.Event) int {
	key := ev.From.ID
	if key == 0 {
		key = ev.ChatID
	}
	return int(uint64(key) % uint64(d.workers))
}

// Run handles events until ctx is cancelled or the event channel closes, then waits for
// the workers to drain. Events still queued after cancellation are dropped.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher starting event processing", "workers", d.workers)
	defer slog.Info("Dispatcher stopped event processing")

	var wg sync.WaitGroup
	defer wg.Wait()

	queues := make([]chan messaging.Event, d.workers)
	for i := range queues {
		queues[i] = make(chan messaging.Event, workerQueueSize)
		wg.Add(1)
		go func(q <-chan messaging.Event) {
			defer wg.Done()
			for ev := range q {
				if ctx.Err() != nil {
					continue
				}
				d.pipeline.Handle(ctx, ev)
			}
		}(queues[i])
	}
	defer func() {
		for _, q := range queues {
			close(q)
		}
	}()

	events := d.svc.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				slog.Debug("Dispatcher events channel closed")
				return
			}
			select {
			case queues[d.shard(ev)] <- ev:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			slog.Debug("Dispatcher stopping due to context cancellation")
			return
		}
	}
}
