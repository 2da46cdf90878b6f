package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Bus publishes notifications to listeners outside the persistence layer.
type Bus interface {
	Publish(ctx context.Context, n Notification) error
}

// Listener receives published notifications.
type Listener func(ctx context.Context, n Notification) error

// Dispatcher is an in-process Bus. Listeners run synchronously in
// subscription order.
type Dispatcher struct {
	mu     sync.RWMutex
	byName map[string][]Listener
	all    []Listener
}

var _ Bus = (*Dispatcher)(nil)

func NewDispatcher() *Dispatcher {
	return &Dispatcher{byName: map[string][]Listener{}}
}

// Subscribe registers l for notifications called name, "model.created" for
// example.
func (d *Dispatcher) Subscribe(name string, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byName[name] = append(d.byName[name], l)
}

// SubscribeAll registers l for every notification.
func (d *Dispatcher) SubscribeAll(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, l)
}

// Publish runs every matching listener and joins their errors. A failing
// listener does not stop the ones after it.
func (d *Dispatcher) Publish(ctx context.Context, n Notification) error {
	d.mu.RLock()
	listeners := make([]Listener, 0, len(d.all)+len(d.byName[n.Name()]))
	listeners = append(listeners, d.byName[n.Name()]...)
	listeners = append(listeners, d.all...)
	d.mu.RUnlock()

	var errs []error
	for _, l := range listeners {
		if err := l(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("listener for %s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
