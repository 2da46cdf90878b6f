package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/goliatone/go-repository-overlay/cascade"
	"github.com/goliatone/go-repository-overlay/entity"
)

// ErrHalt is returned by a pre-event hook to cancel the operation. The
// operation then reports false without an error.
var ErrHalt = errors.New("lifecycle: halted")

// Hook reacts to a lifecycle event.
type Hook func(ctx context.Context, s *Subject) error

// Invalidator drops every cached result of a namespace.
type Invalidator interface {
	InvalidateAll(ctx context.Context, namespace string)
}

// Cascader propagates a delete or restore to declared relations.
type Cascader interface {
	Propagate(ctx context.Context, root *entity.Entity, mode cascade.Mode) error
}

// TranslationPurger removes the translation rows of an entity.
type TranslationPurger interface {
	PurgeTranslations(ctx context.Context, e *entity.Entity) error
}

// Observer binds the built-in reactions and user hooks to lifecycle events.
//
// Built-in reactions:
//
//	created          invalidate, publish ModelWasCreated
//	saved            invalidate, publish ModelWasSaved
//	updated          invalidate, publish ModelWasUpdated
//	updatedMultiple  invalidate, publish ModelsWereUpdated
//	deleting         cascade delete
//	deleted          invalidate, purge translations, publish ModelWasDeleted
//	deletedMultiple  invalidate, publish ModelsWereDeleted
//	restored         invalidate, cascade restore, publish ModelWasRestored
type Observer struct {
	mu    sync.RWMutex
	hooks map[Event][]Hook

	cache    Invalidator
	cascader Cascader
	purger   TranslationPurger
	bus      Bus
	logger   *slog.Logger
}

// Option configures an Observer.
type Option func(*Observer)

func WithInvalidator(i Invalidator) Option {
	return func(o *Observer) { o.cache = i }
}

func WithCascader(c Cascader) Option {
	return func(o *Observer) { o.cascader = c }
}

func WithTranslationPurger(p TranslationPurger) Option {
	return func(o *Observer) { o.purger = p }
}

func WithBus(b Bus) Option {
	return func(o *Observer) { o.bus = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Observer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewObserver creates an observer. Collaborators left unset are skipped.
func NewObserver(opts ...Option) *Observer {
	o := &Observer{hooks: map[Event][]Hook{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetCascader wires the cascader after construction, for the common case
// where the cascader itself needs the persistence layer built on o.
func (o *Observer) SetCascader(c Cascader) { o.cascader = c }

// SetTranslationPurger is SetCascader for the translation purger.
func (o *Observer) SetTranslationPurger(p TranslationPurger) { o.purger = p }

// On registers a user hook for ev.
func (o *Observer) On(ev Event, h Hook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks[ev] = append(o.hooks[ev], h)
}

// Fire runs ev. Pre-events run user hooks first so they can halt with
// ErrHalt before any built-in reaction. Post-events run the built-in
// reactions first so invalidation never depends on user code.
func (o *Observer) Fire(ctx context.Context, ev Event, s *Subject) error {
	if ev.IsPre() {
		if err := o.runHooks(ctx, ev, s); err != nil {
			return err
		}
		return o.react(ctx, ev, s)
	}
	if err := o.react(ctx, ev, s); err != nil {
		return err
	}
	return o.runHooks(ctx, ev, s)
}

func (o *Observer) runHooks(ctx context.Context, ev Event, s *Subject) error {
	o.mu.RLock()
	hooks := append([]Hook(nil), o.hooks[ev]...)
	o.mu.RUnlock()

	for _, h := range hooks {
		if err := h(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (o *Observer) react(ctx context.Context, ev Event, s *Subject) error {
	switch ev {
	case Created:
		o.invalidate(ctx, s)
		o.publish(ctx, ModelWasCreated{Entity: s.Entity})
	case Saved:
		o.invalidate(ctx, s)
		o.publish(ctx, ModelWasSaved{Entity: s.Entity})
	case Updated:
		o.invalidate(ctx, s)
		o.publish(ctx, ModelWasUpdated{Entity: s.Entity})
	case UpdatedMultiple:
		o.invalidate(ctx, s)
		o.publish(ctx, ModelsWereUpdated{Prototype: entity.New(s.Schema, nil), Entities: s.Entities, Affected: s.Affected})
	case Deleting:
		return o.propagate(ctx, s, cascade.ModeDelete)
	case Deleted:
		o.invalidate(ctx, s)
		err := o.purge(ctx, s)
		o.publish(ctx, ModelWasDeleted{Entity: s.Entity})
		return err
	case DeletedMultiple:
		o.invalidate(ctx, s)
		o.publish(ctx, ModelsWereDeleted{Prototype: entity.New(s.Schema, nil), Entities: s.Entities, Affected: s.Affected})
	case Restored:
		o.invalidate(ctx, s)
		err := o.propagate(ctx, s, cascade.ModeRestore)
		o.publish(ctx, ModelWasRestored{Entity: s.Entity})
		return err
	}
	return nil
}

func (o *Observer) invalidate(ctx context.Context, s *Subject) {
	if o.cache == nil || s.Schema == nil {
		return
	}
	o.cache.InvalidateAll(ctx, s.Namespace())
}

// propagate starts a cascade unless ctx already belongs to one; the running
// engine walks the whole graph itself.
func (o *Observer) propagate(ctx context.Context, s *Subject, mode cascade.Mode) error {
	if o.cascader == nil || s.Entity == nil || cascade.InProgress(ctx) {
		return nil
	}
	return o.cascader.Propagate(ctx, s.Entity, mode)
}

func (o *Observer) purge(ctx context.Context, s *Subject) error {
	if o.purger == nil || s.Entity == nil || !s.Entity.IsTranslatable() {
		return nil
	}
	return o.purger.PurgeTranslations(ctx, s.Entity)
}

func (o *Observer) publish(ctx context.Context, n Notification) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, n); err != nil {
		o.logger.WarnContext(ctx, "lifecycle publish failed", "event", n.Name(), "error", err)
	}
}
