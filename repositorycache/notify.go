package repositorycache

import (
	"context"
	"fmt"
	"reflect"

	"github.com/goliatone/go-repository-overlay/entity"
	"github.com/goliatone/go-repository-overlay/lifecycle"
)

// writeKind is the notification a successful write publishes.
type writeKind string

const (
	created     writeKind = "model.created"
	updated     writeKind = "model.updated"
	saved       writeKind = "model.saved"
	deleted     writeKind = "model.deleted"
	createdMany writeKind = "models.created"
	updatedMany writeKind = "models.updated"
	deletedMany writeKind = "models.deleted"
)

// RecordNotification is published after a write through a CachedRepository.
// Single record writes carry one record. The *Many variants publish once
// per call with every record the base returned, criteria deletes carry none.
type RecordNotification[T any] struct {
	Event     string
	Namespace string
	Records   []T

	// Prototype is an entity of the bound schema with the primary key of
	// the first record, nil when the repository has no schema.
	Prototype *entity.Entity
}

var _ lifecycle.Notification = RecordNotification[any]{}

func (n RecordNotification[T]) Name() string { return n.Event }

func (n RecordNotification[T]) Model() *entity.Entity { return n.Prototype }

// written drops the cached reads the write may have changed and publishes
// the notification. Bus failures are logged, the write already happened.
func (c *CachedRepository[T]) written(ctx context.Context, kind writeKind, records ...T) {
	c.cache.InvalidateAll(ctx, c.namespace)
	for _, ns := range tagsFromContext(ctx) {
		if ns != c.namespace {
			c.cache.InvalidateAll(ctx, ns)
		}
	}

	if c.bus == nil {
		return
	}
	n := RecordNotification[T]{
		Event:     string(kind),
		Namespace: c.namespace,
		Records:   records,
		Prototype: c.prototype(records),
	}
	if err := c.bus.Publish(ctx, n); err != nil {
		c.logger.WarnContext(ctx, "repository notification failed",
			"namespace", c.namespace,
			"event", n.Event,
			"error", err,
		)
	}
}

func (c *CachedRepository[T]) prototype(records []T) *entity.Entity {
	if c.schema == nil {
		return nil
	}
	e := entity.New(c.schema, nil)
	if len(records) > 0 {
		if id, err := extractID(records[0]); err == nil {
			e.SetID(id)
		}
	}
	return e
}

// extractID reads the ID field of a struct record or pointer to one.
func extractID(record any) (string, error) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", fmt.Errorf("nil record")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("record of kind %s has no ID field", v.Kind())
	}
	for _, name := range []string{"ID", "Id"} {
		field := v.FieldByName(name)
		if field.IsValid() && field.CanInterface() {
			return fmt.Sprint(field.Interface()), nil
		}
	}
	return "", fmt.Errorf("no ID field found in %s", v.Type())
}
