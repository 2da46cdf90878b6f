package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/goliatone/go-repository-overlay/translation"
)

// Entity is one record of a registered schema. Translated attributes are
// redirected to the loaded translations; everything else lives in the
// attribute map. Dirty state is the difference between the attribute map
// and the snapshot taken at the last load or save.
type Entity struct {
	schema *Schema
	source translation.Source

	attrs    map[string]any
	original map[string]any

	exists        bool
	forceDeleting bool

	translations       Collection
	translationsLoaded bool
	parent             *Entity

	localesCached  bool
	defaultLocale  string
	fallbackLocale string

	relations map[string]Related
}

// New creates an unsaved entity.
func New(schema *Schema, source translation.Source) *Entity {
	return &Entity{
		schema:   schema,
		source:   source,
		attrs:    map[string]any{},
		original: map[string]any{},
	}
}

// Hydrate builds a persisted entity from a row. The row becomes the
// snapshot, so a freshly hydrated entity is clean.
func Hydrate(schema *Schema, source translation.Source, row map[string]any) *Entity {
	e := New(schema, source)
	maps.Copy(e.attrs, row)
	e.exists = true
	e.SyncOriginal()
	return e
}

func (e *Entity) Schema() *Schema { return e.schema }

// Exists reports whether the entity has a row.
func (e *Entity) Exists() bool { return e.exists }

func (e *Entity) SetExists(exists bool) { e.exists = exists }

// IsForceDeleting reports whether the entity is being removed for good.
func (e *Entity) IsForceDeleting() bool { return e.forceDeleting }

func (e *Entity) SetForceDeleting(force bool) { e.forceDeleting = force }

// ID returns the primary key as a string, empty when unset.
func (e *Entity) ID() string {
	return AsString(e.attrs[e.schema.PrimaryKey])
}

func (e *Entity) SetID(id string) {
	e.attrs[e.schema.PrimaryKey] = id
}

// Raw reads the attribute map without translation redirection.
func (e *Entity) Raw(key string) any {
	return e.attrs[key]
}

// Set writes the attribute map without translation redirection.
func (e *Entity) Set(key string, value any) *Entity {
	e.attrs[key] = value
	return e
}

// Attributes returns a copy of the stored attributes.
func (e *Entity) Attributes() map[string]any {
	return maps.Clone(e.attrs)
}

// Original returns the snapshot value of key.
func (e *Entity) Original(key string) any {
	return e.original[key]
}

// IsTrashed reports whether a soft deleting entity carries a deletion mark.
func (e *Entity) IsTrashed() bool {
	return e.schema.SoftDeletes && !isNil(e.attrs[DeletedAtColumn])
}

// Dirty returns the attributes that differ from the snapshot.
func (e *Entity) Dirty() map[string]any {
	dirty := map[string]any{}
	for k, v := range e.attrs {
		orig, ok := e.original[k]
		if !ok || !sameValue(v, orig) {
			dirty[k] = v
		}
	}
	return dirty
}

// IsDirty reports whether any of keys changed, or any attribute at all when
// no keys are given.
func (e *Entity) IsDirty(keys ...string) bool {
	dirty := e.Dirty()
	if len(keys) == 0 {
		return len(dirty) > 0
	}
	for _, k := range keys {
		if _, ok := dirty[k]; ok {
			return true
		}
	}
	return false
}

// IsDirtyExcept reports whether an attribute outside ignore changed.
func (e *Entity) IsDirtyExcept(ignore ...string) bool {
	for k := range e.Dirty() {
		if !slices.Contains(ignore, k) {
			return true
		}
	}
	return false
}

// SyncOriginal takes a new snapshot of the attribute map.
func (e *Entity) SyncOriginal() {
	e.original = maps.Clone(e.attrs)
}

// Relation returns a loaded relation result. Asking for a relation the
// schema never declared panics.
func (e *Entity) Relation(name string) (Related, bool) {
	e.schema.MustRelation(name)
	r, ok := e.relations[name]
	return r, ok
}

// SetRelation stores a loaded relation result.
func (e *Entity) SetRelation(name string, r Related) {
	e.schema.MustRelation(name)
	if e.relations == nil {
		e.relations = map[string]Related{}
	}
	e.relations[name] = r
}

// UnsetRelation drops a loaded relation so the next access reloads it.
func (e *Entity) UnsetRelation(name string) {
	delete(e.relations, name)
}

// ToMap serializes the entity: stored attributes overlaid with the
// translated attributes of the current locale, fallback allowed.
func (e *Entity) ToMap(ctx context.Context) map[string]any {
	out := maps.Clone(e.attrs)
	if !e.schema.IsTranslatable() {
		return out
	}
	if t := e.Translate(ctx, "", true); t != nil {
		for _, field := range e.schema.Translated {
			out[field] = t.Raw(field)
		}
	}
	return out
}

// ETag is a content fingerprint of the serialized entity.
func (e *Entity) ETag(ctx context.Context) string {
	h := xxhash.New()
	_, _ = h.WriteString(e.schema.Name)
	_, _ = h.Write(e.marshal(ctx))
	return fmt.Sprintf("%016x", h.Sum64())
}

func (e *Entity) String() string {
	return string(e.marshal(context.Background()))
}

func (e *Entity) marshal(ctx context.Context) []byte {
	m := e.ToMap(ctx)
	if b, err := json.Marshal(m); err == nil {
		return b
	}
	// one value json cannot encode must not blank the whole document
	for k, v := range m {
		if _, err := json.Marshal(v); err != nil {
			m[k] = fmt.Sprint(v)
		}
	}
	b, _ := json.Marshal(m)
	return b
}

func (e *Entity) locales() translation.Locales {
	if e.source == nil {
		return translation.Locales{}
	}
	return e.source.Locales()
}

// cachedLocales reads the default and fallback locales once per instance.
func (e *Entity) cachedLocales() (string, string) {
	if !e.localesCached {
		l := e.locales()
		e.defaultLocale = l.Default
		e.fallbackLocale = l.Fallback
		e.localesCached = true
	}
	return e.defaultLocale, e.fallbackLocale
}

func (e *Entity) currentLocale(ctx context.Context) string {
	if l, ok := translation.LocaleFromContext(ctx); ok {
		return l
	}
	return e.locales().Current
}

func (e *Entity) writeLocale(ctx context.Context) string {
	if l, ok := translation.WriteLocaleFromContext(ctx); ok {
		return l
	}
	return e.locales().Write
}
