package entity

import (
	"fmt"
	"sort"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry holds the registered schemas by name.
type Registry struct {
	schemas *xsync.MapOf[string, *Schema]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: xsync.NewMapOf[string, *Schema]()}
}

// Register fills the defaults of s, checks it and stores it. The returned
// pointer is the schema entities of this type share.
func (r *Registry) Register(s Schema) (*Schema, error) {
	sc := &s
	sc.normalize()
	if err := sc.validate(); err != nil {
		return nil, err
	}
	if _, loaded := r.schemas.LoadOrStore(sc.Name, sc); loaded {
		return nil, goerrors.New(fmt.Sprintf("schema %q already registered", sc.Name), goerrors.CategoryConflict)
	}
	return sc, nil
}

// MustRegister is Register for package level declarations.
func (r *Registry) MustRegister(s Schema) *Schema {
	sc, err := r.Register(s)
	if err != nil {
		panic(err)
	}
	return sc
}

// Get returns the schema registered under name.
func (r *Registry) Get(name string) (*Schema, bool) {
	return r.schemas.Load(name)
}

// Lookup is Get with an error carrying ErrUnknownSchema.
func (r *Registry) Lookup(name string) (*Schema, error) {
	s, ok := r.schemas.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
	}
	return s, nil
}

// Schemas returns every registered schema sorted by name.
func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, 0, r.schemas.Size())
	r.schemas.Range(func(_ string, s *Schema) bool {
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks references between schemas: every relation without a
// resolver must target a registered schema. Call it once all schemas are in.
func (r *Registry) Validate() error {
	var fields goerrors.ValidationErrors
	for _, s := range r.Schemas() {
		names := make([]string, 0, len(s.Relations))
		for name := range s.Relations {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			rel := s.Relations[name]
			if rel.Resolve != nil {
				continue
			}
			if _, ok := r.schemas.Load(rel.Target); !ok {
				fields = append(fields, goerrors.FieldError{
					Field:   s.Name + "." + name,
					Message: fmt.Sprintf("target %q is not registered", rel.Target),
				})
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return goerrors.NewValidation("unresolved relations", fields...)
}
