package entity

import "context"

// RelationKind is the shape of a declared relation.
type RelationKind int

const (
	// HasMany: target rows carry ForeignKey pointing at the owner.
	HasMany RelationKind = iota
	// HasOne is HasMany limited to the first row.
	HasOne
	// BelongsTo: the owner carries ForeignKey pointing at the target.
	BelongsTo
)

func (k RelationKind) String() string {
	switch k {
	case HasMany:
		return "has_many"
	case HasOne:
		return "has_one"
	case BelongsTo:
		return "belongs_to"
	default:
		return "unknown"
	}
}

// Scope restricts which rows of a soft deleting target a relation returns.
type Scope int

const (
	ScopeDefault Scope = iota
	ScopeWithTrashed
	ScopeOnlyTrashed
)

func (s Scope) String() string {
	switch s {
	case ScopeWithTrashed:
		return "with_trashed"
	case ScopeOnlyTrashed:
		return "only_trashed"
	default:
		return "default"
	}
}

// Resolver loads a relation by hand instead of through the declared keys.
type Resolver func(ctx context.Context, owner *Entity, scope Scope) (Related, error)

// Relation declares how an owner reaches its related entities. Declared
// relations are looked up by name from a schema's Relations map, so cascades
// never depend on runtime method lookup.
type Relation struct {
	Kind   RelationKind
	Target string

	// ForeignKey defaults to <owner>_id for HasMany/HasOne and to
	// <target>_id for BelongsTo.
	ForeignKey string
	// LocalKey defaults to the owner primary key (HasMany/HasOne). For
	// BelongsTo an empty LocalKey means the target primary key.
	LocalKey string

	Resolve Resolver
}

type relatedKind int

const (
	relatedNone relatedKind = iota
	relatedOne
	relatedMany
)

// Related is the result of evaluating a relation: nothing, one entity or a
// collection of entities.
type Related struct {
	kind relatedKind
	one  *Entity
	many Collection
}

// None is a relation that produced no usable result.
func None() Related { return Related{} }

// One wraps a single related entity. A nil entity yields None.
func One(e *Entity) Related {
	if e == nil {
		return None()
	}
	return Related{kind: relatedOne, one: e}
}

// Many wraps a collection of related entities.
func Many(items Collection) Related {
	return Related{kind: relatedMany, many: items}
}

func (r Related) IsNone() bool { return r.kind == relatedNone }
func (r Related) IsOne() bool  { return r.kind == relatedOne }
func (r Related) IsMany() bool { return r.kind == relatedMany }

// Single returns the wrapped entity of a One result.
func (r Related) Single() (*Entity, bool) {
	return r.one, r.kind == relatedOne
}

// Entities flattens the result: empty for None, one element for One.
func (r Related) Entities() Collection {
	switch r.kind {
	case relatedOne:
		return Collection{r.one}
	case relatedMany:
		return r.many
	default:
		return nil
	}
}
