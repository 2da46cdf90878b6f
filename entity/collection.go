package entity

import "context"

// Collection is an ordered set of entities.
type Collection []*Entity

// IDs returns the primary keys of the collection in order.
func (c Collection) IDs() []string {
	ids := make([]string, 0, len(c))
	for _, e := range c {
		ids = append(ids, e.ID())
	}
	return ids
}

// First returns the first entity, or nil.
func (c Collection) First() *Entity {
	if len(c) == 0 {
		return nil
	}
	return c[0]
}

// Find returns the entity with the given id.
func (c Collection) Find(id string) (*Entity, bool) {
	for _, e := range c {
		if e.ID() == id {
			return e, true
		}
	}
	return nil, false
}

// FilterBy keeps the entities for which keep returns true.
func (c Collection) FilterBy(keep func(*Entity) bool) Collection {
	out := make(Collection, 0, len(c))
	for _, e := range c {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// ToMaps serializes every entity with ToMap.
func (c Collection) ToMaps(ctx context.Context) []map[string]any {
	out := make([]map[string]any, 0, len(c))
	for _, e := range c {
		out = append(out, e.ToMap(ctx))
	}
	return out
}
