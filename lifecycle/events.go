package lifecycle

import "github.com/goliatone/go-repository-overlay/entity"

// Event names a lifecycle transition.
type Event string

const (
	Creating         Event = "creating"
	Created          Event = "created"
	Updating         Event = "updating"
	Updated          Event = "updated"
	Saving           Event = "saving"
	Saved            Event = "saved"
	Deleting         Event = "deleting"
	Deleted          Event = "deleted"
	Restoring        Event = "restoring"
	Restored         Event = "restored"
	UpdatingMultiple Event = "updatingMultiple"
	UpdatedMultiple  Event = "updatedMultiple"
	DeletingMultiple Event = "deletingMultiple"
	DeletedMultiple  Event = "deletedMultiple"
)

// IsPre reports whether hooks for e run before the operation and may halt it.
func (e Event) IsPre() bool {
	switch e {
	case Creating, Updating, Saving, Deleting, Restoring, UpdatingMultiple, DeletingMultiple:
		return true
	}
	return false
}

// Subject is what hooks receive. Single row events set Entity; bulk events
// set Entities (the rows matched before the statement ran) and Affected.
type Subject struct {
	Schema   *entity.Schema
	Entity   *entity.Entity
	Entities entity.Collection
	Affected int64
}

// Single builds the subject of a single row event.
func Single(e *entity.Entity) *Subject {
	return &Subject{Schema: e.Schema(), Entity: e}
}

// Bulk builds the subject of a bulk statement.
func Bulk(schema *entity.Schema, matched entity.Collection) *Subject {
	return &Subject{Schema: schema, Entities: matched}
}

// Namespace is the cache namespace the subject belongs to.
func (s *Subject) Namespace() string {
	return s.Schema.Namespace
}

// Notification is published on the bus after a transition completes.
type Notification interface {
	Name() string
	Model() *entity.Entity
}

type ModelWasCreated struct{ Entity *entity.Entity }

func (ModelWasCreated) Name() string { return "model.created" }
func (n ModelWasCreated) Model() *entity.Entity { return n.Entity }

type ModelWasSaved struct{ Entity *entity.Entity }

func (ModelWasSaved) Name() string { return "model.saved" }
func (n ModelWasSaved) Model() *entity.Entity { return n.Entity }

type ModelWasUpdated struct{ Entity *entity.Entity }

func (ModelWasUpdated) Name() string { return "model.updated" }
func (n ModelWasUpdated) Model() *entity.Entity { return n.Entity }

type ModelWasDeleted struct{ Entity *entity.Entity }

func (ModelWasDeleted) Name() string { return "model.deleted" }
func (n ModelWasDeleted) Model() *entity.Entity { return n.Entity }

type ModelWasRestored struct{ Entity *entity.Entity }

func (ModelWasRestored) Name() string { return "model.restored" }
func (n ModelWasRestored) Model() *entity.Entity { return n.Entity }

// ModelsWereUpdated is published once per bulk update statement. Model
// returns an empty instance of the updated type.
type ModelsWereUpdated struct {
	Prototype *entity.Entity
	Entities  entity.Collection
	Affected  int64
}

func (ModelsWereUpdated) Name() string { return "models.updated" }
func (n ModelsWereUpdated) Model() *entity.Entity { return n.Prototype }
func (n ModelsWereUpdated) Models() entity.Collection { return n.Entities }

// ModelsWereDeleted is published once per bulk delete statement.
type ModelsWereDeleted struct {
	Prototype *entity.Entity
	Entities  entity.Collection
	Affected  int64
}

func (ModelsWereDeleted) Name() string { return "models.deleted" }
func (n ModelsWereDeleted) Model() *entity.Entity { return n.Prototype }
func (n ModelsWereDeleted) Models() entity.Collection { return n.Entities }
