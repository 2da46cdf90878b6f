package orm

import (
	"context"
	"slices"

	sq "github.com/Masterminds/squirrel"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-repository-overlay/entity"
	"github.com/goliatone/go-repository-overlay/lifecycle"
	"github.com/goliatone/go-repository-overlay/translation"
)

// Save persists e and, for translatable schemas, its dirty translations.
//
// A translatable entity saves its own row first, skipping the write when
// only translations changed. A failed or halted row save returns false and
// leaves every translation untouched. Translations are then saved one by
// one, stopping at the first failure; an entity without any translation
// gets one for the default locale. The saved event fires once, after the
// translations.
func (m *Manager) Save(ctx context.Context, e *entity.Entity) (bool, error) {
	if !e.IsTranslatable() {
		return m.saveModel(ctx, e, true)
	}

	existed := e.Exists()
	if !existed || e.IsDirty() {
		ok, err := m.saveModel(ctx, e, false)
		if err != nil || !ok {
			return false, err
		}
	}
	if existed && !e.TranslationsLoaded() {
		if err := m.mergeStoredTranslations(ctx, e); err != nil {
			return false, err
		}
	}
	return m.saveTranslations(ctx, e)
}

func (m *Manager) saveModel(ctx context.Context, e *entity.Entity, fireSaved bool) (bool, error) {
	if err := m.fire(ctx, lifecycle.Saving, lifecycle.Single(e)); err != nil {
		return halted(err)
	}

	var (
		ok  bool
		err error
	)
	if e.Exists() {
		ok, err = m.performUpdate(ctx, e)
	} else {
		ok, err = m.performInsert(ctx, e)
	}
	if err != nil || !ok {
		return ok, err
	}

	if fireSaved {
		return true, m.fire(ctx, lifecycle.Saved, lifecycle.Single(e))
	}
	return true, nil
}

func (m *Manager) performInsert(ctx context.Context, e *entity.Entity) (bool, error) {
	s := e.Schema()
	if err := m.fire(ctx, lifecycle.Creating, lifecycle.Single(e)); err != nil {
		return halted(err)
	}

	if e.Raw(s.PrimaryKey) == nil {
		e.SetID(m.newID())
	}
	if s.Timestamps {
		now := m.now()
		if e.Raw(entity.CreatedAtColumn) == nil {
			e.Set(entity.CreatedAtColumn, now)
		}
		e.Set(entity.UpdatedAtColumn, now)
	}

	values := persistable(s, e.Attributes())
	columns := sortedKeys(values)
	args := make([]any, 0, len(columns))
	for _, c := range columns {
		args = append(args, values[c])
	}
	text, bindings, err := sq.Insert(s.Table).Columns(columns...).Values(args...).ToSql()
	if err != nil {
		return false, err
	}
	if _, err := m.exec(ctx, text, bindings); err != nil {
		return false, persistenceError(err, "insert", s)
	}

	e.SetExists(true)
	e.SyncOriginal()
	m.logger.DebugContext(ctx, "orm inserted", "schema", s.Name, "id", e.ID())
	return true, m.fire(ctx, lifecycle.Created, lifecycle.Single(e))
}

func (m *Manager) performUpdate(ctx context.Context, e *entity.Entity) (bool, error) {
	s := e.Schema()
	if len(persistable(s, e.Dirty())) == 0 {
		return true, nil
	}
	if err := m.fire(ctx, lifecycle.Updating, lifecycle.Single(e)); err != nil {
		return halted(err)
	}

	dirty := persistable(s, e.Dirty())
	delete(dirty, s.PrimaryKey)
	if s.Timestamps {
		if _, ok := dirty[entity.UpdatedAtColumn]; !ok {
			now := m.now()
			e.Set(entity.UpdatedAtColumn, now)
			dirty[entity.UpdatedAtColumn] = now
		}
	}
	if len(dirty) == 0 {
		return true, nil
	}

	text, args, err := sq.Update(s.Table).SetMap(dirty).Where(m.keyOf(e)).ToSql()
	if err != nil {
		return false, err
	}
	if _, err := m.exec(ctx, text, args); err != nil {
		return false, persistenceError(err, "update", s)
	}

	e.SyncOriginal()
	m.logger.DebugContext(ctx, "orm updated", "schema", s.Name, "id", e.ID())
	return true, m.fire(ctx, lifecycle.Updated, lifecycle.Single(e))
}

// saveTranslations writes the translations of an owner whose row is saved.
func (m *Manager) saveTranslations(ctx context.Context, e *entity.Entity) (bool, error) {
	saved := true
	if len(e.Translations()) == 0 {
		t := e.TranslateOrNew(ctx, m.defaultLocale())
		if _, err := m.saveTranslation(ctx, e, t); err != nil {
			return false, err
		}
	} else {
		for _, t := range e.Translations() {
			if !e.IsTranslationDirty(t) {
				continue
			}
			ok, err := m.saveTranslation(ctx, e, t)
			if err != nil {
				return false, err
			}
			if !ok {
				saved = false
				break
			}
		}
	}

	if err := m.fire(ctx, lifecycle.Saved, lifecycle.Single(e)); err != nil {
		return saved, err
	}
	return saved, nil
}

func (m *Manager) saveTranslation(ctx context.Context, owner, t *entity.Entity) (bool, error) {
	t.Set(owner.Schema().Translation.ForeignKey, owner.Raw(owner.Schema().PrimaryKey))
	return m.saveModel(ctx, t, true)
}

// mergeStoredTranslations loads the stored translations of an owner that
// was saved without them and folds the in-memory ones in. A pending
// translation for a stored locale moves its changes onto the stored row.
func (m *Manager) mergeStoredTranslations(ctx context.Context, e *entity.Entity) error {
	pending := e.Translations()
	if err := m.LoadTranslations(ctx, e); err != nil {
		return err
	}
	localeKey := e.Schema().Translation.LocaleKey
	merged := slices.Clone(e.Translations())
	for _, p := range pending {
		locale := entity.AsString(p.Raw(localeKey))
		i := slices.IndexFunc(merged, func(s *entity.Entity) bool {
			return translation.Equal(entity.AsString(s.Raw(localeKey)), locale)
		})
		if i < 0 {
			merged = append(merged, p)
			continue
		}
		for k, v := range p.Dirty() {
			if k != localeKey && k != p.Schema().PrimaryKey {
				merged[i].Set(k, v)
			}
		}
	}
	e.SetTranslations(merged)
	return nil
}

// Delete removes e: force deleting entities and schemas without soft
// deletes lose the row, others get a deletion mark. The deleting event
// cascades to declared relations first; the deleted event drops the
// translations.
func (m *Manager) Delete(ctx context.Context, e *entity.Entity) (bool, error) {
	s := e.Schema()
	if !e.Exists() {
		return false, nil
	}
	if e.Raw(s.PrimaryKey) == nil {
		return false, goerrors.New("orm: delete "+s.Name+" without a primary key", goerrors.CategoryBadInput)
	}
	if err := m.fire(ctx, lifecycle.Deleting, lifecycle.Single(e)); err != nil {
		return halted(err)
	}

	if e.IsForceDeleting() || !s.SoftDeletes {
		text, args, err := sq.Delete(s.Table).Where(m.keyOf(e)).ToSql()
		if err != nil {
			return false, err
		}
		if _, err := m.exec(ctx, text, args); err != nil {
			return false, persistenceError(err, "delete", s)
		}
		e.SetExists(false)
	} else {
		now := m.now()
		e.Set(entity.DeletedAtColumn, now)
		set := map[string]any{entity.DeletedAtColumn: now}
		if s.Timestamps {
			e.Set(entity.UpdatedAtColumn, now)
			set[entity.UpdatedAtColumn] = now
		}
		if err := m.writeColumns(ctx, e, set, "delete"); err != nil {
			return false, err
		}
	}

	m.logger.DebugContext(ctx, "orm deleted",
		"schema", s.Name,
		"id", e.ID(),
		"force", e.IsForceDeleting() || !s.SoftDeletes,
	)
	return true, m.fire(ctx, lifecycle.Deleted, lifecycle.Single(e))
}

// ForceDelete removes e for good, cascading force deletes.
func (m *Manager) ForceDelete(ctx context.Context, e *entity.Entity) (bool, error) {
	e.SetForceDeleting(true)
	defer e.SetForceDeleting(false)
	return m.Delete(ctx, e)
}

// Restore clears the deletion mark of e and restores its trashed cascade
// relations. Restoring a live entity is a no-op write.
func (m *Manager) Restore(ctx context.Context, e *entity.Entity) (bool, error) {
	s := e.Schema()
	if !s.SoftDeletes {
		return false, goerrors.Wrap(ErrNotTrashable, goerrors.CategoryBadInput, "orm: restore "+s.Name)
	}
	if err := m.fire(ctx, lifecycle.Restoring, lifecycle.Single(e)); err != nil {
		return halted(err)
	}

	e.Set(entity.DeletedAtColumn, nil)
	set := map[string]any{entity.DeletedAtColumn: nil}
	if s.Timestamps {
		now := m.now()
		e.Set(entity.UpdatedAtColumn, now)
		set[entity.UpdatedAtColumn] = now
	}
	if err := m.writeColumns(ctx, e, set, "restore"); err != nil {
		return false, err
	}
	e.SetExists(true)

	m.logger.DebugContext(ctx, "orm restored", "schema", s.Name, "id", e.ID())
	return true, m.fire(ctx, lifecycle.Restored, lifecycle.Single(e))
}

func (m *Manager) writeColumns(ctx context.Context, e *entity.Entity, set map[string]any, op string) error {
	text, args, err := sq.Update(e.Schema().Table).SetMap(set).Where(m.keyOf(e)).ToSql()
	if err != nil {
		return err
	}
	if _, err := m.exec(ctx, text, args); err != nil {
		return persistenceError(err, op, e.Schema())
	}
	e.SyncOriginal()
	return nil
}

// PurgeTranslations deletes every stored translation of e.
func (m *Manager) PurgeTranslations(ctx context.Context, e *entity.Entity) error {
	if !e.IsTranslatable() {
		return nil
	}
	if !e.TranslationsLoaded() {
		if err := m.LoadTranslations(ctx, e); err != nil {
			return err
		}
	}
	for _, t := range e.Translations() {
		if !t.Exists() {
			continue
		}
		if _, err := m.Delete(ctx, t); err != nil {
			return err
		}
	}
	e.SetTranslations(nil)
	return nil
}

// Truncate removes every row of schema, translations included, without
// firing row events.
func (m *Manager) Truncate(ctx context.Context, schema *entity.Schema) error {
	tables := []*entity.Schema{schema}
	if ts := schema.TranslationSchema(); ts != nil {
		tables = append([]*entity.Schema{ts}, tables...)
	}
	for _, s := range tables {
		text, args, err := sq.Delete(s.Table).ToSql()
		if err != nil {
			return err
		}
		if _, err := m.exec(ctx, text, args); err != nil {
			return persistenceError(err, "truncate", s)
		}
	}
	m.FlushCache(ctx, schema)
	return nil
}

func (m *Manager) keyOf(e *entity.Entity) sq.Eq {
	pk := e.Schema().PrimaryKey
	id := e.Raw(pk)
	if id == nil {
		id = e.ID()
	}
	return sq.Eq{pk: id}
}

func (m *Manager) defaultLocale() string {
	if m.locales == nil {
		return ""
	}
	return m.locales.Locales().Default
}

// persistable keeps the attributes that map to columns of s.
func persistable(s *entity.Schema, attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if s.HasColumn(k) {
			out[k] = v
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
