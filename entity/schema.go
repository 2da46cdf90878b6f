package entity

import (
	"fmt"
	"slices"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-repository-overlay/internal/naming"
)

const (
	DefaultPrimaryKey = "id"
	DefaultLocaleKey  = "locale"

	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
	DeletedAtColumn = "deleted_at"
)

// TranslationSchema describes the satellite table holding translated values.
type TranslationSchema struct {
	Table      string
	ForeignKey string
	LocaleKey  string
}

// Schema declares an entity type. Register it with a Registry before use;
// registration fills the defaults and checks the declaration.
type Schema struct {
	Name       string
	Table      string
	PrimaryKey string

	// Attributes are the columns stored on Table, excluding the primary key
	// and the timestamp columns.
	Attributes []string
	// Translated attributes live on the translation table. They must not
	// overlap Attributes.
	Translated  []string
	Translation *TranslationSchema

	SoftDeletes bool
	Timestamps  bool

	// Cascades names the relations deletes and restores propagate to.
	Cascades  []string
	Relations map[string]Relation

	Fillable []string
	Guarded  []string

	// Namespace is the cache namespace. Defaults to Table.
	Namespace string

	translationSchema *Schema
	owner             *Schema
}

func (s *Schema) normalize() {
	if s.Table == "" {
		s.Table = naming.TableName(s.Name)
	}
	if s.PrimaryKey == "" {
		s.PrimaryKey = DefaultPrimaryKey
	}
	if s.Namespace == "" {
		s.Namespace = s.Table
	}
	if s.Translation == nil {
		return
	}

	t := *s.Translation
	if t.Table == "" {
		t.Table = naming.ToSnake(s.Name) + "_translations"
	}
	if t.ForeignKey == "" {
		t.ForeignKey = naming.ForeignKey(s.Name)
	}
	if t.LocaleKey == "" {
		t.LocaleKey = DefaultLocaleKey
	}
	s.Translation = &t

	attrs := make([]string, 0, len(s.Translated)+2)
	attrs = append(attrs, t.ForeignKey, t.LocaleKey)
	attrs = append(attrs, s.Translated...)
	s.translationSchema = &Schema{
		Name:       s.Name + "Translation",
		Table:      t.Table,
		PrimaryKey: DefaultPrimaryKey,
		Attributes: attrs,
		Timestamps: s.Timestamps,
		Namespace:  t.Table,
		owner:      s,
	}
}

func (s *Schema) validate() error {
	var fields goerrors.ValidationErrors
	add := func(field, format string, args ...any) {
		fields = append(fields, goerrors.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if s.Name == "" {
		add("Name", "is required")
	}
	if s.Translation != nil && len(s.Translated) == 0 {
		add("Translated", "a translation table needs translated attributes")
	}
	if s.Translation == nil && len(s.Translated) > 0 {
		add("Translation", "translated attributes need a translation table")
	}
	for _, name := range s.Translated {
		if slices.Contains(s.Attributes, name) {
			add("Translated", "%q is also a stored attribute", name)
		}
	}
	for _, name := range s.Cascades {
		if _, ok := s.Relations[name]; !ok {
			add("Cascades", "%q is not a declared relation", name)
		}
	}
	for name, rel := range s.Relations {
		if rel.Target == "" && rel.Resolve == nil {
			add("Relations", "%q needs a target or a resolver", name)
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return goerrors.NewValidation(fmt.Sprintf("invalid schema %q", s.Name), fields...)
}

// IsTranslatable reports whether the schema has a translation table.
func (s *Schema) IsTranslatable() bool {
	return s.Translation != nil
}

// IsTranslatedAttribute reports whether key is stored on the translation table.
func (s *Schema) IsTranslatedAttribute(key string) bool {
	return s.IsTranslatable() && slices.Contains(s.Translated, key)
}

// TranslatedAttributes returns the translated attribute names.
func (s *Schema) TranslatedAttributes() []string {
	return slices.Clone(s.Translated)
}

// TranslationSchema returns the derived schema of the translation table, or
// nil when the schema is not translatable.
func (s *Schema) TranslationSchema() *Schema {
	return s.translationSchema
}

// Owner returns the owning schema of a derived translation schema.
func (s *Schema) Owner() *Schema {
	return s.owner
}

// LocaleKey is the locale column of a translation schema, or of the
// translation table of an owner schema.
func (s *Schema) LocaleKey() string {
	switch {
	case s.owner != nil:
		return s.owner.Translation.LocaleKey
	case s.Translation != nil:
		return s.Translation.LocaleKey
	default:
		return ""
	}
}

// Columns lists every persisted column in a stable order.
func (s *Schema) Columns() []string {
	cols := []string{s.PrimaryKey}
	for _, a := range s.Attributes {
		if !slices.Contains(cols, a) {
			cols = append(cols, a)
		}
	}
	if s.Timestamps {
		cols = append(cols, CreatedAtColumn, UpdatedAtColumn)
	}
	if s.SoftDeletes {
		cols = append(cols, DeletedAtColumn)
	}
	return cols
}

// HasColumn reports whether key is one of Columns.
func (s *Schema) HasColumn(key string) bool {
	return slices.Contains(s.Columns(), key)
}

// Relation returns a declared relation with its keys defaulted.
func (s *Schema) Relation(name string) (Relation, bool) {
	rel, ok := s.Relations[name]
	if !ok {
		return Relation{}, false
	}
	switch rel.Kind {
	case BelongsTo:
		if rel.ForeignKey == "" {
			rel.ForeignKey = naming.ForeignKey(rel.Target)
		}
	default:
		if rel.ForeignKey == "" {
			rel.ForeignKey = naming.ForeignKey(s.Name)
		}
		if rel.LocalKey == "" {
			rel.LocalKey = s.PrimaryKey
		}
	}
	return rel, true
}

// MustRelation is Relation for names the caller relies on being declared.
// An undeclared name panics.
func (s *Schema) MustRelation(name string) Relation {
	rel, ok := s.Relation(name)
	if !ok {
		invariantViolation("%s has no relation %q", s.Name, name)
	}
	return rel
}

// IsFillable applies the mass assignment policy to key.
func (s *Schema) IsFillable(key string) bool {
	if slices.Contains(s.Fillable, key) {
		return true
	}
	if slices.Contains(s.Guarded, key) || slices.Contains(s.Guarded, "*") {
		return false
	}
	if len(s.Fillable) > 0 {
		return false
	}
	return len(key) > 0 && key[0] != '_'
}
