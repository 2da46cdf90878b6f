package entity

import (
	"context"

	"github.com/goliatone/go-repository-overlay/translation"
)

// Source returns the locale source the entity was created with.
func (e *Entity) Source() translation.Source { return e.source }

// IsTranslatable reports whether the entity's schema has translations.
func (e *Entity) IsTranslatable() bool { return e.schema.IsTranslatable() }

// IsTranslatedAttribute reports whether key is redirected to translations.
func (e *Entity) IsTranslatedAttribute(key string) bool {
	return e.schema.IsTranslatedAttribute(key)
}

// TranslatedAttributes returns the translated attribute names.
func (e *Entity) TranslatedAttributes() []string {
	return e.schema.TranslatedAttributes()
}

// Parent returns the owner of a translation entity.
func (e *Entity) Parent() *Entity { return e.parent }

// Translations returns the loaded translations.
func (e *Entity) Translations() Collection { return e.translations }

// TranslationsLoaded reports whether translations were loaded or set.
func (e *Entity) TranslationsLoaded() bool { return e.translationsLoaded }

// SetTranslations replaces the loaded translations and points each one at
// the entity.
func (e *Entity) SetTranslations(ts Collection) {
	for _, t := range ts {
		t.parent = e
	}
	e.translations = ts
	e.translationsLoaded = true
}

// ClearTranslations forgets the loaded translations.
func (e *Entity) ClearTranslations() {
	e.translations = nil
	e.translationsLoaded = false
}

func (e *Entity) localeOf(t *Entity) string {
	return AsString(t.Raw(e.schema.LocaleKey()))
}

// Translate resolves the translation for locale, the current locale when
// empty. With fallback the default locale and then the fallback locale are
// tried. Nil means nothing resolved.
func (e *Entity) Translate(ctx context.Context, locale string, withFallback bool) *Entity {
	if !e.IsTranslatable() {
		return nil
	}
	if locale == "" {
		locale = e.currentLocale(ctx)
	}
	def, fb := e.cachedLocales()
	chain := translation.Chain{Requested: locale, Default: def, Fallback: fb}

	t, ok := translation.Resolve(e.translations, e.localeOf, chain, withFallback)
	if !ok {
		return nil
	}
	t.parent = e
	return t
}

// TranslateOrDefault resolves locale, the default locale when empty, with
// fallback. When nothing resolves the entity itself is returned.
func (e *Entity) TranslateOrDefault(ctx context.Context, locale string) *Entity {
	if locale == "" {
		locale, _ = e.cachedLocales()
	}
	if t := e.Translate(ctx, locale, true); t != nil {
		return t
	}
	return e
}

// TranslateOrNew returns the translation for locale, creating and attaching
// an empty one when it is missing. Other locales are left alone.
func (e *Entity) TranslateOrNew(ctx context.Context, locale string) *Entity {
	if t := e.Translate(ctx, locale, false); t != nil {
		return t
	}
	if locale == "" {
		locale = e.currentLocale(ctx)
	}
	return e.NewTranslation(locale)
}

// NewTranslation attaches a fresh translation for locale.
func (e *Entity) NewTranslation(locale string) *Entity {
	ts := e.schema.TranslationSchema()
	if ts == nil {
		invariantViolation("%s is not translatable", e.schema.Name)
	}
	t := New(ts, e.source)
	t.parent = e
	t.Set(e.schema.Translation.LocaleKey, locale)
	if id := e.ID(); id != "" {
		t.Set(e.schema.Translation.ForeignKey, id)
	}
	e.translations = append(e.translations, t)
	return t
}

// HasTranslation reports whether a translation exists for locale, the
// fallback locale when empty.
func (e *Entity) HasTranslation(locale string) bool {
	if locale == "" {
		_, locale = e.cachedLocales()
	}
	_, ok := translation.Find(e.translations, e.localeOf, locale)
	return ok
}

// IsDefaultTranslation reports whether a translation entity holds the
// default locale.
func (e *Entity) IsDefaultTranslation() bool {
	if e.schema.Owner() == nil {
		return false
	}
	def, _ := e.cachedLocales()
	return def != "" && translation.Equal(AsString(e.Raw(e.schema.LocaleKey())), def)
}

// IsTranslationDirty reports whether t changed outside its locale column.
// A new translation of a persisted owner is dirty through its owner key.
func (e *Entity) IsTranslationDirty(t *Entity) bool {
	return t.IsDirtyExcept(e.schema.LocaleKey())
}

// Attribute reads key. Translated keys resolve against the current locale
// with fallback and read nil when nothing resolves.
func (e *Entity) Attribute(ctx context.Context, key string) any {
	if !e.IsTranslatedAttribute(key) {
		return e.Raw(key)
	}
	t := e.Translate(ctx, "", true)
	if t == nil {
		return nil
	}
	return t.Raw(key)
}

// TranslatedAttribute reads key from the translation of locale.
func (e *Entity) TranslatedAttribute(ctx context.Context, key, locale string, withFallback bool) any {
	t := e.Translate(ctx, locale, withFallback)
	if t == nil {
		return nil
	}
	return t.Raw(key)
}

// SetAttribute writes key. Translated keys land in the translation of the
// write locale, created on demand.
func (e *Entity) SetAttribute(ctx context.Context, key string, value any) *Entity {
	if e.IsTranslatedAttribute(key) {
		e.TranslateOrNew(ctx, e.writeLocale(ctx)).Set(key, value)
		return e
	}
	return e.Set(key, value)
}

// Fill mass assigns attrs through the fillable policy. A top level key that
// names a locale and holds a map is a translation payload for that locale.
func (e *Entity) Fill(ctx context.Context, attrs map[string]any) *Entity {
	rest := make(map[string]any, len(attrs))
	for key, value := range attrs {
		payload, ok := value.(map[string]any)
		if !ok || !e.IsTranslatable() || !e.locales().IsLocale(key) {
			rest[key] = value
			continue
		}
		t := e.TranslateOrNew(ctx, key)
		for k, v := range payload {
			if e.schema.IsFillable(k) {
				t.Set(k, v)
			}
		}
	}

	for key, value := range rest {
		if e.schema.IsFillable(key) {
			e.SetAttribute(ctx, key, value)
		}
	}
	return e
}
