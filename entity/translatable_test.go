package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-overlay/translation"
)

type countingSource struct {
	locales translation.Locales
	reads   int
}

func (c *countingSource) Locales() translation.Locales {
	c.reads++
	return c.locales
}

func articleWith(t *testing.T, src translation.Source, titles map[string]string) *Entity {
	t.Helper()
	s := NewRegistry().MustRegister(articleSchema())
	a := Hydrate(s, src, map[string]any{"id": "a1", "slug": "hello"})

	ts := Collection{}
	for locale, title := range titles {
		ts = append(ts, Hydrate(s.TranslationSchema(), src, map[string]any{
			"id": locale, "article_id": "a1", "locale": locale, "title": title,
		}))
	}
	a.SetTranslations(ts)
	return a
}

func TestTranslate_Precedence(t *testing.T) {
	src := translation.StaticSource{Current: "fr", Default: "en", Fallback: "de"}
	ctx := context.Background()

	tests := []struct {
		name     string
		titles   map[string]string
		fallback bool
		want     any
	}{
		{"requested wins", map[string]string{"fr": "Bonjour", "en": "Hello", "de": "Hallo"}, true, "Bonjour"},
		{"default before fallback", map[string]string{"en": "Hello", "de": "Hallo"}, true, "Hello"},
		{"fallback last", map[string]string{"de": "Hallo"}, true, "Hallo"},
		{"nothing resolves", map[string]string{"es": "Hola"}, true, nil},
		{"fallback disabled", map[string]string{"en": "Hello"}, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := articleWith(t, src, tt.titles)
			assert.Equal(t, tt.want, a.TranslatedAttribute(ctx, "title", "", tt.fallback))
		})
	}
}

func TestAttribute_RedirectsTranslated(t *testing.T) {
	src := translation.StaticSource{Current: "en", Default: "en"}
	a := articleWith(t, src, map[string]string{"en": "Hello"})
	ctx := context.Background()

	assert.Equal(t, "Hello", a.Attribute(ctx, "title"))
	assert.Equal(t, "hello", a.Attribute(ctx, "slug"))
	assert.Nil(t, a.Attribute(ctx, "body"), "translation lacks the field")
	assert.Nil(t, a.Raw("title"), "translated values are never stored on the owner")

	assert.Equal(t, "Hello", a.Attribute(translation.WithLocale(ctx, "fr"), "title"))
}

func TestLocalesReadOncePerInstance(t *testing.T) {
	src := &countingSource{locales: translation.Locales{Current: "fr", Default: "en", Fallback: "de"}}
	a := articleWith(t, src, map[string]string{"en": "Hello"})
	ctx := translation.WithLocale(context.Background(), "fr")

	a.Attribute(ctx, "title")
	src.locales.Default = "de"
	assert.Equal(t, "Hello", a.Attribute(ctx, "title"), "default locale is cached on the instance")
}

func TestSetAttribute_CreatesOneTranslationForWriteLocale(t *testing.T) {
	src := translation.StaticSource{Current: "en", Write: "fr", Default: "en"}
	a := articleWith(t, src, map[string]string{"en": "Hello"})
	ctx := context.Background()

	a.SetAttribute(ctx, "title", "Bonjour")
	require.Len(t, a.Translations(), 2)

	fr := a.Translate(ctx, "fr", false)
	require.NotNil(t, fr)
	assert.Equal(t, "Bonjour", fr.Raw("title"))
	assert.Equal(t, "a1", fr.Raw("article_id"))
	assert.Same(t, a, fr.Parent())
	assert.False(t, fr.Exists())

	en := a.Translate(ctx, "en", false)
	assert.Equal(t, "Hello", en.Raw("title"))
	assert.False(t, en.IsDirty(), "other locales stay untouched")

	a.SetAttribute(ctx, "body", "Texte")
	assert.Len(t, a.Translations(), 2, "second write reuses the locale")

	a.SetAttribute(translation.WithWriteLocale(ctx, "de"), "title", "Hallo")
	assert.Len(t, a.Translations(), 3)
	assert.True(t, a.HasTranslation("de"))
}

func TestTranslateOrDefault(t *testing.T) {
	src := translation.StaticSource{Current: "fr", Default: "en"}
	ctx := context.Background()

	a := articleWith(t, src, map[string]string{"en": "Hello"})
	assert.Equal(t, "Hello", a.TranslateOrDefault(ctx, "").Raw("title"))
	assert.Equal(t, "Hello", a.TranslateOrDefault(ctx, "es").Raw("title"))

	empty := articleWith(t, src, nil)
	assert.Same(t, empty, empty.TranslateOrDefault(ctx, ""))
}

func TestHasTranslation_DefaultsToFallback(t *testing.T) {
	src := translation.StaticSource{Default: "en", Fallback: "de"}
	a := articleWith(t, src, map[string]string{"de": "Hallo"})

	assert.True(t, a.HasTranslation(""))
	assert.True(t, a.HasTranslation("de"))
	assert.False(t, a.HasTranslation("en"))
}

func TestIsDefaultTranslation(t *testing.T) {
	src := translation.StaticSource{Default: "en_US"}
	a := articleWith(t, src, map[string]string{"en-US": "Hello", "fr": "Bonjour"})

	assert.True(t, a.Translate(context.Background(), "en-US", false).IsDefaultTranslation())
	assert.False(t, a.Translate(context.Background(), "fr", false).IsDefaultTranslation())
	assert.False(t, a.IsDefaultTranslation())
}

func TestIsTranslationDirty_IgnoresLocale(t *testing.T) {
	src := translation.StaticSource{Default: "en"}
	a := articleWith(t, src, map[string]string{"en": "Hello"})
	en := a.Translate(context.Background(), "en", false)

	en.Set("locale", "en-GB")
	assert.False(t, a.IsTranslationDirty(en))

	en.Set("title", "Hi")
	assert.True(t, a.IsTranslationDirty(en))
}

func TestIsTranslationDirty_NewTranslationOfPersistedOwner(t *testing.T) {
	src := translation.StaticSource{Default: "en"}
	a := articleWith(t, src, map[string]string{"en": "Hello"})

	de := a.TranslateOrNew(context.Background(), "de")
	assert.Equal(t, "a1", de.Raw("article_id"))
	assert.True(t, a.IsTranslationDirty(de))
}

func TestFill(t *testing.T) {
	src := translation.StaticSource{Current: "en", Default: "en"}
	reg := NewRegistry()
	sc := articleSchema()
	sc.Guarded = []string{"author_id", "body"}
	s := reg.MustRegister(sc)

	a := New(s, src)
	a.Fill(context.Background(), map[string]any{
		"slug":      "hello",
		"author_id": "u1",
		"title":     "Hello",
		"fr":        map[string]any{"title": "Bonjour", "body": "guarded"},
		"meta":      map[string]any{"k": "v"},
	})

	assert.Equal(t, "hello", a.Raw("slug"))
	assert.Nil(t, a.Raw("author_id"))
	assert.Equal(t, map[string]any{"k": "v"}, a.Raw("meta"))
	require.Len(t, a.Translations(), 2)

	ctx := context.Background()
	fr := a.Translate(ctx, "fr", false)
	require.NotNil(t, fr)
	assert.Equal(t, "Bonjour", fr.Raw("title"))
	assert.Nil(t, fr.Raw("body"))
	assert.Equal(t, "Hello", a.Attribute(ctx, "title"))
}

func TestFill_SupportedLocales(t *testing.T) {
	src := translation.StaticSource{Current: "en", Default: "en", Supported: []string{"en"}}
	a := New(NewRegistry().MustRegister(articleSchema()), src)

	a.Fill(context.Background(), map[string]any{"fr": map[string]any{"title": "Bonjour"}})
	assert.Empty(t, a.Translations())
	assert.NotNil(t, a.Raw("fr"))
}

func TestToMap_OverlaysTranslation(t *testing.T) {
	src := translation.StaticSource{Current: "fr", Default: "en"}
	a := articleWith(t, src, map[string]string{"en": "Hello"})

	m := a.ToMap(context.Background())
	assert.Equal(t, "Hello", m["title"])
	assert.Nil(t, m["body"])
	assert.Equal(t, "hello", m["slug"])

	none := articleWith(t, src, nil)
	_, ok := none.ToMap(context.Background())["title"]
	assert.False(t, ok)
}
