package orm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-overlay/cache"
	"github.com/goliatone/go-repository-overlay/entity"
	"github.com/goliatone/go-repository-overlay/lifecycle"
	"github.com/goliatone/go-repository-overlay/translation"
)

func TestArticle_TranslatedTitleEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.m.New(f.article)
	a.Set("slug", "hello")
	a.SetAttribute(ctx, "title", "Hello")

	ok, err := f.m.Save(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)

	rows := f.rows(t, "SELECT article_id, locale, title FROM article_translations")
	require.Len(t, rows, 1)
	assert.Equal(t, "en", rows[0]["locale"])
	assert.Equal(t, "Hello", rows[0]["title"])
	assert.Equal(t, a.ID(), rows[0]["article_id"])

	loaded, err := f.m.Find(ctx, f.article, a.ID())
	require.NoError(t, err)

	en := translation.WithLocale(ctx, "en")
	fr := translation.WithLocale(ctx, "fr")
	assert.Equal(t, "Hello", loaded.Attribute(en, "title"))
	assert.Equal(t, "Hello", loaded.Attribute(fr, "title"), "default locale fallback")
	assert.Nil(t, loaded.TranslatedAttribute(fr, "title", "", false))
}

func TestSave_FiresSavedOnceForTranslatableOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.m.New(f.article).Set("slug", "once")
	a.SetAttribute(ctx, "title", "Once")
	a.SetAttribute(translation.WithWriteLocale(ctx, "fr"), "title", "Une fois")

	ok, err := f.m.Save(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []string{
		"model.created Article",
		"model.created ArticleTranslation",
		"model.saved ArticleTranslation",
		"model.created ArticleTranslation",
		"model.saved ArticleTranslation",
		"model.saved Article",
	}, f.events)
	assert.Equal(t, 2, f.count(t, "article_translations"))
}

func TestSave_SynthesisesDefaultTranslation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.exec(t, "INSERT INTO articles (id, slug) VALUES ('a1', 'bare')")

	a, err := f.m.Find(ctx, f.article, "a1")
	require.NoError(t, err)
	require.True(t, a.TranslationsLoaded())
	require.Empty(t, a.Translations())
	require.False(t, a.IsDirty())

	f.reset()
	ok, err := f.m.Save(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Zero(t, f.queries.Count("UPDATE"), "a clean owner row is not written")
	rows := f.rows(t, "SELECT locale FROM article_translations WHERE article_id = ?", "a1")
	require.Len(t, rows, 1)
	assert.Equal(t, "en", rows[0]["locale"])
}

func TestSave_HaltedPrimarySaveLeavesTranslationsUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.m.Observer().On(lifecycle.Saving, func(_ context.Context, s *lifecycle.Subject) error {
		if s.Schema == f.article {
			return lifecycle.ErrHalt
		}
		return nil
	})

	a := f.m.New(f.article).Set("slug", "halted")
	a.SetAttribute(ctx, "title", "Halted")

	ok, err := f.m.Save(ctx, a)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, a.Exists())
	assert.Zero(t, f.queries.Count("INSERT"))
	assert.Zero(t, f.count(t, "article_translations"))
}

func TestSave_FailedPrimarySaveLeavesTranslationsUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedArticle(t, "a1", "taken", map[string]string{"en": "Taken"})
	f.seedArticle(t, "a2", "free", map[string]string{"en": "Free"})

	a, err := f.m.Find(ctx, f.article, "a2")
	require.NoError(t, err)
	a.Set("slug", "taken")
	a.SetAttribute(translation.WithWriteLocale(ctx, "fr"), "title", "Libre")
	a.SetAttribute(ctx, "title", "Changed")

	f.reset()
	ok, err := f.m.Save(ctx, a)
	assert.Error(t, err)
	assert.False(t, ok)

	for _, q := range f.queries.Queries() {
		assert.NotContains(t, q, "article_translations", "no translation statement after a failed row save")
	}
	rows := f.rows(t, "SELECT locale, title FROM article_translations WHERE article_id = ?", "a2")
	require.Len(t, rows, 1)
	assert.Equal(t, "Free", rows[0]["title"])
}

func TestSave_OnlyTranslationChangedSkipsRowWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedArticle(t, "a1", "first", map[string]string{"en": "First"})

	a, err := f.m.Find(ctx, f.article, "a1")
	require.NoError(t, err)
	a.SetAttribute(ctx, "title", "First, edited")

	f.reset()
	ok, err := f.m.Save(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)

	queries := f.queries.Queries()
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "UPDATE article_translations")
	assert.Equal(t, "First, edited", f.rows(t, "SELECT title FROM article_translations")[0]["title"])
}

func TestSave_NewTranslationOfPersistedOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedArticle(t, "a1", "first", map[string]string{"en": "First"})

	a, err := f.m.Find(ctx, f.article, "a1")
	require.NoError(t, err)
	a.TranslateOrNew(ctx, "de")

	ok, err := f.m.Save(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)

	rows := f.rows(t, "SELECT article_id FROM article_translations WHERE locale = 'de'")
	require.Len(t, rows, 1)
	assert.Equal(t, "a1", rows[0]["article_id"])
	assert.Equal(t, 2, f.count(t, "article_translations"))
}

func TestSave_MergesStoredTranslationsOfUnloadedOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedArticle(t, "a1", "merge", map[string]string{"en": "Merge"})

	stored := f.rows(t, "SELECT * FROM articles WHERE id = 'a1'")[0]
	a := entity.Hydrate(f.article, f.m.Locales(), stored)
	require.False(t, a.TranslationsLoaded())
	a.SetAttribute(ctx, "title", "Merged")
	a.SetAttribute(translation.WithWriteLocale(ctx, "de"), "title", "Zusammen")

	ok, err := f.m.Save(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)

	rows := f.rows(t, "SELECT locale, title FROM article_translations ORDER BY locale")
	require.Len(t, rows, 2)
	assert.Equal(t, "de", rows[0]["locale"])
	assert.Equal(t, "Zusammen", rows[0]["title"])
	assert.Equal(t, "en", rows[1]["locale"])
	assert.Equal(t, "Merged", rows[1]["title"])
}

func TestCache_MutationsInvalidateReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedArticle(t, "a1", "alpha", map[string]string{"en": "Alpha"})
	f.seedArticle(t, "a2", "beta", map[string]string{"en": "Beta"})

	list := func() ([]string, cache.Outcome) {
		items, outcome, err := f.m.Query(f.article).OrderBy("slug").GetWithOutcome(ctx)
		require.NoError(t, err)
		var slugs []string
		for _, e := range items {
			slugs = append(slugs, e.Raw("slug").(string))
		}
		return slugs, outcome
	}

	f.reset()
	slugs, outcome := list()
	assert.Equal(t, []string{"alpha", "beta"}, slugs)
	assert.Equal(t, cache.OutcomeMiss, outcome)
	assert.Equal(t, 2, f.queries.Selects(), "rows and translations")

	_, outcome = list()
	assert.Equal(t, cache.OutcomeHit, outcome)
	assert.Equal(t, 2, f.queries.Selects())

	a, err := f.m.Find(ctx, f.article, "a1")
	require.NoError(t, err)
	a.Set("slug", "gamma")
	_, err = f.m.Save(ctx, a)
	require.NoError(t, err)

	slugs, outcome = list()
	assert.Equal(t, cache.OutcomeMiss, outcome, "update")
	assert.Equal(t, []string{"beta", "gamma"}, slugs)

	_, err = f.m.Delete(ctx, a)
	require.NoError(t, err)
	slugs, outcome = list()
	assert.Equal(t, cache.OutcomeMiss, outcome, "delete")
	assert.Equal(t, []string{"beta"}, slugs)

	_, err = f.m.Restore(ctx, a)
	require.NoError(t, err)
	slugs, outcome = list()
	assert.Equal(t, cache.OutcomeMiss, outcome, "restore")
	assert.Equal(t, []string{"beta", "gamma"}, slugs)

	created := f.m.New(f.article).Set("slug", "delta")
	_, err = f.m.Save(ctx, created)
	require.NoError(t, err)
	slugs, outcome = list()
	assert.Equal(t, cache.OutcomeMiss, outcome, "create")
	assert.Equal(t, []string{"beta", "delta", "gamma"}, slugs)

	_, err = f.m.Query(f.article).Update(ctx, map[string]any{"author_id": "u1"})
	require.NoError(t, err)
	_, outcome = list()
	assert.Equal(t, cache.OutcomeMiss, outcome, "bulk update")
}

func TestCache_FreshDropsSingleQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedArticle(t, "a1", "alpha", nil)

	_, err := f.m.Query(f.article).Get(ctx)
	require.NoError(t, err)

	// written behind the manager's back
	f.exec(t, "UPDATE articles SET slug = 'changed' WHERE id = 'a1'")

	items, outcome, err := f.m.Query(f.article).GetWithOutcome(ctx)
	require.NoError(t, err)
	assert.Equal(t, cache.OutcomeHit, outcome)
	assert.Equal(t, "alpha", items[0].Raw("slug"))

	items, outcome, err = f.m.Query(f.article).Fresh().GetWithOutcome(ctx)
	require.NoError(t, err)
	assert.Equal(t, cache.OutcomeMiss, outcome)
	assert.Equal(t, "changed", items[0].Raw("slug"))
}
