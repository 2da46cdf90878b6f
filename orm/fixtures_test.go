package orm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-overlay/cache"
	"github.com/goliatone/go-repository-overlay/entity"
	"github.com/goliatone/go-repository-overlay/lifecycle"
	"github.com/goliatone/go-repository-overlay/pkg/testsupport"
	"github.com/goliatone/go-repository-overlay/translation"
)

var schemaDDL = []string{
	`CREATE TABLE articles (
		id TEXT PRIMARY KEY,
		slug TEXT UNIQUE,
		author_id TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE article_translations (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL,
		locale TEXT NOT NULL,
		title TEXT,
		body TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (article_id, locale)
	)`,
	`CREATE TABLE comments (
		id TEXT PRIMARY KEY,
		article_id TEXT,
		body TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE replies (
		id TEXT PRIMARY KEY,
		comment_id TEXT,
		body TEXT,
		deleted_at DATETIME
	)`,
	`CREATE TABLE attachments (
		id TEXT PRIMARY KEY,
		article_id TEXT,
		path TEXT
	)`,
	`CREATE TABLE authors (
		id TEXT PRIMARY KEY,
		name TEXT
	)`,
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *bun.DB
	m       *Manager
	rc      *cache.ResultCache
	queries *testsupport.QueryCounter
	bus     *lifecycle.Dispatcher
	events  []string

	article, comment, reply, attachment, author *entity.Schema
}

func registerSchemas(t *testing.T) *entity.Registry {
	t.Helper()
	reg := entity.NewRegistry()
	reg.MustRegister(entity.Schema{
		Name:        "Article",
		Attributes:  []string{"slug", "author_id"},
		Translated:  []string{"title", "body"},
		Translation: &entity.TranslationSchema{},
		SoftDeletes: true,
		Timestamps:  true,
		Cascades:    []string{"comments", "attachments"},
		Relations: map[string]entity.Relation{
			"comments":    {Kind: entity.HasMany, Target: "Comment"},
			"attachments": {Kind: entity.HasMany, Target: "Attachment"},
			"author":      {Kind: entity.BelongsTo, Target: "Author"},
		},
	})
	reg.MustRegister(entity.Schema{
		Name:        "Comment",
		Attributes:  []string{"article_id", "body"},
		SoftDeletes: true,
		Timestamps:  true,
		Cascades:    []string{"replies"},
		Relations: map[string]entity.Relation{
			"replies": {Kind: entity.HasMany, Target: "Reply"},
			"article": {Kind: entity.BelongsTo, Target: "Article"},
		},
	})
	reg.MustRegister(entity.Schema{
		Name:        "Reply",
		Attributes:  []string{"comment_id", "body"},
		SoftDeletes: true,
	})
	reg.MustRegister(entity.Schema{Name: "Attachment", Attributes: []string{"article_id", "path"}})
	reg.MustRegister(entity.Schema{Name: "Author", Attributes: []string{"name"}})
	require.NoError(t, reg.Validate())
	return reg
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{db: testsupport.NewDB(t, schemaDDL...)}
	f.queries = testsupport.CountQueries(f.db)

	rc, err := cache.New(cache.DefaultConfig(), nil)
	require.NoError(t, err)
	f.rc = rc

	f.bus = lifecycle.NewDispatcher()
	f.bus.SubscribeAll(func(_ context.Context, n lifecycle.Notification) error {
		f.events = append(f.events, n.Name()+" "+n.Model().Schema().Name)
		return nil
	})

	seq := 0
	reg := registerSchemas(t)
	base := []Option{
		WithCache(rc),
		WithBus(f.bus),
		WithLocales(translation.StaticSource{Current: "en", Default: "en"}),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("gen-%d", seq)
		}),
	}
	f.m = NewManager(f.db, reg, append(base, opts...)...)

	f.article, _ = reg.Get("Article")
	f.comment, _ = reg.Get("Comment")
	f.reply, _ = reg.Get("Reply")
	f.attachment, _ = reg.Get("Attachment")
	f.author, _ = reg.Get("Author")
	return f
}

func (f *fixture) exec(t *testing.T, statements ...string) {
	t.Helper()
	testsupport.Exec(t, f.db, statements...)
}

// rows reads the database directly, around the cache.
func (f *fixture) rows(t *testing.T, query string, args ...any) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, f.db.NewRaw(query, args...).Scan(context.Background(), &out))
	return out
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	rows := f.rows(t, "SELECT COUNT(*) AS n FROM "+table)
	return int(toInt64(rows[0]["n"]))
}

func (f *fixture) reset() {
	f.queries.Reset()
	f.events = nil
}

// seedArticle inserts an article with one translation per title.
func (f *fixture) seedArticle(t *testing.T, id, slug string, titles map[string]string) {
	t.Helper()
	f.exec(t, fmt.Sprintf("INSERT INTO articles (id, slug) VALUES ('%s', '%s')", id, slug))
	for locale, title := range titles {
		f.exec(t, fmt.Sprintf(
			"INSERT INTO article_translations (id, article_id, locale, title) VALUES ('%s-%s', '%s', '%s', '%s')",
			id, locale, id, locale, title))
	}
}
