// Package entity is the data model of the overlay: schemas registered by
// name, map backed entities with snapshot dirty tracking, translations
// resolved through a fallback chain, and declared relations evaluated into
// a None/One/Many result.
//
//	reg := entity.NewRegistry()
//	article := reg.MustRegister(entity.Schema{
//		Name:        "Article",
//		Attributes:  []string{"slug"},
//		Translated:  []string{"title"},
//		Translation: &entity.TranslationSchema{},
//		SoftDeletes: true,
//	})
//
//	a := entity.New(article, translation.StaticSource{Default: "en"})
//	a.SetAttribute(ctx, "title", "Hello")
//	a.Attribute(translation.WithLocale(ctx, "fr"), "title") // "Hello" via the default locale
package entity
