// Package translation resolves locale-scoped records through a fallback chain.
//
// Resolution tries, in strict order, the requested locale (or the current
// locale when none is given), the default locale and finally the fallback
// locale. The last two steps only run when fallback is allowed, and the
// fallback step is skipped when it names the same locale as the default.
//
//	chain := translation.Chain{Requested: "fr", Default: "en", Fallback: "de"}
//	tr, ok := translation.Resolve(rows, localeOf, chain, true)
//
// A miss is not an error: callers get ok == false and treat the value as absent.
//
// Locale context is explicit. A Source provides the configured locales and
// WithLocale / WithWriteLocale override the read and write locale per request.
package translation
