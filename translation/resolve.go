package translation

// Chain is the fallback chain used by Resolve. Requested is the locale asked
// for by the caller (already defaulted to the current locale).
type Chain struct {
	Requested string
	Default   string
	Fallback  string
}

// Steps returns the locales Resolve will try, in order.
func (c Chain) Steps(allowFallback bool) []string {
	steps := []string{c.Requested}
	if !allowFallback {
		return steps
	}
	if c.Default != "" {
		steps = append(steps, c.Default)
	}
	if c.Fallback != "" && !Equal(c.Fallback, c.Default) {
		steps = append(steps, c.Fallback)
	}
	return steps
}

// Resolve picks the best candidate for the chain: the requested locale, then
// the default locale, then the fallback locale. The last two are only tried
// when allowFallback is set. The boolean is false when nothing matched, which
// callers treat as an absent value rather than an error.
func Resolve[T any](candidates []T, localeOf func(T) string, chain Chain, allowFallback bool) (T, bool) {
	for _, locale := range chain.Steps(allowFallback) {
		if locale == "" {
			continue
		}
		if c, ok := Find(candidates, localeOf, locale); ok {
			return c, true
		}
	}
	var zero T
	return zero, false
}

// Find returns the first candidate whose locale equals locale.
func Find[T any](candidates []T, localeOf func(T) string, locale string) (T, bool) {
	for _, c := range candidates {
		if Equal(localeOf(c), locale) {
			return c, true
		}
	}
	var zero T
	return zero, false
}
