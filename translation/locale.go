package translation

import (
	"context"
	"strings"

	"golang.org/x/text/language"
)

// Locales is the locale context a resolver works with. Current is the locale
// reads resolve against, Write is the locale attribute writes land in.
type Locales struct {
	Current  string `json:"current" yaml:"current"`
	Write    string `json:"write" yaml:"write"`
	Default  string `json:"default" yaml:"default"`
	Fallback string `json:"fallback" yaml:"fallback"`

	// Supported restricts which codes count as locales when filling nested
	// locale maps. Empty means any valid BCP 47 tag.
	Supported []string `json:"supported,omitempty" yaml:"supported,omitempty"`
}

// IsLocale reports whether code names a locale under l.
func (l Locales) IsLocale(code string) bool {
	if len(l.Supported) == 0 {
		return Valid(code)
	}
	for _, s := range l.Supported {
		if Equal(s, code) {
			return true
		}
	}
	return false
}

// Source yields the process locale configuration. Implementations are read
// lazily; entities cache Default and Fallback for their lifetime.
type Source interface {
	Locales() Locales
}

// StaticSource is a Source backed by fixed values.
type StaticSource Locales

// Locales implements Source. Current falls back to Default and Write to
// Current.
func (s StaticSource) Locales() Locales {
	l := Locales(s)
	if l.Write == "" {
		l.Write = l.Current
	}
	if l.Current == "" {
		l.Current = l.Default
	}
	if l.Write == "" {
		l.Write = l.Default
	}
	return l
}

type localeKey struct{}
type writeLocaleKey struct{}

// WithLocale overrides the read locale for the given context.
func WithLocale(ctx context.Context, locale string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, localeKey{}, locale)
}

// WithWriteLocale overrides the locale translated attribute writes land in.
func WithWriteLocale(ctx context.Context, locale string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, writeLocaleKey{}, locale)
}

// LocaleFromContext returns the read locale override, if any.
func LocaleFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	l, ok := ctx.Value(localeKey{}).(string)
	return l, ok && l != ""
}

// WriteLocaleFromContext returns the write locale override, if any.
func WriteLocaleFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	l, ok := ctx.Value(writeLocaleKey{}).(string)
	return l, ok && l != ""
}

// Normalize canonicalises a locale code so that en_US, en-us and en-US compare
// equal. Codes that are not valid BCP 47 tags are returned trimmed but
// otherwise untouched.
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return code
	}
	return tag.String()
}

// Equal reports whether two locale codes name the same locale.
func Equal(a, b string) bool {
	if a == b {
		return true
	}
	return Normalize(a) == Normalize(b)
}

// Valid reports whether code parses as a BCP 47 tag.
func Valid(code string) bool {
	if strings.TrimSpace(code) == "" {
		return false
	}
	_, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	return err == nil
}
