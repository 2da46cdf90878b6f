package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// ToSnake converts s to snake_case. Punctuation that shows up in reflected
// type names (pointers, package qualifiers, generic brackets) collapses into
// a single underscore so the result is safe inside cache key prefixes.
func ToSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false
	sep := func() {
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sep()
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false

		case unicode.IsLower(r):
			b.WriteRune(r)
			lastUnderscore = false

		case unicode.IsDigit(r):
			if i > 0 && unicode.IsLetter(runes[i-1]) {
				sep()
			}
			b.WriteRune(r)
			lastUnderscore = false

		default:
			sep()
		}
	}

	return strings.Trim(b.String(), "_")
}

// TableName derives the conventional plural snake_case table name for a
// type name: Article -> articles, BlogPost -> blog_posts.
func TableName(name string) string {
	snake := ToSnake(name)
	if snake == "" {
		return ""
	}
	i := strings.LastIndexByte(snake, '_')
	return snake[:i+1] + inflection.Plural(snake[i+1:])
}

// ForeignKey derives the conventional foreign key column for a type name:
// Article -> article_id.
func ForeignKey(name string) string {
	snake := ToSnake(name)
	if snake == "" {
		return ""
	}
	return snake + "_id"
}
