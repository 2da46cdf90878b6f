package repositorycache

import (
	"context"
	"slices"
)

type cacheTagsContextKey struct{}

// WithCacheTags names extra cache namespaces that writes made with ctx also
// drop, for reads elsewhere that join the repository's table.
func WithCacheTags(ctx context.Context, namespaces ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(namespaces) == 0 {
		return ctx
	}

	combined := tagsFromContext(ctx)
	for _, ns := range namespaces {
		if ns != "" && !slices.Contains(combined, ns) {
			combined = append(combined, ns)
		}
	}
	if len(combined) == 0 {
		return ctx
	}
	return context.WithValue(ctx, cacheTagsContextKey{}, combined)
}

func tagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(cacheTagsContextKey{}).([]string); ok {
		return slices.Clone(tags)
	}
	return nil
}
