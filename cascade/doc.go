// Package cascade propagates deletes and restores across the relations an
// entity schema lists in Cascades.
package cascade
