// Package lifecycle fires the events of entity state transitions. The
// Observer runs user hooks and the built-in reactions (cache invalidation,
// cascades, translation cleanup, notifications) for each event; the
// persistence layer decides when events fire.
package lifecycle
