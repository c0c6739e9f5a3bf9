// Package pool implements the rule store: the canonical collection of
// [rule.Rule] entities with derived category and tag indices, search,
// statistics, import/export and persistence through a [Repository].
//
// Every mutation validates its input, updates the indices incrementally,
// recomputes the pool metadata and then persists the pool after a
// best-effort backup of the previous state.
package pool
