// Package vars holds the layered variable context of a scenario run.
//
// Three scopes are kept: global (set before the run, read-only once sealed),
// scenario (lives for the whole run) and step (a stack of layers, one per
// active step or nested body). Unscoped lookups try step layers innermost
// first, then scenario, then global.
//
// Templates reference variables with ${name}, ${name.path.to.field} and
// built-in calls such as ${uuid()} or ${random_int(1, 10)}.
package vars
