// Package catalog enumerates the files of a materialized repository.
//
// A catalog walk applies default and configured exclude globs, the
// repository's .gitignore, hidden-entry filtering and an optional include
// list. Each surviving file is tagged with its language, size, a role hint
// (entry, core, config, test, doc or other) and an estimate of its deepest
// block nesting, which together drive the orchestrator's selection order.
//
// File content is never held by the catalog; analyzers read it on demand.
// Paths that cannot be read are returned in Result.Skipped with a reason.
package catalog
