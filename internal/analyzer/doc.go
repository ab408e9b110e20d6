// Package analyzer holds the static analyzers and the pool that runs them.
//
// Each Analyzer inspects a single file and reports types.Issue values. The
// built-in set covers language checks for Python, JavaScript/TypeScript and
// Go, plus cross-cutting security, performance, complexity, duplication and
// test-quality checks. Analyzers that need to see the whole session, such
// as cross-file duplication, also implement Finalizer.
//
// A Registry maps names to factories so the enabled set comes from
// configuration. The Pool runs files × analyzers under a worker bound.
// A panic or error inside an analyzer is recorded as a
// types.AnalyzerFailure and never aborts the run.
//
// Security checks are line rules. Extra rules can be supplied as a TOML
// file of [[rule]] tables:
//
//	[[rule]]
//	id         = "no-debug-endpoint"
//	title      = "Debug Endpoint Exposed"
//	pattern    = '/debug/pprof'
//	severity   = "high"
//	languages  = ["go"]
//	suggestion = "Serve pprof on an internal listener only"
package analyzer
