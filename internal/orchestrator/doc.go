// Package orchestrator runs an analysis session as an explicit state
// machine: discover the repository's files, select a ranked batch, analyze
// it on a bounded pool, aggregate the findings, and decide whether to stop.
//
// A session ends when every discoverable file has been attempted, when the
// file budget is spent, when the pass limit is reached, or when its context
// is canceled. Cross-file analyzers are finalized once, after the last pass,
// so a canceled session still yields a scored partial report.
package orchestrator
