// Package source materializes repositories for analysis and indexing.
//
// A repository comes from a local directory, a set of uploaded files
// written to a temporary directory, or a shallow git clone. Clone and
// upload directories are removed by Repository.Cleanup. Any failure to
// reach or read the source is reported as SourceUnavailable.
package source
