// Package aggregator merges analyzer output into a session issue set and
// scores it.
//
// Two issues are duplicates when they share a file and category and their
// line spans overlap within LineTolerance lines. The more severe issue
// survives; the earlier line wins a tie. Suggestions that differ by a
// difflib ratio below SimilarityThreshold are kept side by side.
//
// The quality score starts at 100 and subtracts a severity-weighted
// penalty, optionally normalized per analyzed file and capped, so a large
// repository is not punished for its size alone.
package aggregator
