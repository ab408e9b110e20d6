// Package qa answers natural-language questions about a codebase.
//
// An answer is built only from retrieved context. When the scope has been
// indexed the question is matched semantically against its chunks; otherwise
// the scope's files are scanned directly and the answer is marked as having
// lower coverage. When nothing relevant is found the service says so and does
// not call the model.
package qa
