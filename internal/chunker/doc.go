// Package chunker divides parsed source files into retrieval units for
// embedding and search.
//
// Chunks follow symbol boundaries: one chunk per function, method and class.
// A class chunk covers its header and docstring up to its first method, so
// member bodies are not stored twice. A file with no symbols becomes a
// single module chunk.
//
//	result, _ := parser.New().Parse(ctx, path, src)
//	chunks := chunker.New().Chunk(path, src, result, fileID)
//
// Each chunk carries its module header (package clause and imports rendered
// in the file's own syntax) in ContextBefore, plus the symbol name, parent,
// signature and first documentation line used to describe it in prose.
package chunker
