// Package parser extracts named units (functions, classes and methods)
// from source files, along with imports and per-function complexity.
//
// Go files are parsed with go/parser. Python, JavaScript and TypeScript
// are parsed with tree-sitter grammars when the binary is built with cgo;
// otherwise a line scanner recovers the same units from indentation and
// brace structure.
//
// # Basic Usage
//
//	p := parser.New()
//	result, err := p.Parse(ctx, "app/views.py", src)
//	if err != nil {
//	    return err
//	}
//	for _, sym := range result.Symbols {
//	    fmt.Printf("%s %s (%d-%d)\n", sym.Kind, sym.Name, sym.Start.Line, sym.End.Line)
//	}
//
// # Error Handling
//
// Syntax errors do not fail a parse. They are recorded on the result and
// the symbols that could be recovered are still returned:
//
//	if result.HasErrors() {
//	    for _, e := range result.Errors {
//	        log.Printf("parse error at line %d: %s", e.Line, e.Message)
//	    }
//	}
//
// # Complexity
//
// Functions reports cyclomatic and cognitive complexity plus maximum
// nesting for every named function:
//
//	fns, _ := p.Functions(ctx, "main.go", src)
//	for _, f := range fns {
//	    if f.Cyclomatic > 10 {
//	        fmt.Println(f.QualifiedName(), f.Cyclomatic)
//	    }
//	}
package parser
