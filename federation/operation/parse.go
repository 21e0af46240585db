// Package operation implements the request pipeline's operation stage:
// parsing the client's GraphQL document, validating it against the
// supergraph's accessibility rules, normalizing it for stable plan-cache
// fingerprints, enforcing complexity limits, and filtering fields an
// authenticated or scoped caller is not allowed to see.
package operation

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

// ParseError carries the parser's own error messages; callers format it
// without adding their own prefix.
type ParseError struct {
	Errors []string
}

func (e *ParseError) Error() string {
	if len(e.Errors) == 0 {
		return "parse error"
	}
	return e.Errors[0]
}

// Parse lexes and parses a GraphQL document, returning a *ParseError on
// failure so callers can distinguish it from downstream pipeline errors.
func Parse(query string) (*ast.Document, error) {
	l := lexer.New(query)
	p := parser.New(l)
	doc := p.ParseDocument()
	if errs := p.Errors(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = fmt.Sprint(e)
		}
		return nil, &ParseError{Errors: msgs}
	}
	return doc, nil
}

// operationFromDocument returns the document's single operation
// definition, or nil if none is present.
func operationFromDocument(doc *ast.Document) *ast.OperationDefinition {
	if doc == nil {
		return nil
	}
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			return op
		}
	}
	return nil
}

// collectFragmentDefinitions extracts every named fragment in doc, keyed by
// name, mirroring the planner's own fragment lookup.
func collectFragmentDefinitions(doc *ast.Document) map[string]*ast.FragmentDefinition {
	fragments := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if fragDef, ok := def.(*ast.FragmentDefinition); ok {
			fragments[fragDef.Name.String()] = fragDef
		}
	}
	return fragments
}
