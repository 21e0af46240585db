package operation_test

import (
	"testing"

	"github.com/n9te9/federation-router/federation/graph"
	"github.com/n9te9/federation-router/federation/operation"
	"github.com/n9te9/graphql-parser/ast"
)

func TestValidateAccessibility_RejectsInaccessibleField(t *testing.T) {
	schema := `
		type User @key(fields: "id") {
			id: ID!
			name: String
			internalNotes: String @inaccessible
		}
	`
	sg := mustSubGraph(t, "users", "http://users", schema)
	superGraph := &graph.SuperGraphV2{
		SubGraphs: []*graph.SubGraphV2{sg},
		Schema:    &ast.Document{},
	}

	doc, err := operation.Parse(`query { user { id internalNotes } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if err := operation.ValidateAccessibility(doc, superGraph); err == nil {
		t.Fatalf("expected an accessibility error for internalNotes")
	}
}

func TestValidateAccessibility_AllowsAccessibleFields(t *testing.T) {
	schema := `
		type User @key(fields: "id") {
			id: ID!
			name: String
		}
	`
	sg := mustSubGraph(t, "users", "http://users", schema)
	superGraph := &graph.SuperGraphV2{
		SubGraphs: []*graph.SubGraphV2{sg},
		Schema:    &ast.Document{},
	}

	doc, err := operation.Parse(`query { user { id name } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if err := operation.ValidateAccessibility(doc, superGraph); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
