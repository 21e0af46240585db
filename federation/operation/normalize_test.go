package operation_test

import (
	"testing"

	"github.com/n9te9/federation-router/federation/operation"
	"github.com/n9te9/graphql-parser/ast"
)

func firstOperation(doc *ast.Document) (*ast.OperationDefinition, bool) {
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			return op, true
		}
	}
	return nil, false
}

func TestNormalize_DedupsRepeatedFields(t *testing.T) {
	doc, err := operation.Parse(`query { product { id name id } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	normalized := operation.Normalize(doc)

	op, ok := firstOperation(normalized)
	if !ok {
		t.Fatalf("expected an operation definition")
	}
	if len(op.SelectionSet) != 1 {
		t.Fatalf("expected one top-level field, got %d", len(op.SelectionSet))
	}
	field, ok := op.SelectionSet[0].(*ast.Field)
	if !ok {
		t.Fatalf("expected a field selection")
	}
	if len(field.SelectionSet) != 2 {
		t.Fatalf("expected id/name deduped to 2 sub-selections, got %d", len(field.SelectionSet))
	}
}

func TestNormalize_InlinesFragmentSpreads(t *testing.T) {
	doc, err := operation.Parse(`
		query { product { ...ProductFields } }
		fragment ProductFields on Product { id name }
	`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	normalized := operation.Normalize(doc)

	for _, def := range normalized.Definitions {
		if _, ok := def.(*ast.FragmentDefinition); ok {
			t.Fatalf("expected fragment definitions to be dropped after inlining")
		}
	}

	op, ok := firstOperation(normalized)
	if !ok {
		t.Fatalf("expected an operation definition")
	}
	field := op.SelectionSet[0].(*ast.Field)
	if len(field.SelectionSet) != 2 {
		t.Fatalf("expected fragment spread inlined to 2 sub-selections, got %d", len(field.SelectionSet))
	}
}

func TestNormalize_PreservesInlineFragmentTypeCondition(t *testing.T) {
	doc, err := operation.Parse(`query { node { ... on Product { id } ... on Review { body } } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	normalized := operation.Normalize(doc)

	op, _ := firstOperation(normalized)
	field := op.SelectionSet[0].(*ast.Field)
	if len(field.SelectionSet) != 2 {
		t.Fatalf("expected two inline fragments, got %d", len(field.SelectionSet))
	}
	for _, sel := range field.SelectionSet {
		inline, ok := sel.(*ast.InlineFragment)
		if !ok {
			t.Fatalf("expected inline fragment selections")
		}
		if inline.TypeCondition == nil || inline.TypeCondition.String() == "" {
			t.Fatalf("expected inline fragment type condition to survive normalization")
		}
	}
}
