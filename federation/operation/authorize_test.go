package operation_test

import (
	"testing"

	"github.com/n9te9/federation-router/federation/graph"
	"github.com/n9te9/federation-router/federation/operation"
	"github.com/n9te9/graphql-parser/ast"
)

func mustSubGraph(t *testing.T, name, host, schema string) *graph.SubGraphV2 {
	t.Helper()
	sg, err := graph.NewSubGraphV2(name, []byte(schema), host)
	if err != nil {
		t.Fatalf("NewSubGraphV2: %v", err)
	}
	return sg
}

func userSuperGraph(t *testing.T) *graph.SuperGraphV2 {
	schema := `
		type User @key(fields: "id") {
			id: ID!
			name: String
			secret: String @authenticated
			balance: String @requiresScopes(scopes: [["read:billing"]])
		}
	`
	sg := mustSubGraph(t, "users", "http://users", schema)
	return &graph.SuperGraphV2{
		SubGraphs: []*graph.SubGraphV2{sg},
		Schema:    &ast.Document{},
	}
}

func TestAuthorize_FilterMode_StripsUnauthenticatedField(t *testing.T) {
	sg := userSuperGraph(t)
	doc, err := operation.Parse(`query { user { id name secret } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	removed, err := operation.Authorize(doc, sg, nil, operation.ModeFilter)
	if err != nil {
		t.Fatalf("unexpected error in filter mode: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("expected one field removed, got %d: %v", len(removed), removed)
	}

	op, _ := firstOperation(doc)
	userField := op.SelectionSet[0].(*ast.Field)
	if len(userField.SelectionSet) != 2 {
		t.Fatalf("expected secret to be stripped, leaving 2 fields, got %d", len(userField.SelectionSet))
	}
	for _, sel := range userField.SelectionSet {
		if sel.(*ast.Field).Name.String() == "secret" {
			t.Fatalf("secret should have been removed")
		}
	}
}

func TestAuthorize_RejectMode_AbortsOnFirstViolation(t *testing.T) {
	sg := userSuperGraph(t)
	doc, err := operation.Parse(`query { user { id secret } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	_, err = operation.Authorize(doc, sg, nil, operation.ModeReject)
	if err == nil {
		t.Fatalf("expected an authorization error")
	}
	if _, ok := err.(*operation.AuthError); !ok {
		t.Fatalf("expected *AuthError, got %T", err)
	}
}

func TestAuthorize_AuthenticatedClaimsAllowsField(t *testing.T) {
	sg := userSuperGraph(t)
	doc, err := operation.Parse(`query { user { id secret } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	claims := &operation.Claims{Subject: "user-1"}
	removed, err := operation.Authorize(doc, sg, claims, operation.ModeFilter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("expected no fields removed once authenticated, got %v", removed)
	}
}

func TestAuthorize_RequiresScopes(t *testing.T) {
	sg := userSuperGraph(t)
	doc, err := operation.Parse(`query { user { id balance } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	withoutScope := &operation.Claims{Subject: "user-1", Scopes: map[string]bool{}}
	removed, err := operation.Authorize(doc, sg, withoutScope, operation.ModeFilter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("expected balance removed without scope, got %v", removed)
	}

	withScope := &operation.Claims{Subject: "user-1", Scopes: map[string]bool{"read:billing": true}}
	doc2, _ := operation.Parse(`query { user { id balance } }`)
	removed2, err := operation.Authorize(doc2, sg, withScope, operation.ModeFilter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed2) != 0 {
		t.Fatalf("expected balance kept with matching scope, got %v", removed2)
	}
}
