package operation_test

import (
	"testing"

	"github.com/n9te9/federation-router/federation/operation"
)

func TestCheckBodySize(t *testing.T) {
	tests := []struct {
		name      string
		bodyLen   int
		limits    operation.Limits
		expectErr bool
	}{
		{name: "under limit", bodyLen: 10, limits: operation.Limits{MaxRequestBodySize: 100}},
		{name: "over limit", bodyLen: 200, limits: operation.Limits{MaxRequestBodySize: 100}, expectErr: true},
		{name: "disabled", bodyLen: 1 << 20, limits: operation.Limits{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := operation.CheckBodySize(tt.bodyLen, tt.limits)
			if tt.expectErr && err == nil {
				t.Fatalf("expected error, got none")
			}
			if !tt.expectErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckComplexity_MaxDepth(t *testing.T) {
	query := `query { a { b { c { d } } } }`
	doc, err := operation.Parse(query)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if err := operation.CheckComplexity(query, doc, operation.Limits{MaxDepth: 2}); err == nil {
		t.Fatalf("expected max_depth violation")
	}
	if err := operation.CheckComplexity(query, doc, operation.Limits{MaxDepth: 10}); err != nil {
		t.Fatalf("unexpected error under generous limit: %v", err)
	}
}

func TestCheckComplexity_MaxAliases(t *testing.T) {
	query := `query { a: product { id } b: product { id } }`
	doc, err := operation.Parse(query)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if err := operation.CheckComplexity(query, doc, operation.Limits{MaxAliases: 1}); err == nil {
		t.Fatalf("expected max_aliases violation")
	}
}

func TestCheckComplexity_MaxDirectives(t *testing.T) {
	query := `query($skip: Boolean!) { product { id @skip(if: $skip) name @skip(if: $skip) } }`
	doc, err := operation.Parse(query)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if err := operation.CheckComplexity(query, doc, operation.Limits{MaxDirectives: 1}); err == nil {
		t.Fatalf("expected max_directives violation")
	}
}

func TestCheckComplexity_MaxTokens(t *testing.T) {
	query := `query { product { id name description price } }`
	if err := operation.CheckComplexity(query, nil, operation.Limits{MaxTokens: 1}); err == nil {
		t.Fatalf("expected max_tokens violation")
	}
	if err := operation.CheckComplexity(query, nil, operation.Limits{MaxTokens: 1000}); err != nil {
		t.Fatalf("unexpected error under generous token limit: %v", err)
	}
}
