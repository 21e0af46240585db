package operation_test

import (
	"testing"

	"github.com/n9te9/federation-router/federation/operation"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		expectErr bool
	}{
		{
			name:  "simple query",
			query: `query { product(id: "1") { id name } }`,
		},
		{
			name:      "syntax error",
			query:     `query { product(id: "1") { id name`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := operation.Parse(tt.query)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc == nil || len(doc.Definitions) == 0 {
				t.Fatalf("expected a parsed document with definitions")
			}
		})
	}
}
