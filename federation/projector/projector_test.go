package projector_test

import (
	"testing"

	"github.com/n9te9/federation-router/federation/operation"
	"github.com/n9te9/federation-router/federation/projector"
)

func TestProject_PreservesSelectionOrderAndAlias(t *testing.T) {
	doc, err := operation.Parse(`query { product { displayName: name id } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	data := map[string]interface{}{
		"product": map[string]interface{}{
			"id":   "1",
			"name": "Widget",
		},
	}

	out, err := projector.Project(doc, data)
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	b, err := out.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(b)
	want := `{"product":{"displayName":"Widget","id":"1"}}`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestProject_DispatchesInlineFragmentByTypename(t *testing.T) {
	doc, err := operation.Parse(`
		query {
			node {
				__typename
				... on Product { name }
				... on Review { body }
			}
		}
	`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	data := map[string]interface{}{
		"node": map[string]interface{}{
			"__typename": "Product",
			"name":       "Widget",
			"body":       "should not surface on a Product",
		},
	}

	out, err := projector.Project(doc, data)
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	b, _ := out.MarshalJSON()
	got := string(b)
	want := `{"node":{"__typename":"Product","name":"Widget"}}`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestProject_ListOfAbstractTypeDispatchesPerElement(t *testing.T) {
	doc, err := operation.Parse(`
		query {
			nodes {
				__typename
				... on Product { name }
				... on Review { body }
			}
		}
	`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	data := map[string]interface{}{
		"nodes": []interface{}{
			map[string]interface{}{"__typename": "Product", "name": "Widget", "body": "x"},
			map[string]interface{}{"__typename": "Review", "name": "y", "body": "Great!"},
		},
	}

	out, err := projector.Project(doc, data)
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	b, _ := out.MarshalJSON()
	got := string(b)
	want := `{"nodes":[{"__typename":"Product","name":"Widget"},{"__typename":"Review","body":"Great!"}]}`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestProject_MissingFieldProjectsNull(t *testing.T) {
	doc, err := operation.Parse(`query { product { id name } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	data := map[string]interface{}{
		"product": map[string]interface{}{"id": "1"},
	}

	out, err := projector.Project(doc, data)
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	b, _ := out.MarshalJSON()
	want := `{"product":{"id":"1","name":null}}`
	if string(b) != want {
		t.Fatalf("got %s, want %s", string(b), want)
	}
}
