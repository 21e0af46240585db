package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/n9te9/federation-router/federation/source"
)

func writeSchemaFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write schema file: %v", err)
	}
	return path
}

func testGatewayWithSchema(t *testing.T, host, schema string) *gateway {
	t.Helper()
	dir := t.TempDir()
	path := writeSchemaFile(t, dir, "product.graphql", schema)

	gw, err := NewGateway(GatewayOption{
		Endpoint:    "/graphql",
		ServiceName: "test-gateway",
		Services: []GatewayService{
			{Name: "product", Host: host, SchemaFiles: []string{path}},
		},
	})
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	return gw
}

const inaccessibleSchema = `
type Product @key(fields: "id") {
	id: ID!
	name: String!
	internalCode: String! @inaccessible
}

type Query {
	product(id: ID!): Product
}`

func TestGateway_RejectsInaccessibleField(t *testing.T) {
	gw := testGatewayWithSchema(t, "http://product.example.com", inaccessibleSchema)

	body, _ := json.Marshal(map[string]any{
		"query": `{ product(id: "1") { id internalCode } }`,
	})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["errors"] == nil {
		t.Fatalf("expected an INACCESSIBLE_FIELD error, got %s", rec.Body.String())
	}
}

func TestGateway_RejectsNonPOST(t *testing.T) {
	gw := testGatewayWithSchema(t, "http://product.example.com", inaccessibleSchema)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestGateway_RejectsCSRFUnsafeContentType(t *testing.T) {
	gw := testGatewayWithSchema(t, "http://product.example.com", inaccessibleSchema)

	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader([]byte(`query={id}`)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestGateway_AllowsCSRFUnsafeContentTypeWithPreflightHeader(t *testing.T) {
	gw := testGatewayWithSchema(t, "http://product.example.com", inaccessibleSchema)

	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader([]byte(`{"query":"{ product(id: \"1\") { id } }"}`)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Apollo-Require-Preflight", "true")
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code == http.StatusForbidden {
		t.Fatalf("preflight header should bypass CSRF prevention, got 403")
	}
}

func TestGateway_ExecutesQueryAgainstSubgraph(t *testing.T) {
	subgraph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"product":{"id":"1","name":"Widget"}}}`))
	}))
	defer subgraph.Close()

	gw := testGatewayWithSchema(t, subgraph.URL, `
type Product @key(fields: "id") {
	id: ID!
	name: String!
}

type Query {
	product(id: ID!): Product
}`)

	body, _ := json.Marshal(map[string]any{
		"query": `{ product(id: "1") { id name } }`,
	})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["errors"] != nil {
		t.Fatalf("unexpected errors: %v", resp["errors"])
	}
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected a data object, got %T", resp["data"])
	}
	product, ok := data["product"].(map[string]any)
	if !ok || product["name"] != "Widget" {
		t.Fatalf("unexpected data: %v", data)
	}
}

func TestGateway_PersistedQueryRequiredWhenArbitraryDisallowed(t *testing.T) {
	dir := t.TempDir()
	path := writeSchemaFile(t, dir, "product.graphql", inaccessibleSchema)

	gw, err := NewGateway(GatewayOption{
		Endpoint: "/graphql",
		Services: []GatewayService{
			{Name: "product", Host: "http://product.example.com", SchemaFiles: []string{path}},
		},
		PersistedDocuments: PersistedDocumentsOption{Enabled: true, AllowArbitrary: false},
	})
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"query": `{ product(id: "1") { id } }`,
	})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for arbitrary operation when disallowed, got %d", rec.Code)
	}
}

func TestGateway_ServesBeforeFirstSnapshotAs503(t *testing.T) {
	gw := &gateway{publisher: source.NewPublisher()}

	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first snapshot, got %d", rec.Code)
	}
}
