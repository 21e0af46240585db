package source_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/n9te9/federation-router/federation/source"
)

func TestRegistrationSourceRegisterAndRecompose(t *testing.T) {
	pub := source.NewPublisher()
	rs := source.NewRegistrationSource(pub)

	body := source.RegistrationRequest{
		RegistrationGraphs: []source.RegistrationGraph{
			{
				Name: "products",
				Host: "http://products.example.com",
				SDL: `
					type Product @key(fields: "id") {
						id: ID!
						name: String!
					}
					type Query {
						product(id: ID!): Product
					}
				`,
			},
		},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/schema/registration", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	rs.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	snap := pub.Load()
	if snap == nil {
		t.Fatal("expected a published snapshot after registration")
	}
	if len(snap.Specs) != 1 || snap.Specs[0].Name != "products" {
		t.Fatalf("unexpected specs: %+v", snap.Specs)
	}
}

func TestRegistrationSourceRejectsWrongMethod(t *testing.T) {
	pub := source.NewPublisher()
	rs := source.NewRegistrationSource(pub)

	req := httptest.NewRequest(http.MethodGet, "/schema/registration", nil)
	rec := httptest.NewRecorder()
	rs.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestRegistrationSourceResubmissionReplaces(t *testing.T) {
	pub := source.NewPublisher()
	rs := source.NewRegistrationSource(pub)

	register := func(sdl string) {
		t.Helper()
		body := source.RegistrationRequest{
			RegistrationGraphs: []source.RegistrationGraph{
				{Name: "products", Host: "http://products.example.com", SDL: sdl},
			},
		}
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/schema/registration", bytes.NewReader(raw))
		rec := httptest.NewRecorder()
		rs.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("registration failed: %d %s", rec.Code, rec.Body.String())
		}
	}

	register(`type Query { a: String }`)
	first := pub.Load()

	register(`type Query { a: String b: String }`)
	second := pub.Load()

	if first == second {
		t.Fatal("expected resubmission to publish a new snapshot")
	}
}
