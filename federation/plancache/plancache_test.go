package plancache_test

import (
	"context"
	"testing"

	"github.com/n9te9/federation-router/federation/plancache"
	"github.com/n9te9/federation-router/federation/planner"
)

func TestFingerprint_StableAcrossFormatting(t *testing.T) {
	a := plancache.Fingerprint(`query{ product(id:"1"){ id name } }`, "", map[string]interface{}{"id": "1"})
	b := plancache.Fingerprint("query {\n  product(id: \"1\") {\n    id\n    name\n  }\n}\n", "", map[string]interface{}{"id": "1"})
	if a != b {
		t.Fatalf("expected formatting-insensitive fingerprints, got %q and %q", a, b)
	}
}

func TestFingerprint_DiffersOnOperationName(t *testing.T) {
	a := plancache.Fingerprint(`query { product { id } }`, "A", nil)
	b := plancache.Fingerprint(`query { product { id } }`, "B", nil)
	if a == b {
		t.Fatalf("expected different operation names to fingerprint differently")
	}
}

func TestFingerprint_IgnoresVariableValuesButNotNames(t *testing.T) {
	a := plancache.Fingerprint(`query { product { id } }`, "", map[string]interface{}{"id": "1"})
	b := plancache.Fingerprint(`query { product { id } }`, "", map[string]interface{}{"id": "2"})
	if a != b {
		t.Fatalf("expected variable values to not affect fingerprint")
	}

	c := plancache.Fingerprint(`query { product { id } }`, "", map[string]interface{}{"other": "2"})
	if a == c {
		t.Fatalf("expected different variable names to change the fingerprint")
	}
}

func TestCache_GetOrBuild_CachesAndCoalesces(t *testing.T) {
	cache, err := plancache.NewCache(4, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	calls := 0
	build := func() (*planner.PlanV2, error) {
		calls++
		return &planner.PlanV2{OperationType: "query"}, nil
	}

	p1, err := cache.GetOrBuild(context.Background(), "fp-1", build)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := cache.GetOrBuild(context.Background(), "fp-1", build)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected build to run once, ran %d times", calls)
	}
	if p1 != p2 {
		t.Fatalf("expected the same cached plan instance to be returned")
	}
}

func TestCache_DisabledWhenMaxEntriesNonPositive(t *testing.T) {
	cache, err := plancache.NewCache(0, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	calls := 0
	build := func() (*planner.PlanV2, error) {
		calls++
		return &planner.PlanV2{}, nil
	}

	if _, err := cache.GetOrBuild(context.Background(), "fp", build); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.GetOrBuild(context.Background(), "fp", build); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected a disabled cache to rebuild every call, got %d calls", calls)
	}
}
