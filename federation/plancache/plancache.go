// Package plancache memoizes prepared query plans by operation fingerprint,
// so repeated executions of the same operation (same document, operation
// name, and variable shape) skip planning entirely.
package plancache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/n9te9/federation-router/federation/planner"
	"github.com/n9te9/federation-router/telemetry"
)

// Cache holds prepared plans keyed by fingerprint. A single build running
// for a fingerprint is shared across concurrent callers that ask for the
// same fingerprint before it completes.
type Cache struct {
	lru         *lru.Cache[string, *planner.PlanV2]
	building    singleflight.Group
	instruments *telemetry.Instruments
}

// NewCache builds a Cache holding at most maxEntries prepared plans. A
// non-positive maxEntries disables caching: Get always misses and GetOrBuild
// always calls build.
func NewCache(maxEntries int, instruments *telemetry.Instruments) (*Cache, error) {
	if maxEntries <= 0 {
		return &Cache{instruments: instruments}, nil
	}
	l, err := lru.New[string, *planner.PlanV2](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l, instruments: instruments}, nil
}

// Get looks up a previously built plan by fingerprint.
func (c *Cache) Get(fingerprint string) (*planner.PlanV2, bool) {
	if c.lru == nil {
		return nil, false
	}
	return c.lru.Get(fingerprint)
}

// GetOrBuild returns the cached plan for fingerprint, or calls build and
// caches the result. Concurrent callers for the same fingerprint share one
// in-flight build.
func (c *Cache) GetOrBuild(ctx context.Context, fingerprint string, build func() (*planner.PlanV2, error)) (*planner.PlanV2, error) {
	if plan, ok := c.Get(fingerprint); ok {
		c.recordHit(ctx)
		return plan, nil
	}

	c.recordMiss(ctx)
	v, err, _ := c.building.Do(fingerprint, func() (interface{}, error) {
		plan, err := build()
		if err != nil {
			return nil, err
		}
		if c.lru != nil {
			c.lru.Add(fingerprint, plan)
		}
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*planner.PlanV2), nil
}

// Purge discards every cached plan, for use when the supergraph reloads and
// existing plans may route to subgraphs or fields that no longer exist.
func (c *Cache) Purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}

func (c *Cache) recordHit(ctx context.Context) {
	if c.instruments != nil {
		c.instruments.PlanCacheHits.Add(ctx, 1)
	}
}

func (c *Cache) recordMiss(ctx context.Context) {
	if c.instruments != nil {
		c.instruments.PlanCacheMisses.Add(ctx, 1)
	}
}

// Fingerprint identifies an operation for caching purposes: the minified
// query text, the operation name (for multi-operation documents), and the
// sorted set of variable names bound at request time. Two requests for the
// same operation with different variable VALUES but the same variable NAMES
// share a plan, since the plan only depends on the query shape.
func Fingerprint(rawQuery, operationName string, variables map[string]interface{}) string {
	h := sha256.New()
	h.Write([]byte(minify(rawQuery)))
	h.Write([]byte{0})
	h.Write([]byte(operationName))
	h.Write([]byte{0})

	names := make([]string, 0, len(variables))
	for k := range variables {
		names = append(names, k)
	}
	sort.Strings(names)
	h.Write([]byte(strings.Join(names, ",")))

	return hex.EncodeToString(h.Sum(nil))
}

// minify strips comments and collapses insignificant whitespace from raw
// GraphQL source, so two requests that differ only in formatting fingerprint
// identically.
func minify(raw string) string {
	var b strings.Builder
	n := len(raw)
	i := 0
	pendingSpace := false
	lastWasName := false

	isNameByte := func(c byte) bool {
		return c == '_' ||
			(c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9')
	}

	for i < n {
		c := raw[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',':
			pendingSpace = true
			i++

		case c == '#':
			for i < n && raw[i] != '\n' {
				i++
			}

		case c == '"':
			start := i
			i++
			for i < n && raw[i] != '"' {
				if raw[i] == '\\' && i+1 < n {
					i++
				}
				i++
			}
			i++
			if i > n {
				i = n
			}
			b.WriteString(raw[start:i])
			pendingSpace, lastWasName = false, false

		case isNameByte(c):
			// A space is only significant between two adjacent name tokens.
			if pendingSpace && lastWasName {
				b.WriteByte(' ')
			}
			start := i
			for i < n && isNameByte(raw[i]) {
				i++
			}
			b.WriteString(raw[start:i])
			pendingSpace, lastWasName = false, true

		default:
			b.WriteByte(c)
			i++
			pendingSpace, lastWasName = false, false
		}
	}

	return strings.TrimSpace(b.String())
}
