package subgraphclient

import (
	"net/http"
	"strings"
)

// RouteExpression resolves a per-request subgraph host override from a
// small, deliberately non-Turing-complete grammar configured per subgraph:
//
//	{{.Header.X-Route-Override}} || {{.default}}
//
// Each alternative is tried left to right; the first one that resolves to a
// non-empty string wins. "{{.default}}" always resolves to the statically
// configured host, guaranteeing the expression can never fail outright. No
// general-purpose scripting language is embedded here on purpose: operators
// can only interpolate an inbound header or fall back to the default.
type RouteExpression struct {
	alternatives []routeToken
}

type routeToken struct {
	literal   string
	headerKey string
	isDefault bool
}

// ParseRouteExpression compiles expr. An expression with no "||" separator
// is treated as a single alternative.
func ParseRouteExpression(expr string) *RouteExpression {
	parts := strings.Split(expr, "||")
	alternatives := make([]routeToken, 0, len(parts))
	for _, part := range parts {
		alternatives = append(alternatives, parseToken(strings.TrimSpace(part)))
	}
	return &RouteExpression{alternatives: alternatives}
}

func parseToken(part string) routeToken {
	if part == "{{.default}}" {
		return routeToken{isDefault: true}
	}
	if strings.HasPrefix(part, "{{.Header.") && strings.HasSuffix(part, "}}") {
		key := strings.TrimSuffix(strings.TrimPrefix(part, "{{.Header."), "}}")
		return routeToken{headerKey: key}
	}
	return routeToken{literal: part}
}

// Resolve evaluates the expression against an inbound request's headers,
// falling back to defaultHost for any "{{.default}}" alternative.
func (e *RouteExpression) Resolve(headers http.Header, defaultHost string) string {
	for _, tok := range e.alternatives {
		switch {
		case tok.isDefault:
			if defaultHost != "" {
				return defaultHost
			}
		case tok.headerKey != "":
			if v := headers.Get(tok.headerKey); v != "" {
				return v
			}
		case tok.literal != "":
			return tok.literal
		}
	}
	return defaultHost
}
