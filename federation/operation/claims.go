package operation

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the authorization filter's view of a verified bearer token: the
// scope set it carries, for matching against field-level @requiresScopes.
type Claims struct {
	Subject string
	Scopes  map[string]bool
	Expiry  time.Time
}

// HasScope reports whether claims carries every scope in group. A nil
// Claims (no/invalid token) has no scopes.
func (c *Claims) HasScope(group []string) bool {
	if c == nil {
		return len(group) == 0
	}
	for _, s := range group {
		if !c.Scopes[s] {
			return false
		}
	}
	return true
}

// scopesFromClaim parses the `scope` claim, which the spec allows as either
// a JSON array of strings or a single whitespace-separated string.
func scopesFromClaim(raw interface{}) map[string]bool {
	scopes := make(map[string]bool)
	switch v := raw.(type) {
	case string:
		for _, s := range strings.Fields(v) {
			scopes[s] = true
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes[s] = true
			}
		}
	}
	return scopes
}

// cachedClaims is a claim cache entry; cachedUntil is min(now+ttl, exp).
type cachedClaims struct {
	claims      *Claims
	cachedUntil time.Time
}

// ClaimCache amortizes JWT decode cost across a burst of requests bearing
// the same token, keyed by the raw token string, with a TTL floored by the
// token's own exp so nothing is ever served past expiry.
type ClaimCache struct {
	ttl   time.Duration
	mu    sync.Mutex
	cache map[string]cachedClaims
}

// NewClaimCache returns a ClaimCache with the given TTL ceiling (typically
// ~5s; the effective TTL for any one token is min(ttl, token exp - now)).
func NewClaimCache(ttl time.Duration) *ClaimCache {
	return &ClaimCache{ttl: ttl, cache: make(map[string]cachedClaims)}
}

func (c *ClaimCache) get(token string) (*Claims, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[token]
	if !ok || time.Now().After(entry.cachedUntil) {
		delete(c.cache, token)
		return nil, false
	}
	return entry.claims, true
}

func (c *ClaimCache) put(token string, claims *Claims) {
	ttl := c.ttl
	if until := time.Until(claims.Expiry); claims.Expiry.After(time.Time{}) && until < ttl {
		ttl = until
	}
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[token] = cachedClaims{claims: claims, cachedUntil: time.Now().Add(ttl)}
}

// Verifier decodes and validates a bearer JWT into Claims using a
// statically configured key, caching successful decodes in a ClaimCache.
type Verifier struct {
	keyFunc jwt.Keyfunc
	cache   *ClaimCache
}

// NewVerifier builds a Verifier whose keyFunc supplies the verification key
// (RSA public key or HMAC secret, as returned by ParseRSAPublicKeyFromPEM or a
// raw []byte secret). The accepted signing methods are fixed in Verify.
func NewVerifier(keyFunc jwt.Keyfunc, cache *ClaimCache) *Verifier {
	return &Verifier{keyFunc: keyFunc, cache: cache}
}

// Verify decodes tokenString into Claims, consulting/populating the claim
// cache first.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if v.cache != nil {
		if claims, ok := v.cache.get(tokenString); ok {
			return claims, nil
		}
	}

	token, err := jwt.Parse(tokenString, v.keyFunc, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "HS256", "HS384", "HS512"}))
	if err != nil {
		return nil, err
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}

	claims := &Claims{
		Scopes: scopesFromClaim(mapClaims["scope"]),
	}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.Expiry = exp.Time
	}

	if v.cache != nil {
		v.cache.put(tokenString, claims)
	}

	return claims, nil
}

// BearerToken extracts the token from a standard `Authorization: Bearer
// <token>` header value. The second return is false when the header is
// absent or not bearer-shaped.
func BearerToken(authorizationHeader string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorizationHeader, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authorizationHeader, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
