package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultJWKSCacheTTL = 5 * time.Minute
	// jwksMinRefresh bounds how often an unknown kid can force a refetch.
	jwksMinRefresh = 30 * time.Second
	jwksTimeout    = 10 * time.Second
)

var jwksHTTP = &http.Client{
	Timeout:   jwksTimeout,
	Transport: otelhttp.NewTransport(http.DefaultTransport),
}

// JWKSKey is one RSA entry of a JSON Web Key Set.
type JWKSKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JWKSResponse struct {
	Keys []JWKSKey `json:"keys"`
}

func (k JWKSKey) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("kid %s: modulus: %w", k.Kid, err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("kid %s: exponent: %w", k.Kid, err)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil
}

// JWKSCache holds the issuer's signing keys. Keys are refreshed after ttl, or
// early when a token names a kid the cache has not seen.
type JWKSCache struct {
	url string
	ttl time.Duration

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewJWKSCache(jwksURL string, ttl time.Duration) *JWKSCache {
	return &JWKSCache{url: jwksURL, ttl: ttl}
}

func (c *JWKSCache) GetKey(kid string) (*rsa.PublicKey, error) {
	return c.key(context.Background(), kid)
}

func (c *JWKSCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	age := time.Since(c.fetchedAt)
	key, ok := c.keys[kid]
	stale := c.keys == nil || age > c.ttl
	if ok && !stale {
		return key, nil
	}
	if stale || age > jwksMinRefresh {
		if err := c.refresh(ctx); err != nil {
			if ok {
				// Keep serving a known key while the endpoint is down.
				return key, nil
			}
			return nil, err
		}
		key, ok = c.keys[kid]
	}
	if !ok {
		return nil, fmt.Errorf("signing key %q not in JWKS", kid)
	}
	return key, nil
}

// refresh must be called with c.mu held.
func (c *JWKSCache) refresh(ctx context.Context) error {
	var set JWKSResponse
	if err := getJSON(ctx, c.url, &set); err != nil {
		return fmt.Errorf("fetch JWKS: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		if pub, err := k.publicKey(); err == nil {
			keys[k.Kid] = pub
		}
	}
	c.keys = keys
	c.fetchedAt = time.Now()
	return nil
}

func jwksKeyFunc(jwksURL string) jwt.Keyfunc {
	cache := NewJWKSCache(jwksURL, defaultJWKSCacheTTL)
	return func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return cache.GetKey(kid)
	}
}

// DiscoverJWKSURL reads jwks_uri from the issuer's OpenID configuration.
func DiscoverJWKSURL(issuerURL string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), jwksTimeout)
	defer cancel()

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	wellKnown := strings.TrimRight(issuerURL, "/") + "/.well-known/openid-configuration"
	if err := getJSON(ctx, wellKnown, &doc); err != nil {
		return "", fmt.Errorf("openid discovery: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("openid discovery: no jwks_uri in %s", wellKnown)
	}
	return doc.JWKSURI, nil
}

func getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := jwksHTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
