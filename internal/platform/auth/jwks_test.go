package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func newJWKSServer(t *testing.T, key *rsa.PublicKey, kid string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(JWKSResponse{Keys: []JWKSKey{{
			Kty: "RSA",
			Kid: kid,
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"jwks_uri": srv.URL + "/jwks"})
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestJWTMiddleware_JWKS(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, &priv.PublicKey, "k1")

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "tutor-9",
			Issuer:    srv.URL,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{"tutor"},
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signRS256(t, priv, "k1", claims))

	handler := func(c echo.Context) error {
		if uid := UserIDFromContext(c.Request().Context()); uid != "tutor-9" {
			t.Errorf("expected tutor-9, got %s", uid)
		}
		return nil
	}

	// jwks_uri comes from discovery when only the issuer is configured.
	if err := runMiddleware(t, JWTMiddleware(JWTConfig{Issuer: srv.URL}), req, handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJWKSCache_UnknownKid(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, &priv.PublicKey, "k1")

	cache := NewJWKSCache(srv.URL+"/jwks", time.Minute)
	if _, err := cache.GetKey("k1"); err != nil {
		t.Fatalf("expected k1 to resolve, got %v", err)
	}
	if _, err := cache.GetKey("k2"); err == nil {
		t.Error("expected error for unknown kid")
	}
}

func TestDiscoverJWKSURL_Missing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"issuer":"x"}`))
	}))
	defer srv.Close()

	if _, err := DiscoverJWKSURL(srv.URL); err == nil {
		t.Error("expected error when jwks_uri is absent")
	}
}

func TestJWKSCache_ThrottlesRefetchOnUnknownKid(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(JWKSResponse{Keys: []JWKSKey{{
			Kty: "RSA",
			Kid: "k1",
			N:   base64.RawURLEncoding.EncodeToString(priv.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := cache.GetKey("k1"); err != nil {
			t.Fatalf("expected k1 to resolve, got %v", err)
		}
	}
	if _, err := cache.GetKey("rotated"); err == nil {
		t.Error("expected error for unknown kid")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected a single JWKS fetch, got %d", n)
	}
}
