package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

var oidcTestNow = time.Unix(1_700_000_000, 0)

type jwksFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	mu       sync.Mutex
	requests int
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	fixture := &jwksFixture{key: key}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "key1", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}
	fixture.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture.mu.Lock()
		fixture.requests++
		fixture.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(fixture.server.Close)
	return fixture
}

func (f *jwksFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "key1"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWKSCache_KeyCachesKeys(t *testing.T) {
	fixture := newJWKSFixture(t)
	cache := NewJWKSCache(fixture.server.URL, nil, func() time.Time { return oidcTestNow })

	for i := 0; i < 2; i++ {
		got, err := cache.Key(context.Background(), "key1")
		if err != nil {
			t.Fatalf("cache.Key: %v", err)
		}
		if _, ok := got.(*rsa.PublicKey); !ok {
			t.Fatalf("expected *rsa.PublicKey, got %T", got)
		}
	}

	fixture.mu.Lock()
	defer fixture.mu.Unlock()
	if fixture.requests != 1 {
		t.Fatalf("expected single JWKS fetch, got %d", fixture.requests)
	}
}

func TestJWKSCache_UnknownKey(t *testing.T) {
	fixture := newJWKSFixture(t)
	cache := NewJWKSCache(fixture.server.URL, nil, func() time.Time { return oidcTestNow })

	if _, err := cache.Key(context.Background(), "missing"); !errors.Is(err, ErrJWKSKeyNotFound) {
		t.Fatalf("expected ErrJWKSKeyNotFound, got %v", err)
	}
}

func TestRequireOIDC(t *testing.T) {
	fixture := newJWKSFixture(t)
	validator := NewOIDCValidator(NewJWKSCache(fixture.server.URL, nil, func() time.Time { return oidcTestNow }), nil, func() time.Time { return oidcTestNow })
	middleware := validator.RequireOIDC("https://store.example.com", []string{"https://accounts.google.com"})

	baseClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":   "https://accounts.google.com",
			"aud":   "https://store.example.com",
			"sub":   "scheduler",
			"email": "scheduler@store.iam.gserviceaccount.com",
			"exp":   oidcTestNow.Add(time.Hour).Unix(),
		}
	}

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
		header bool
		status int
	}{
		{name: "valid", header: true, status: http.StatusNoContent},
		{name: "missing token", status: http.StatusUnauthorized},
		{name: "wrong audience", header: true, mutate: func(c jwt.MapClaims) { c["aud"] = "https://other.example.com" }, status: http.StatusUnauthorized},
		{name: "wrong issuer", header: true, mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }, status: http.StatusUnauthorized},
		{name: "expired", header: true, mutate: func(c jwt.MapClaims) { c["exp"] = oidcTestNow.Add(-time.Minute).Unix() }, status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := baseClaims()
			if tt.mutate != nil {
				tt.mutate(claims)
			}
			handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, ok := ServiceIdentityFromContext(r.Context())
				if !ok || identity.Email != "scheduler@store.iam.gserviceaccount.com" {
					t.Fatalf("expected service identity, got %+v", identity)
				}
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/anonymous-cleanup", nil)
			if tt.header {
				req.Header.Set("Authorization", "Bearer "+fixture.sign(t, claims))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d (%s)", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRequireOIDC_UnconfiguredAudience(t *testing.T) {
	validator := NewOIDCValidator(NewJWKSCache("http://127.0.0.1:0", nil, nil), nil, nil)
	handler := validator.RequireOIDC("", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be called")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/maintenance/anonymous-cleanup", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
