package lineauth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testChannelID = "1650000000"
	testSecret    = "channel-secret"
	testIssuer    = "https://access.line.me"
)

type fakeLINE struct {
	server     *httptest.Server
	key        *ecdsa.PrivateKey
	idToken    string
	jwksHits   atomic.Int32
	tokenForms []url.Values
}

func newFakeLINE(t *testing.T) *fakeLINE {
	t.Helper()
	key, errKey := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if errKey != nil {
		t.Fatalf("generate key: %v", errKey)
	}
	f := &fakeLINE{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/v2.1/token", func(w http.ResponseWriter, r *http.Request) {
		if errParse := r.ParseForm(); errParse != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		f.tokenForms = append(f.tokenForms, r.PostForm)
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access",
			"token_type":   "Bearer",
			"expires_in":   2592000,
			"scope":        "openid profile",
			"id_token":     f.idToken,
		})
	})
	mux.HandleFunc("/oauth2/v2.1/certs", func(w http.ResponseWriter, r *http.Request) {
		f.jwksHits.Add(1)
		point, errBytes := key.PublicKey.Bytes()
		if errBytes != nil {
			http.Error(w, "bad key", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "EC",
				"crv": "P-256",
				"kid": "kid-1",
				"alg": "ES256",
				"use": "sig",
				"x":   base64.RawURLEncoding.EncodeToString(point[1:33]),
				"y":   base64.RawURLEncoding.EncodeToString(point[33:]),
			}},
		})
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeLINE) config() Config {
	return Config{
		ChannelID:     testChannelID,
		ChannelSecret: testSecret,
		RedirectURL:   "http://localhost:3000/auth/callback",
		AuthURL:       f.server.URL + "/oauth2/v2.1/authorize",
		TokenURL:      f.server.URL + "/oauth2/v2.1/token",
		JWKSURL:       f.server.URL + "/oauth2/v2.1/certs",
		Issuer:        testIssuer,
		HTTPClient:    f.server.Client(),
	}
}

func testClaims(nonce string) IDTokenClaims {
	now := time.Now()
	return IDTokenClaims{
		Name:    "Alice",
		Picture: "https://profile.line-scdn.net/alice",
		Email:   "alice@example.com",
		Nonce:   nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "U1234567890abcdef",
			Audience:  jwt.ClaimStrings{testChannelID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func signHS256(t *testing.T, claims IDTokenClaims, secret string) string {
	t.Helper()
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}
	return signed
}

func signES256(t *testing.T, claims IDTokenClaims, key *ecdsa.PrivateKey, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = kid
	signed, errSign := token.SignedString(key)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}
	return signed
}

func TestAuthCodeURL(t *testing.T) {
	f := newFakeLINE(t)
	client := NewClient(f.config())

	raw := client.AuthCodeURL("state-abc", "nonce-xyz")
	parsed, errParse := url.Parse(raw)
	if errParse != nil {
		t.Fatalf("parse url: %v", errParse)
	}
	q := parsed.Query()
	checks := map[string]string{
		"response_type": "code",
		"client_id":     testChannelID,
		"redirect_uri":  "http://localhost:3000/auth/callback",
		"scope":         "openid profile",
		"state":         "state-abc",
		"nonce":         "nonce-xyz",
	}
	for key, want := range checks {
		if got := q.Get(key); got != want {
			t.Fatalf("param %s = %q, want %q", key, got, want)
		}
	}
	if parsed.Path != "/oauth2/v2.1/authorize" {
		t.Fatalf("unexpected path %q", parsed.Path)
	}
}

func TestExchangeHS256(t *testing.T) {
	f := newFakeLINE(t)
	f.idToken = signHS256(t, testClaims("nonce-1"), testSecret)
	client := NewClient(f.config())

	identity, errExchange := client.Exchange(context.Background(), "good-code", "nonce-1")
	if errExchange != nil {
		t.Fatalf("exchange: %v", errExchange)
	}
	if identity.UserID != "U1234567890abcdef" || identity.DisplayName != "Alice" || identity.Email != "alice@example.com" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if len(f.tokenForms) != 1 {
		t.Fatalf("expected one token request, got %d", len(f.tokenForms))
	}
	form := f.tokenForms[0]
	if form.Get("client_id") != testChannelID || form.Get("client_secret") != testSecret {
		t.Fatalf("expected client credentials in form, got %v", form)
	}
	if form.Get("redirect_uri") != "http://localhost:3000/auth/callback" {
		t.Fatalf("unexpected redirect_uri %q", form.Get("redirect_uri"))
	}
}

func TestExchangeRejectsBadCode(t *testing.T) {
	f := newFakeLINE(t)
	client := NewClient(f.config())

	_, errExchange := client.Exchange(context.Background(), "bad-code", "n")
	if !errors.Is(errExchange, ErrExchange) {
		t.Fatalf("expected ErrExchange, got %v", errExchange)
	}
	_, errEmpty := client.Exchange(context.Background(), "  ", "n")
	if !errors.Is(errEmpty, ErrExchange) {
		t.Fatalf("expected ErrExchange for empty code, got %v", errEmpty)
	}
}

func TestExchangeRejectsNonceMismatch(t *testing.T) {
	f := newFakeLINE(t)
	f.idToken = signHS256(t, testClaims("nonce-1"), testSecret)
	client := NewClient(f.config())

	_, errExchange := client.Exchange(context.Background(), "good-code", "other")
	if !errors.Is(errExchange, ErrInvalidIDToken) {
		t.Fatalf("expected ErrInvalidIDToken, got %v", errExchange)
	}
}

func TestVerifyES256WithJWKS(t *testing.T) {
	f := newFakeLINE(t)
	cfg := f.config()
	verifier := NewVerifier(cfg.ChannelID, cfg.ChannelSecret, cfg.Issuer, NewJWKSCache(cfg.JWKSURL, cfg.HTTPClient))

	raw := signES256(t, testClaims("n"), f.key, "kid-1")
	for i := 0; i < 3; i++ {
		claims, errVerify := verifier.Verify(context.Background(), raw, "n")
		if errVerify != nil {
			t.Fatalf("verify: %v", errVerify)
		}
		if claims.Subject != "U1234567890abcdef" {
			t.Fatalf("unexpected subject %q", claims.Subject)
		}
	}
	if hits := f.jwksHits.Load(); hits != 1 {
		t.Fatalf("expected jwks cached after first fetch, got %d fetches", hits)
	}

	unknown := signES256(t, testClaims("n"), f.key, "kid-2")
	if _, errVerify := verifier.Verify(context.Background(), unknown, "n"); !errors.Is(errVerify, ErrInvalidIDToken) {
		t.Fatalf("expected unknown kid rejected, got %v", errVerify)
	}
}

func TestVerifyRejectsBadClaims(t *testing.T) {
	f := newFakeLINE(t)
	cfg := f.config()
	verifier := NewVerifier(cfg.ChannelID, cfg.ChannelSecret, cfg.Issuer, NewJWKSCache(cfg.JWKSURL, cfg.HTTPClient))

	cases := []struct {
		name   string
		mutate func(*IDTokenClaims)
		secret string
	}{
		{name: "audience", mutate: func(c *IDTokenClaims) { c.Audience = jwt.ClaimStrings{"someone-else"} }},
		{name: "issuer", mutate: func(c *IDTokenClaims) { c.Issuer = "https://evil.example" }},
		{name: "expired", mutate: func(c *IDTokenClaims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour)) }},
		{name: "no expiry", mutate: func(c *IDTokenClaims) { c.ExpiresAt = nil }},
		{name: "no subject", mutate: func(c *IDTokenClaims) { c.Subject = "" }},
		{name: "signature", secret: "wrong-secret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := testClaims("n")
			if tc.mutate != nil {
				tc.mutate(&claims)
			}
			secret := testSecret
			if tc.secret != "" {
				secret = tc.secret
			}
			raw := signHS256(t, claims, secret)
			if _, errVerify := verifier.Verify(context.Background(), raw, "n"); !errors.Is(errVerify, ErrInvalidIDToken) {
				t.Fatalf("expected ErrInvalidIDToken, got %v", errVerify)
			}
		})
	}
}

func TestAllowed(t *testing.T) {
	if !Allowed(nil, "U1") {
		t.Fatalf("empty allowlist should admit everyone")
	}
	if !Allowed([]string{"U1", "U2"}, "U2") {
		t.Fatalf("listed user should be admitted")
	}
	if Allowed([]string{"U1"}, "U3") {
		t.Fatalf("unlisted user should be rejected")
	}
}
