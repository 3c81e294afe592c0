package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/config"
)

func TestDevMode(t *testing.T) {
	v, err := NewVerifier(config.AuthConfig{Mode: "dev"})
	if err != nil {
		t.Fatal(err)
	}
	p, err := v.Verify("t1:Admin")
	if err != nil || p.Tenant != "t1" || p.Role != "admin" {
		t.Fatalf("got %+v, %v", p, err)
	}
	p, err = v.Verify(":platform")
	if err != nil || p.TenantScope() != nil || !p.CanAdmin() {
		t.Fatalf("platform principal %+v, %v", p, err)
	}
	if _, err := v.Verify("garbage"); err == nil {
		t.Fatal("expected error for malformed dev token")
	}
}

func TestHMACMode(t *testing.T) {
	v, err := NewVerifier(config.AuthConfig{Mode: "hmac", HMACSecret: "s3cret", Issuer: "storefront"})
	if err != nil {
		t.Fatal(err)
	}
	sign := func(secret string, c Claims) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
		if err != nil {
			t.Fatal(err)
		}
		return tok
	}
	good := Claims{Tenant: "t1", Role: "admin", RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "storefront",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	p, err := v.Verify(sign("s3cret", good))
	if err != nil || p.Tenant != "t1" || !p.CanAdmin() {
		t.Fatalf("got %+v, %v", p, err)
	}
	if _, err := v.Verify(sign("other", good)); err == nil {
		t.Fatal("wrong secret accepted")
	}
	expired := good
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	if _, err := v.Verify(sign("s3cret", expired)); err == nil {
		t.Fatal("expired token accepted")
	}
	noTenant := good
	noTenant.Tenant = ""
	if _, err := v.Verify(sign("s3cret", noTenant)); err == nil {
		t.Fatal("tenantless admin accepted")
	}
}

func TestRSAMode(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, _ := x509.MarshalPKIXPublicKey(&key.PublicKey)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	v, err := NewVerifier(config.AuthConfig{Mode: "rsa", RSAPublicKey: string(pubPEM)})
	if err != nil {
		t.Fatal(err)
	}
	claims := Claims{Role: "platform", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	p, err := v.Verify(tok)
	if err != nil || p.Role != RolePlatform || p.TenantScope() != nil {
		t.Fatalf("got %+v, %v", p, err)
	}
	hs, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("x"))
	if _, err := v.Verify(hs); err == nil {
		t.Fatal("HS256 token accepted in rsa mode")
	}
}

func TestNewVerifierRejectsBadConfig(t *testing.T) {
	for _, cfg := range []config.AuthConfig{{Mode: "hmac"}, {Mode: "rsa", RSAPublicKey: "nope"}, {Mode: "jwks"}} {
		if _, err := NewVerifier(cfg); err == nil {
			t.Fatalf("config %+v accepted", cfg)
		}
	}
}
