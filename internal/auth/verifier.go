// Package auth provides bearer token verification.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/config"
)

// Verifier validates bearer tokens and extracts tenant/role claims.
// Supports modes: dev (token is "tenant:role"), hmac (HS256), rsa (RS256 with a PEM public key).
type Verifier struct {
	mode     string
	secret   []byte
	pub      *rsa.PublicKey
	issuer   string
	audience string
}

// Principal is the caller. An empty Tenant with role platform acts on
// platform-wide resources.
type Principal struct {
	Tenant string
	Role   string
}

// Claims carried by storefront tokens.
type Claims struct {
	Tenant string `json:"tenant,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	v := &Verifier{
		mode:     strings.ToLower(strings.TrimSpace(cfg.Mode)),
		secret:   []byte(cfg.HMACSecret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}
	switch v.mode {
	case "", "dev":
		v.mode = "dev"
	case "hmac":
		if len(v.secret) == 0 {
			return nil, errors.New("auth: hmac mode requires a secret")
		}
	case "rsa":
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.RSAPublicKey))
		if err != nil {
			return nil, fmt.Errorf("auth: parse rsa public key: %w", err)
		}
		v.pub = pub
	default:
		return nil, fmt.Errorf("auth: unsupported mode %q", cfg.Mode)
	}
	return v, nil
}

func (v *Verifier) Mode() string { return v.mode }

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.mode == "dev" {
		// token format: tenant:role, tenant may be empty for platform
		parts := strings.SplitN(token, ":", 2)
		if len(parts) == 2 && parts[1] != "" {
			return Principal{Tenant: parts[0], Role: strings.ToLower(parts[1])}, nil
		}
		return Principal{}, errors.New("invalid dev token; expected tenant:role")
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		switch v.mode {
		case "hmac":
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.secret, nil
		default:
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.pub, nil
		}
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("auth: %w", err)
	}
	role := strings.ToLower(claims.Role)
	if role == "" {
		role = "user"
	}
	if claims.Tenant == "" && role != RolePlatform {
		return Principal{}, errors.New("auth: missing tenant claim")
	}
	return Principal{Tenant: claims.Tenant, Role: role}, nil
}

const (
	RoleAdmin    = "admin"
	RolePlatform = "platform"
)

// TenantScope is the subscription owner the principal acts for: nil for the
// platform, otherwise its tenant.
func (p Principal) TenantScope() *string {
	if p.Tenant == "" {
		return nil
	}
	t := p.Tenant
	return &t
}

// CanAdmin reports whether the principal may manage webhooks and credentials.
func (p Principal) CanAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RolePlatform
}
