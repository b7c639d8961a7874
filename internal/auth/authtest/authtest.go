// Package authtest mints access tokens for tests that exercise protected endpoints.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eugenenazirov/coffee-shop/internal/auth"
	"github.com/eugenenazirov/coffee-shop/internal/environment"
)

// KeyID is the kid stamped on every token minted by an Issuer.
const KeyID = "test-key"

// Issuer signs tokens the way the identity-provider tenant would.
type Issuer struct {
	Key      *rsa.PrivateKey
	Issuer   string
	Audience string
}

// NewIssuer generates a signing key for the tenant described by env.
func NewIssuer(t testing.TB, env environment.Environment) *Issuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	return &Issuer{Key: key, Issuer: env.Issuer(), Audience: env.Auth0.Audience}
}

// Keys returns a key source holding the issuer's public key.
func (i *Issuer) Keys() auth.StaticKeys {
	return auth.StaticKeys{KeyID: &i.Key.PublicKey}
}

// Verifier returns a verifier that trusts this issuer.
func (i *Issuer) Verifier() *auth.Verifier {
	return auth.NewVerifier(i.Keys(), i.Issuer, i.Audience)
}

// Token signs a token granting permissions, valid for an hour.
func (i *Issuer) Token(t testing.TB, permissions ...string) string {
	t.Helper()

	if permissions == nil {
		permissions = []string{}
	}
	now := time.Now()
	return i.Sign(t, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "auth0|barista",
			Issuer:    i.Issuer,
			Audience:  jwt.ClaimStrings{i.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Permissions: permissions,
	})
}

// Sign signs arbitrary claims with the issuer key and KeyID.
func (i *Issuer) Sign(t testing.TB, claims auth.Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = KeyID
	signed, err := token.SignedString(i.Key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// JWKSHandler serves the issuer's public key as a JWKS document.
func (i *Issuer) JWKSHandler() http.Handler {
	pub := i.Key.PublicKey
	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": KeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	})
}
