package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingKeyID is returned for tokens whose header carries no kid.
var ErrMissingKeyID = errors.New("missing kid in token header")

// Claims are the access token claims used by the API.
type Claims struct {
	jwt.RegisteredClaims
	// Permissions is nil when the token carries no permissions claim at all.
	Permissions []string `json:"permissions"`
	Scope       string   `json:"scope,omitempty"`
}

// HasPermission reports whether perm was granted.
func (c *Claims) HasPermission(perm string) bool {
	return slices.Contains(c.Permissions, perm)
}

// Verifier validates RS256 access tokens issued by the identity provider.
type Verifier struct {
	keys   KeySource
	parser *jwt.Parser
}

// VerifierOption configures a Verifier.
type VerifierOption func(*verifierConfig)

type verifierConfig struct {
	leeway time.Duration
	now    func() time.Time
}

// WithLeeway tolerates clock skew when checking exp and nbf.
func WithLeeway(d time.Duration) VerifierOption {
	return func(cfg *verifierConfig) {
		cfg.leeway = d
	}
}

// WithTimeFunc overrides the time source, primarily for tests.
func WithTimeFunc(now func() time.Time) VerifierOption {
	return func(cfg *verifierConfig) {
		cfg.now = now
	}
}

// NewVerifier accepts tokens signed by keys and minted by issuer for audience.
func NewVerifier(keys KeySource, issuer, audience string, opts ...VerifierOption) *Verifier {
	var cfg verifierConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	}
	if cfg.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(cfg.leeway))
	}
	if cfg.now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(cfg.now))
	}

	return &Verifier{
		keys:   keys,
		parser: jwt.NewParser(parserOpts...),
	}
}

// Verify parses rawToken and checks signature, issuer, audience and expiry.
// Failures are returned as *Error.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	var claims Claims
	token, err := v.parser.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrMissingKeyID
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, newError(http.StatusUnauthorized, CodeInvalidHeader, "Unable to parse authentication token.", nil)
	}
	return &claims, nil
}

func classify(err error) *Error {
	switch {
	case errors.Is(err, ErrKeySourceUnavailable):
		return newError(http.StatusInternalServerError, CodeKeysUnavailable, "Unable to verify authentication token.", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(http.StatusUnauthorized, CodeTokenExpired, "Token expired.", err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience), errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return newError(http.StatusUnauthorized, CodeInvalidClaims, "Incorrect claims. Please, check the audience and issuer.", err)
	case errors.Is(err, ErrMissingKeyID):
		return newError(http.StatusUnauthorized, CodeInvalidHeader, "Authorization malformed.", err)
	case errors.Is(err, ErrKeyNotFound):
		return newError(http.StatusBadRequest, CodeInvalidHeader, "Unable to find the appropriate key.", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return newError(http.StatusUnauthorized, CodeInvalidHeader, "Token signature is invalid.", err)
	default:
		return newError(http.StatusBadRequest, CodeInvalidHeader, "Unable to parse authentication token.", err)
	}
}

// CheckPermission returns an *Error unless claims grant perm.
func CheckPermission(claims *Claims, perm string) error {
	if claims == nil || claims.Permissions == nil {
		return newError(http.StatusBadRequest, CodeInvalidClaims, "Permissions not included in JWT.", nil)
	}
	if !claims.HasPermission(perm) {
		return newError(http.StatusForbidden, CodeUnauthorized, "Permission not found.", nil)
	}
	return nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errHeaderMissing()
	}

	parts := strings.Fields(header)
	switch {
	case !strings.EqualFold(parts[0], "Bearer"):
		return "", newError(http.StatusUnauthorized, CodeInvalidHeader, `Authorization header must start with "Bearer".`, nil)
	case len(parts) == 1:
		return "", newError(http.StatusUnauthorized, CodeInvalidHeader, "Token not found.", nil)
	case len(parts) > 2:
		return "", newError(http.StatusUnauthorized, CodeInvalidHeader, "Authorization header must be bearer token.", nil)
	}
	return parts[1], nil
}
