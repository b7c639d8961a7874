package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"
)

const maxJWKSResponseBytes = 64 * 1024

// ErrKeyNotFound is returned when no signing key matches a token's kid.
var ErrKeyNotFound = errors.New("signing key not found")

// ErrKeySourceUnavailable is returned when the signing keys could not be
// fetched. It is a server-side failure, not a problem with the token.
var ErrKeySourceUnavailable = errors.New("signing key source unavailable")

// KeySource resolves RSA verification keys by key id.
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// StaticKeys serves a fixed key set.
type StaticKeys map[string]*rsa.PublicKey

// Key implements KeySource.
func (s StaticKeys) Key(_ context.Context, kid string) (*rsa.PublicKey, error) {
	key, ok := s[kid]
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}
	return key, nil
}

// JWKSCache fetches the tenant's published signing keys and keeps them for ttl.
// An unknown kid forces a refresh so rotated keys are picked up, but never
// more often than once per minimum refresh interval.
type JWKSCache struct {
	url        string
	client     *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	now        func() time.Time

	// fetchMu serialises fetches. Readers of a cached key only take mu.
	fetchMu sync.Mutex

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
	lastErr     error
}

// JWKSOption configures a JWKSCache.
type JWKSOption func(*JWKSCache)

// WithMinRefreshInterval bounds how often unknown kids may trigger a fetch.
// Zero allows a fetch on every miss.
func WithMinRefreshInterval(d time.Duration) JWKSOption {
	return func(c *JWKSCache) {
		if d >= 0 {
			c.minRefresh = d
		}
	}
}

// WithJWKSClock overrides the time source, primarily for tests.
func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewJWKSCache creates a cache for the JWKS document at url.
func NewJWKSCache(url string, client *http.Client, ttl time.Duration, opts ...JWKSOption) *JWKSCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &JWKSCache{
		url:        url,
		client:     client,
		ttl:        ttl,
		minRefresh: time.Minute,
		now:        time.Now,
		keys:       make(map[string]*rsa.PublicKey),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.minRefresh > c.ttl {
		c.minRefresh = c.ttl
	}
	return c
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

// Key implements KeySource.
func (c *JWKSCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, done, err := c.cached(kid); done {
		return key, err
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	// Another caller may have refreshed while this one waited.
	if key, done, err := c.cached(kid); done {
		return key, err
	}

	err := c.refresh(ctx)

	c.mu.Lock()
	c.lastAttempt = c.now()
	if err != nil {
		c.lastErr = fmt.Errorf("%w: %w", ErrKeySourceUnavailable, err)
	} else {
		c.lastErr = nil
	}
	c.mu.Unlock()

	return c.lookup(kid)
}

// cached answers from the key set when it is fresh, or when the last fetch
// attempt is too recent to try again. done is false when a fetch is due.
func (c *JWKSCache) cached(kid string) (key *rsa.PublicKey, done bool, err error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	now := c.now()
	fresh := ok && now.Sub(c.fetchedAt) <= c.ttl
	coolingDown := !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) < c.minRefresh
	c.mu.RUnlock()

	if fresh {
		return key, true, nil
	}
	if coolingDown {
		key, err = c.lookup(kid)
		return key, true, err
	}
	return nil, false, nil
}

// lookup serves a stale key over a failed fetch.
func (c *JWKSCache) lookup(kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if key, ok := c.keys[kid]; ok {
		return key, nil
	}
	if c.lastErr != nil {
		return nil, c.lastErr
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return nil
}

func parseRSAPublicKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() == 0 || !e.IsInt64() || e.Int64() <= 1 {
		return nil, errors.New("invalid RSA key parameters")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
