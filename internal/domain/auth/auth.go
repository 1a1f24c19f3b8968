// Package auth authenticates API keys for staff-facing endpoints.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// Scopes granted to API keys.
const (
	// ScopeOrders allows payment and status updates on orders.
	ScopeOrders = "orders:write"
	// ScopeAdmin allows the admin dashboard, menu and coupon management.
	ScopeAdmin = "admin"
)

var (
	ErrKeyNotFound  = errors.New("api key not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("api key lacks scope")
)

// Key is a stored API key. Only the HMAC of the secret is kept.
type Key struct {
	ID     string
	Hash   string
	Name   string
	Scopes []string
}

// Has reports whether the key grants scope. The admin scope grants all.
func (k *Key) Has(scope string) bool {
	return slices.Contains(k.Scopes, scope) || slices.Contains(k.Scopes, ScopeAdmin)
}

// Repository looks up active API keys by hash.
type Repository interface {
	// FindByHash returns ErrKeyNotFound when no active key matches.
	FindByHash(ctx context.Context, hash string) (*Key, error)
}

// Hash returns the hex HMAC-SHA256 of key under pepper.
func Hash(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator verifies raw API keys.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate resolves raw to its stored key and checks it grants scope.
func (a *Authenticator) Authenticate(ctx context.Context, raw, scope string) (*Key, error) {
	if raw == "" {
		return nil, ErrUnauthorized
	}
	sum := Hash(a.pepper, raw)

	key, err := a.keys.FindByHash(ctx, sum)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}
	if subtle.ConstantTimeCompare([]byte(sum), []byte(key.Hash)) != 1 {
		return nil, ErrUnauthorized
	}
	if !key.Has(scope) {
		return nil, ErrForbidden
	}
	return key, nil
}
