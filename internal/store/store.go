// Package store provides the expiring key-value storage that backs all
// ephemeral verification state: OTP codes, verification tokens, rate
// counters and revocation markers.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key is absent. An expired key is
// indistinguishable from one that never existed.
var ErrNotFound = errors.New("store: key not found")

// Store is an expiring key-value store. Single-key operations only; each
// operation is atomic with respect to the key it touches.
type Store interface {
	// Set writes value under key, overwriting any previous value and
	// resetting the TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetKeepTTL overwrites the value of an existing key without touching
	// its remaining TTL. Returns ErrNotFound if the key is absent.
	SetKeepTTL(ctx context.Context, key, value string) error

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
