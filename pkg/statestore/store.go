// Package statestore provides the durable TTL key-value store the closure
// flow uses for cross-invocation state. The store is the synchronization
// point between redundant scheduler replicas: decision logic treats the
// presence of a key as the signal that a withdrawal is already in flight.
package statestore

import (
	"context"
	"time"
)

// Store is a TTL-capable key-value store.
type Store interface {
	// Get returns the value for key and whether it exists. Expired keys
	// read as absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
