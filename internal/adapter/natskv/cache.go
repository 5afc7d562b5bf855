// Package natskv is the shared cache tier behind the in-process one. It
// keeps tenant records in a JetStream key-value bucket so that every node
// sees an invalidation at most one bucket round-trip later.
package natskv

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache adapts a JetStream key-value bucket to the cache port.
type Cache struct {
	bucket jetstream.KeyValue
}

// New wraps an existing bucket. Bucket creation, including its TTL, happens
// at startup in the queue adapter.
func New(bucket jetstream.KeyValue) *Cache {
	return &Cache{bucket: bucket}
}

func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.bucket.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set writes the value. The per-call ttl is ignored; expiry is a property of
// the bucket itself.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.bucket.Put(ctx, key, value)
	return err
}

// Delete removes the key. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.bucket.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
