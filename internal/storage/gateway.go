// Package storage defines the key-value persistence gateway shared by the
// tracking components. Every stateful component reads and writes its
// cross-process state here so a torn-down process can reattach to the same
// logical session.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Gateway is a string-keyed store of JSON-serialisable values. Writes are
// atomic per key; there are no cross-key transactional guarantees.
type Gateway interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// GetJSON reads and decodes the value stored under key. The boolean reports
// whether the key was present.
func GetJSON[T any](ctx context.Context, g Gateway, key string) (T, bool, error) {
	var out T
	raw, ok, err := g.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode %q: %w", key, err)
	}
	return out, true, nil
}

// SetJSON encodes value and stores it under key.
func SetJSON(ctx context.Context, g Gateway, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return g.Set(ctx, key, raw)
}
