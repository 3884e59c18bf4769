package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// GetJSON loads key and decodes it into out. found is false when the key is absent.
func GetJSON(ctx context.Context, kv KV, key string, out any) (found bool, err error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes value and stores it under key
func PutJSON(ctx context.Context, kv KV, key string, value any) error {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Put(ctx, key, raw)
}
