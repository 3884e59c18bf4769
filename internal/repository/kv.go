// Package repository holds the durable key-value backends that persist
// session message logs and context records.
package repository

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when a key has never been written
var ErrNotFound = errors.New("repository: key not found")

// KV is per-key get/put storage, durable across requests
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// Kind names one stored record of a session
type Kind string

const (
	KindMessages Kind = "messages"
	KindContext  Kind = "context"
)

// SessionKey builds the storage key of a session's record
func SessionKey(sessionID string, kind Kind) string {
	return fmt.Sprintf("session:%s:%s", sessionID, kind)
}
