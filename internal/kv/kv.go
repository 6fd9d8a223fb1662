// Package kv is the persistence boundary: a string-keyed, string-valued
// blob store. Every registry mutation rewrites its whole blob, so the
// contract is just Get and Set.
package kv

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("kv store unavailable")

type Store interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
}
