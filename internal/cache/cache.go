package cache

import (
	"context"
	"time"
)

// EntryOptions controls how long an entry lives.
// Absolute is measured from when the entry was set; Sliding is renewed on every hit.
// Whichever elapses first expires the entry. Zero disables that bound.
type EntryOptions struct {
	Absolute time.Duration
	Sliding  time.Duration
}

// Provider is a key/value cache with per-entry expiry.
// Implementations must be safe for concurrent use.
type Provider interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, opts EntryOptions) error
	Delete(ctx context.Context, key string) error
}
