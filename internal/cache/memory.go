package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize is the default number of entries kept by a Memory cache
const DefaultMemorySize = 256

type entry struct {
	value     any
	expiresAt time.Time
	sliding   time.Duration
	// deadline is the sliding expiry in unix nanoseconds, 0 when unset
	deadline atomic.Int64
}

func (e *entry) expired(now time.Time) bool {
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		return true
	}
	deadline := e.deadline.Load()
	return deadline != 0 && now.UnixNano() >= deadline
}

// Memory is an in-process bounded cache
type Memory struct {
	cache *lru.Cache[string, *entry]
	now   func() time.Time
}

// NewMemory creates an in-memory cache holding up to size entries
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	c, err := lru.New[string, *entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &Memory{cache: c, now: time.Now}, nil
}

// Get returns a live entry and renews its sliding expiry
func (m *Memory) Get(_ context.Context, key string) (any, bool, error) {
	e, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	now := m.now()
	if e.expired(now) {
		m.cache.Remove(key)
		return nil, false, nil
	}
	if e.sliding > 0 {
		// renewed in place so a concurrent Set is never overwritten
		e.deadline.Store(now.Add(e.sliding).UnixNano())
	}
	return e.value, true, nil
}

// Set stores a value; a later Set for the same key wins
func (m *Memory) Set(_ context.Context, key string, value any, opts EntryOptions) error {
	now := m.now()
	e := &entry{value: value, sliding: opts.Sliding}
	if opts.Absolute > 0 {
		e.expiresAt = now.Add(opts.Absolute)
	}
	if opts.Sliding > 0 {
		e.deadline.Store(now.Add(opts.Sliding).UnixNano())
	}
	m.cache.Add(key, e)
	return nil
}

// Delete removes a key
func (m *Memory) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted
func (m *Memory) Len() int {
	return m.cache.Len()
}
