package db

import (
	"context"
	"time"
)

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Executor runs searches against the search engine.
type Executor interface {
	Pinger
	// Search runs req. When req.Scroll is set the response carries a scroll id.
	Search(ctx context.Context, req *SearchRequest) (*Response, error)
	// Scroll fetches the next batch of a scrolled search and extends the
	// scroll context by keepAlive.
	Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (*Response, error)
}

// ScrollClearer releases server-side scroll contexts.
// Executors implement it optionally.
type ScrollClearer interface {
	ClearScroll(ctx context.Context, scrollIDs ...string) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Cache is a connected KV store.
type Cache interface {
	Pinger
	KVStore
	Close()
}
