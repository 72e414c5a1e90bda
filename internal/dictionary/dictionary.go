// Package dictionary wraps the storage layer's append-only node-type
// and attribute-type catalogs with an intra-load in-memory cache, so a
// single ingestion pass that sees the same type name hundreds of times
// issues at most one round trip per distinct name (spec §4.E).
package dictionary

import (
	"context"
	"strings"
	"sync"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// Cache is scoped to a single load and is not shared across loads. Its
// maps are guarded by the mutex below, so concurrent row processing
// within one load is safe.
type Cache struct {
	store storage.Store
	hits  *prometheus.CounterVec
	nodeTypes map[string]int64
	attrTypes map[string]int64
	mu        sync.Mutex
}

// New builds a load-scoped Cache. hits may be nil, in which case no
// metrics are recorded.
func New(store storage.Store, hits *prometheus.CounterVec) *Cache {
	return &Cache{
		store:     store,
		hits:      hits,
		nodeTypes: make(map[string]int64),
		attrTypes: make(map[string]int64),
	}
}

// NodeType resolves a node-type name to its id, consulting the cache
// before falling through to the store's ensure-on-conflict upsert.
func (c *Cache) NodeType(ctx context.Context, tx storage.Tx, name string) (int64, error) {
	return c.resolve(ctx, tx, c.nodeTypes, name, "node_type", c.store.EnsureNodeType)
}

// AttributeType resolves an attribute-type name to its id, the
// attribute-side counterpart of NodeType.
func (c *Cache) AttributeType(ctx context.Context, tx storage.Tx, name string) (int64, error) {
	return c.resolve(ctx, tx, c.attrTypes, name, "attribute_type", c.store.EnsureAttributeType)
}

func (c *Cache) resolve(ctx context.Context, tx storage.Tx, cache map[string]int64, name, kind string, ensure func(context.Context, storage.Tx, string) (int64, error)) (int64, error) {
	key := strings.ToLower(name)

	c.mu.Lock()
	if id, ok := cache[key]; ok {
		c.mu.Unlock()
		c.count(kind, "cache_hit")
		return id, nil
	}
	c.mu.Unlock()

	id, err := ensure(ctx, tx, name)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	cache[key] = id
	c.mu.Unlock()
	c.count(kind, "store_roundtrip")
	return id, nil
}

func (c *Cache) count(kind, outcome string) {
	if c.hits == nil {
		return
	}
	c.hits.WithLabelValues(kind, outcome).Inc()
}
