package store

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/objstore"
)

// schemaCache keeps metadata records in an objstore.Cache. Concurrent
// misses of the same schema share one metadata query.
type schemaCache struct {
	cache objstore.Cache
	table string
	ttl   time.Duration
	group singleflight.Group
}

func newSchemaCache(c objstore.Cache, table string, ttl time.Duration) *schemaCache {
	return &schemaCache{cache: c, table: table, ttl: ttl}
}

func (c *schemaCache) key(name string) objstore.CacheKey {
	return objstore.CacheKey{MetadataTable: c.table, Schema: name}
}

// load returns the cached record of the schema, calling fetch on a miss.
// Cache failures fall back to fetch.
func (c *schemaCache) load(ctx context.Context, name string, fetch func() (*record, error)) (*record, error) {
	key := c.key(name).String()
	if data, err := c.cache.Get(ctx, key); err == nil && data != nil {
		r := &record{}
		if err := msgpack.Unmarshal(data, r); err == nil {
			return r, nil
		}
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		r, err := fetch()
		if err != nil {
			return nil, err
		}
		if data, err := msgpack.Marshal(r); err == nil {
			_ = c.cache.Set(ctx, key, data, c.ttl)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*record), nil
}

// invalidate drops the cached record of the schema.
func (c *schemaCache) invalidate(ctx context.Context, name string) error {
	return c.cache.Delete(ctx, c.key(name).String())
}

// purge drops every cached record of the metadata table.
func (c *schemaCache) purge(ctx context.Context) error {
	return c.cache.DeletePrefix(ctx, c.key("").Prefix())
}
