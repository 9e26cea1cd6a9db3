package objstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/objstore"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := objstore.DefaultConfig()
	assert.Equal(t, "__schema", cfg.MetadataTable)
	assert.True(t, cfg.SoftDelete)
	assert.True(t, cfg.AutoID)
	assert.True(t, cfg.AutoCreatedAt)
	assert.True(t, cfg.AutoUpdatedAt)
	assert.Zero(t, cfg.CacheTTL)
	require.NoError(t, cfg.Validate())

	bare := cfg.WithoutAutoColumns()
	assert.False(t, bare.AutoID)
	assert.False(t, bare.AutoCreatedAt)
	assert.False(t, bare.AutoUpdatedAt)
	assert.True(t, bare.SoftDelete)
	assert.True(t, cfg.AutoID, "receiver must not change")
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*objstore.Config)
		wantErr bool
	}{
		{"default", func(*objstore.Config) {}, false},
		{"custom table", func(c *objstore.Config) { c.MetadataTable = "registry" }, false},
		{"empty table", func(c *objstore.Config) { c.MetadataTable = "" }, true},
		{"quoted table", func(c *objstore.Config) { c.MetadataTable = `x"; DROP TABLE users; --` }, true},
		{"upper case", func(c *objstore.Config) { c.MetadataTable = "Schema" }, true},
		{"negative ttl", func(c *objstore.Config) { c.CacheTTL = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := objstore.DefaultConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("MissingFile", func(t *testing.T) {
		cfg, err := objstore.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, objstore.DefaultConfig(), cfg)
	})

	t.Run("PartialFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "objstore.yaml")
		require.NoError(t, os.WriteFile(path, []byte("metadata_table: registry\nsoft_delete: false\ncache_ttl: 5m\n"), 0o600))
		cfg, err := objstore.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "registry", cfg.MetadataTable)
		assert.False(t, cfg.SoftDelete)
		assert.True(t, cfg.AutoID)
		assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	})

	t.Run("InvalidTable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "objstore.yaml")
		require.NoError(t, os.WriteFile(path, []byte("metadata_table: \"Bad Name\"\n"), 0o600))
		_, err := objstore.LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("Malformed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "objstore.yaml")
		require.NoError(t, os.WriteFile(path, []byte("soft_delete: [\n"), 0o600))
		_, err := objstore.LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestMemoryCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := objstore.NewMemoryCache()
	key := objstore.CacheKey{MetadataTable: "__schema", Schema: "products"}
	assert.Equal(t, "__schema:schema:products", key.String())

	v, err := c.Get(ctx, key.String())
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, c.Set(ctx, key.String(), []byte("a"), 0))
	require.NoError(t, c.Set(ctx, "__schema:schema:orders", []byte("b"), 0))
	require.NoError(t, c.Set(ctx, "other:schema:orders", []byte("c"), 0))
	v, err = c.Get(ctx, key.String())
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), v)

	require.NoError(t, c.DeletePrefix(ctx, key.Prefix()))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Set(ctx, "ttl", []byte("x"), time.Nanosecond))
	time.Sleep(time.Millisecond)
	v, err = c.Get(ctx, "ttl")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Len())
}
