package objstore

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMetadataTable is the name of the schema registry table.
const DefaultMetadataTable = "__schema"

// metadataTableRe is looser than user identifiers: the registry table may
// start with underscores.
var metadataTableRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Config holds the flat set of store options.
type Config struct {
	// MetadataTable names the table that stores schema definitions.
	MetadataTable string `yaml:"metadata_table"`
	// SoftDelete enables flag-based deletion for new schemas.
	SoftDelete bool `yaml:"soft_delete"`
	// AutoID generates instance identifiers for new schemas.
	AutoID bool `yaml:"auto_id"`
	// AutoCreatedAt manages a created_at column for new schemas.
	AutoCreatedAt bool `yaml:"auto_created_at"`
	// AutoUpdatedAt manages an updated_at column for new schemas.
	AutoUpdatedAt bool `yaml:"auto_updated_at"`
	// CacheTTL bounds how long a schema stays cached. Zero keeps entries
	// until they are invalidated by a schema mutation.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns a Config populated with the defaults: every
// auto-managed column and soft delete enabled.
func DefaultConfig() Config {
	return Config{
		MetadataTable: DefaultMetadataTable,
		SoftDelete:    true,
		AutoID:        true,
		AutoCreatedAt: true,
		AutoUpdatedAt: true,
	}
}

// WithoutAutoColumns returns a copy of c with id, created_at and updated_at
// management disabled.
func (c Config) WithoutAutoColumns() Config {
	c.AutoID = false
	c.AutoCreatedAt = false
	c.AutoUpdatedAt = false
	return c
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.MetadataTable == "" {
		return fmt.Errorf("objstore: config: metadata_table is required")
	}
	if len(c.MetadataTable) > 63 || !metadataTableRe.MatchString(c.MetadataTable) {
		return fmt.Errorf("objstore: config: invalid metadata_table %q", c.MetadataTable)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("objstore: config: negative cache_ttl %s", c.CacheTTL)
	}
	return nil
}

// LoadConfig reads a Config from the YAML file at path. Keys missing from the
// file keep their default value. A missing file yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("objstore: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("objstore: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
