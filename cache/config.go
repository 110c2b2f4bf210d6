package cache

import (
	"maps"
	"time"
)

// Config configures a Store. It is immutable after NewStore except for
// Enabled, which can be flipped at runtime with Store.SetEnabled.
type Config struct {
	// Enabled turns caching on. A disabled store keeps its entries but
	// reports every Get as a miss and ignores Set.
	Enabled bool

	// MaxSize is the maximum number of entries before LRU eviction.
	// MaxSize <= 0 means unbounded.
	MaxSize int

	// DefaultTTL applies to resource types missing from TTLByType.
	DefaultTTL time.Duration

	// TTLByType overrides DefaultTTL per resource type. Volatile
	// resources get short TTLs, stable ones long TTLs.
	TTLByType map[ResourceType]time.Duration
}

// DefaultTTLByType returns the per-type TTL table used by DefaultConfig.
func DefaultTTLByType() map[ResourceType]time.Duration {
	return map[ResourceType]time.Duration{
		Block:      30 * time.Second,
		Page:       time.Minute,
		Database:   10 * time.Minute,
		DataSource: 10 * time.Minute,
		User:       time.Hour,
	}
}

// DefaultConfig returns the default cache configuration.
// Enabled, MaxSize: 1000, DefaultTTL: 5 minutes, TTLByType: DefaultTTLByType.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		MaxSize:    1000,
		DefaultTTL: 5 * time.Minute,
		TTLByType:  DefaultTTLByType(),
	}
}

// TTLFor returns the TTL configured for t.
func (c Config) TTLFor(t ResourceType) time.Duration {
	if ttl, ok := c.TTLByType[t]; ok && ttl > 0 {
		return ttl
	}
	return c.DefaultTTL
}

// EffectiveTTL resolves explicit ?? TTLByType[t] ?? DefaultTTL.
func (c Config) EffectiveTTL(t ResourceType, explicit time.Duration) time.Duration {
	if explicit > 0 {
		return explicit
	}
	return c.TTLFor(t)
}

func (c Config) clone() Config {
	c.TTLByType = maps.Clone(c.TTLByType)
	return c
}
