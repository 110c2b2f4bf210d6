package cache

import (
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a resource identifier.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// ResourceType names a family of upstream resources. Identifiers are unique
// per type, so two types may reuse the same identifier without collision.
type ResourceType string

// Known resource types. Any other string is a valid ResourceType and falls
// back to Config.DefaultTTL.
const (
	Block      ResourceType = "block"
	Page       ResourceType = "page"
	Database   ResourceType = "database"
	DataSource ResourceType = "dataSource"
	User       ResourceType = "user"
	Search     ResourceType = "search"
	Comment    ResourceType = "comment"
)

// Key identifies one cached resource.
type Key struct {
	Type ResourceType
	ID   string
}

// String returns "type:id".
func (k Key) String() string {
	return string(k.Type) + ":" + k.ID
}

// Entry is a single stored value. An entry whose ExpiresAt is not after the
// current time is logically absent even while still physically present.
type Entry struct {
	Key       Key
	Value     any
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is logically absent at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Cache is the read-through store consulted by the fetch layer.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Ownership: values returned by Get are shared with the store and with
//     every other reader; callers must treat them as read-only.
//   - Errors: Get never errors; it returns (nil, false) on miss.
type Cache interface {
	// Get retrieves a cached value. Returns (nil, false) on miss.
	Get(t ResourceType, id string) (any, bool)

	// Set stores a value using the TTL configured for t.
	Set(t ResourceType, id string, value any)

	// SetWithTTL stores a value with an explicit TTL. A non-positive ttl
	// falls back to the TTL configured for t.
	SetWithTTL(t ResourceType, id string, value any, ttl time.Duration)

	// Invalidate removes one entry. Idempotent.
	Invalidate(t ResourceType, id string)

	// InvalidateType removes every entry of type t in one step.
	InvalidateType(t ResourceType)

	// Enabled reports whether caching is currently active.
	Enabled() bool
}

// ValidateKey checks if an identifier is valid for caching.
func ValidateKey(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidKey
	}
	if len(id) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(id, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
