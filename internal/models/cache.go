package models

import (
	"encoding/json"
	"time"
)

// CacheEntry is one row of the general-purpose cache table. TTL is optional;
// zero means the entry never expires. Size is an approximate serialized byte
// count recorded at write time.
type CacheEntry struct {
	Key       string
	Data      json.RawMessage
	CreatedAt time.Time
	TTL       time.Duration
	Size      int64
}

// Expired reports whether the entry's TTL has elapsed at now. Entries with no
// TTL never expire.
func (c CacheEntry) Expired(now time.Time) bool {
	if c.TTL <= 0 {
		return false
	}
	return now.Sub(c.CreatedAt) > c.TTL
}
