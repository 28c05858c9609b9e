package cache

import "time"

// Entry wraps a cached snapshot with the time it was stored. Entries
// past their staleness window are kept rather than evicted, so a
// failed refetch can still serve the stale value.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
}

func NewEntry[V any](value V, now time.Time) Entry[V] {
	return Entry[V]{Value: value, StoredAt: now}
}

func (e Entry[V]) Stale(now time.Time, window time.Duration) bool {
	return now.Sub(e.StoredAt) >= window
}
