package memory

import (
	"slices"
	"time"
)

// addToSet appends each item not already present. It reports whether the set changed.
func addToSet[T comparable](set []T, items ...T) ([]T, bool) {
	changed := false
	for _, item := range items {
		if !slices.Contains(set, item) {
			set = append(set, item)
			changed = true
		}
	}
	return set, changed
}

// pull removes item from the set. It reports whether the set changed.
func pull[T comparable](set []T, item T) ([]T, bool) {
	idx := slices.Index(set, item)
	if idx == -1 {
		return set, false
	}
	return slices.Delete(set, idx, idx+1), true
}

// nextTimestamp keeps updated_at monotonic even if the wall clock steps backwards.
func nextTimestamp(prev time.Time) time.Time {
	now := time.Now()
	if now.Before(prev) {
		return prev
	}
	return now
}
