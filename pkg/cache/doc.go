// Package cache provides a generic, thread-safe LRU (Least Recently Used) cache.
//
// The cache evicts the least recently used entry once it holds more than its
// capacity. Get, Put and Remove are O(1); RemoveFunc walks every entry and is
// meant for bulk invalidation and expiry sweeps.
//
// # Usage
//
//	c := cache.NewLRUCache[string, int](100)
//	c.Put("a", 1)
//	v, ok := c.Get("a")
//
//	// Drop every key with a given prefix.
//	n := c.RemoveFunc(func(k string, _ int) bool {
//		return strings.HasPrefix(k, "custom:")
//	})
//
// Values are stored as given; callers that hand out pointers own the
// synchronization of the pointed-to data.
package cache
