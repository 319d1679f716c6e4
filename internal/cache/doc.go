// Package cache provides an LRU cache for immutable bytes read from the blob store:
// blob pages, serialized filter indexes and segment records.
//
// Memory is accounted against an optional resource.Controller so that several caches
// can share one budget. Entries that do not fit the budget are not cached.
package cache
