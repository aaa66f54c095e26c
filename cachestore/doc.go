// Package cachestore provides the two-tier snapshot store backing the sync
// engine: a fast in-memory tier over an optional durable tier.
//
// Entries are timestamped and optionally ETag-tagged. Reads consult both
// tiers, prefer the newer entry, and promote durable hits into memory.
// Durable-tier failures are swallowed: the store degrades to memory-only
// operation and never raises to its caller.
package cachestore
