// Package swr implements the stale-while-revalidate fetch coordinator at the
// center of the sync engine.
//
// A SyncContext owns the process-wide shared state: the cache store, the
// in-flight request registry, the manual-revalidation throttle, and the
// session epoch. Fetch serves the best cached value immediately, decides
// whether a network revalidation is warranted, collapses concurrent
// revalidations for one key into a single request, and merges results back
// into the store under a session guard so a slow response can never clobber
// another session's view.
//
// Read-path failures never propagate: the last known good value stays
// authoritative and the engine self-heals on the next scheduled cycle.
package swr
