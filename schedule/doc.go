// Package schedule decides when the coordinator runs, not what it fetches.
//
// A Scheduler drives one active dashboard section at a time. Activating a
// section serves cache-or-fetch immediately, follows up with an
// authoritative refresh shortly after first paint, and then revalidates on
// the section's interval while it stays active. Visibility and connectivity
// transitions revalidate the active section out of band.
//
// The scheduler adds no throttling of its own; every call passes through the
// coordinator's throttle and dedup logic unchanged.
package schedule
