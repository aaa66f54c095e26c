// Package connectivity tracks network availability for the sync engine.
//
// A Monitor probes a reachability endpoint on an interval and exposes the
// verdict as a boolean signal. Consumers either poll Online (the coordinator
// does, before every revalidation) or subscribe to transitions (the
// scheduler does, to trigger an immediate revalidation when the network
// returns). External signals such as a platform online/offline event feed in
// through SetOnline and override the probe until the next cycle.
package connectivity
