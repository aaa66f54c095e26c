// Package presence refreshes volatile per-rental live status (in-match,
// elapsed time) from the status service, outside the main cache policy.
//
// Presence changes far faster than the rentals it annotates, so it lives in
// its own identifier -> status side table with a short freshness window. A
// refresh pass fetches only the identifiers that are due, runs at most a
// fixed number of requests at once, and pulls the next due identifier the
// moment a slot frees. One identifier's failure delays nobody and leaves it
// due for the next pass.
package presence
