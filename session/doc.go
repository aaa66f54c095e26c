// Package session provides session-scope derivation and guard tokens for the
// sync engine.
//
// A Scope names the authenticated identity (and optional workspace) that cache
// entries belong to. An Epoch tracks the current scope behind a generation
// counter; a Guard captured before an async gap is re-checked afterwards so
// results that straddle a session switch are discarded instead of applied.
package session
