package cachestore

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/jonwraymond/rentsync/session"
)

// Namespace prefixes every cache key written by this engine.
const Namespace = "rentsync"

// Key builds a scope-namespaced cache key for a logical resource.
// Format: rentsync:<resource>:<scope>[:<hash>]
//
// Scope namespacing is what keeps one session's cached data invisible to
// another. The optional locator parts (search text, filters) are hashed in
// so distinct queries never share an entry.
func Key(resource string, scope session.Scope, locator ...string) string {
	scopePart := string(scope)
	if scope.IsAnonymous() {
		scopePart = "anon"
	}

	key := Namespace + ":" + resource + ":" + scopePart
	if len(locator) == 0 {
		return key
	}

	// Locator parts are joined with a separator that cannot appear in them
	// accidentally, then hashed for a bounded key length.
	sum := sha256.Sum256([]byte(strings.Join(locator, "\x00")))
	return key + ":" + hex.EncodeToString(sum[:8])
}
