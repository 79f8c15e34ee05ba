package config

import (
	"maps"

	"github.com/sabouaram/nodelink/atomicx"
)

// Credentials is the name-to-key material a Handshaker authenticates
// dial attempts with. It is immutable once built: Replace swaps in an
// entirely new Credentials atomically, and the change is only observed
// by connections dialed after the swap — a Handshaker call already in
// flight keeps using the snapshot it was handed.
type Credentials struct {
	keys atomicx.Value[map[string][]byte]
}

// NewCredentials builds a Credentials from name->key pairs. A nil map is
// treated as empty.
func NewCredentials(keys map[string][]byte) *Credentials {
	c := &Credentials{}
	c.keys.Store(cloneKeys(keys))
	return c
}

// Lookup returns the key for name and whether it is present.
func (c *Credentials) Lookup(name string) ([]byte, bool) {
	key, ok := c.keys.Load()[name]
	return key, ok
}

// Snapshot returns a defensive copy of the current name->key map.
func (c *Credentials) Snapshot() map[string][]byte {
	return cloneKeys(c.keys.Load())
}

// Replace atomically swaps in a new set of keys. Connections already
// dialed and authenticated are unaffected; only subsequent dials see the
// new material.
func (c *Credentials) Replace(keys map[string][]byte) {
	c.keys.Store(cloneKeys(keys))
}

func cloneKeys(keys map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(keys))
	maps.Copy(out, keys)
	return out
}
