// Package credential caches the session tokens obtained for each downstream target.
//
// A clear is an explicit invalidation record rather than a deletion: it
// stores [SentinelEmpty] with a fresh timestamp so "how long has this been
// invalid" is always answerable.
package credential

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SentinelEmpty is the token value written by [Cache.Clear].
const SentinelEmpty = ""

// Credential is the current token for one target.
type Credential struct {
	TargetID   string    `json:"target_id"`
	Token      string    `json:"token"`
	ObtainedAt time.Time `json:"obtained_at"`
}

// Valid reports whether the credential holds a real token.
func (c Credential) Valid() bool {
	return c.Token != SentinelEmpty
}

// Cache holds one [Credential] per target. It is safe for concurrent use.
type Cache struct {
	clock clockwork.Clock

	mu      sync.RWMutex
	entries map[string]Credential
}

// NewCache creates an empty cache that timestamps entries with clock.
func NewCache(clock clockwork.Clock) *Cache {
	return &Cache{
		clock:   clock,
		entries: make(map[string]Credential),
	}
}

// Set stores token for target with obtained_at = now.
func (c *Cache) Set(target, token string) Credential {
	cred := Credential{TargetID: target, Token: token, ObtainedAt: c.clock.Now()}
	c.mu.Lock()
	c.entries[target] = cred
	c.mu.Unlock()
	return cred
}

// Clear invalidates the token for target by writing the sentinel with obtained_at = now.
func (c *Cache) Clear(target string) Credential {
	return c.Set(target, SentinelEmpty)
}

// Get returns the current credential for target, or a zero-valued credential
// carrying only the target ID when nothing was ever stored.
func (c *Cache) Get(target string) Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cred, ok := c.entries[target]; ok {
		return cred
	}
	return Credential{TargetID: target}
}

// All returns every stored credential ordered by target ID.
func (c *Cache) All() []Credential {
	c.mu.RLock()
	out := make([]Credential, 0, len(c.entries))
	for _, cred := range c.entries {
		out = append(out, cred)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}
