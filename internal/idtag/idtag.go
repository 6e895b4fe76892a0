// Package idtag implements IdTagsCache: the per-station pool of id-tags
// that the automatic transaction generator draws from, issued by a
// configurable policy (spec.md §2 "IdTagsCache", §4 idTagDistribution).
package idtag

import (
	"math/rand"
	"sync"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

// Policy selects which id-tag to hand out next.
type Policy string

const (
	PolicyRandom            Policy = "random"
	PolicyRoundRobin        Policy = "round-robin"
	PolicyConnectorAffinity Policy = "connector-affinity"
)

// Cache holds one station's id-tag pool and issuance state. It is not
// itself a singleton: a Supervisor constructs one per station and passes
// it down explicitly, per spec.md §9's singleton-to-explicit-context
// redesign (the source keeps IdTagsCache as a class-level registry keyed
// by hashId; here each StationEngine owns its own Cache value).
type Cache struct {
	mu     sync.Mutex
	tags   []string
	policy Policy
	rng    *rand.Rand

	nextRoundRobin int
	byConnector    map[int]int // connectorId -> next index into tags, for connector-affinity
}

// New builds a Cache over tags (must be non-empty for Issue to succeed)
// using policy. seed fixes the random source for PolicyRandom so that test
// harnesses can reproduce a run deterministically.
func New(tags []string, policy Policy, seed int64) *Cache {
	cp := make([]string, len(tags))
	copy(cp, tags)
	return &Cache{
		tags:        cp,
		policy:      policy,
		rng:         rand.New(rand.NewSource(seed)),
		byConnector: make(map[int]int),
	}
}

// Issue returns the next id-tag for connectorId under the configured
// policy. Returns a State error if the pool is empty.
func (c *Cache) Issue(connectorId int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.tags) == 0 {
		return "", ocpperror.State("id-tag pool is empty")
	}

	switch c.policy {
	case PolicyRoundRobin:
		tag := c.tags[c.nextRoundRobin%len(c.tags)]
		c.nextRoundRobin++
		return tag, nil

	case PolicyConnectorAffinity:
		idx := c.byConnector[connectorId] % len(c.tags)
		tag := c.tags[idx]
		c.byConnector[connectorId] = idx + 1
		return tag, nil

	default: // PolicyRandom
		return c.tags[c.rng.Intn(len(c.tags))], nil
	}
}

// All returns a copy of the configured id-tag pool.
func (c *Cache) All() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.tags))
	copy(out, c.tags)
	return out
}

// Len reports how many id-tags are in the pool.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tags)
}
