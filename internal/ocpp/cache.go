package ocpp

import (
	"sync"
	"time"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

// CachedRequest tracks one in-flight outbound CALL awaiting a CALLRESULT or
// CALLERROR, per spec.md §3/§8: a message id is cached exactly once at a
// time, and is removed before its callback returns or after its deadline
// fires, whichever comes first.
type CachedRequest struct {
	CommandName    string
	RequestPayload interface{}
	Deadline       time.Time
	resolve        func(payload []byte)
	reject         func(err *ocpperror.Error)
	timer          *time.Timer
}

// RequestCache is the per-station keyed table of CachedRequests. It owns
// the timeout timer for each entry so that callers never need to poll.
type RequestCache struct {
	mu      sync.Mutex
	entries map[string]*CachedRequest
}

// NewRequestCache creates an empty cache.
func NewRequestCache() *RequestCache {
	return &RequestCache{entries: make(map[string]*CachedRequest)}
}

// Register adds a new CachedRequest for id, arming a timer that invokes
// reject with a REQUEST_TIMEOUT error if no Resolve/Reject call arrives
// first. Registering the same id twice is a caller bug; the second
// registration replaces the first, stopping its timer.
func (c *RequestCache) Register(id, commandName string, payload interface{}, timeout time.Duration, resolve func([]byte), reject func(*ocpperror.Error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[id]; ok && existing.timer != nil {
		existing.timer.Stop()
	}

	cr := &CachedRequest{
		CommandName:    commandName,
		RequestPayload: payload,
		Deadline:       time.Now().Add(timeout),
		resolve:        resolve,
		reject:         reject,
	}
	cr.timer = time.AfterFunc(timeout, func() {
		c.fireTimeout(id)
	})
	c.entries[id] = cr
}

func (c *RequestCache) fireTimeout(id string) {
	c.mu.Lock()
	cr, ok := c.entries[id]
	if ok {
		delete(c.entries, id)
	}
	c.mu.Unlock()

	if ok {
		cr.reject(ocpperror.RequestTimeout(cr.CommandName))
	}
}

// Resolve delivers a successful CALLRESULT payload to the caller awaiting
// id, removing the cache entry. It reports whether an entry was found.
func (c *RequestCache) Resolve(id string, payload []byte) bool {
	c.mu.Lock()
	cr, ok := c.entries[id]
	if ok {
		delete(c.entries, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if cr.timer != nil {
		cr.timer.Stop()
	}
	cr.resolve(payload)
	return true
}

// Reject delivers a CALLERROR (or a locally-synthesized failure, e.g. on
// connection close) to the caller awaiting id, removing the cache entry.
func (c *RequestCache) Reject(id string, err *ocpperror.Error) bool {
	c.mu.Lock()
	cr, ok := c.entries[id]
	if ok {
		delete(c.entries, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if cr.timer != nil {
		cr.timer.Stop()
	}
	cr.reject(err)
	return true
}

// DrainWithError rejects every pending entry with err, used on stop()/close
// to cancel in-flight requests per spec.md §5.
func (c *RequestCache) DrainWithError(err *ocpperror.Error) {
	c.mu.Lock()
	pending := c.entries
	c.entries = make(map[string]*CachedRequest)
	c.mu.Unlock()

	for _, cr := range pending {
		if cr.timer != nil {
			cr.timer.Stop()
		}
		cr.reject(err)
	}
}

// Len reports the number of in-flight requests (used in tests).
func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
