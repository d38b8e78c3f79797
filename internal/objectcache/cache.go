// Package objectcache defines the optional write-through object cache
// spec.md lists as an out-of-scope collaborator referenced only by
// interface (§1, §4.E step 1, §4.G). LRUObjectCache gives that
// interface one concrete, disabled-by-default body backed by
// github.com/hashicorp/golang-lru, the same classic v0.5.5 API pinned
// in the pack's ethereum-go-ethereum go.mod.
package objectcache

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/sheepgate/gateway/internal/wire"
)

// ObjectCache intercepts reads and writes before they reach the
// dispatcher/read path, matching object_cache_handle_request and
// bypass_object_cache in the source.
type ObjectCache interface {
	// HandleRequest attempts to satisfy req from cache. handled reports
	// whether the cache took ownership of the request (in which case the
	// caller returns resp/err directly instead of forwarding).
	HandleRequest(req *wire.Request) (resp wire.Response, handled bool, err error)

	// Bypass reports whether req must skip the cache entirely — true for
	// any request already marked Local, and always true while the cache
	// is disabled.
	Bypass(req *wire.Request) bool
}

// LRUObjectCache is the default ObjectCache: an in-memory LRU of object
// payloads, disabled by default. Enabling it is a constructor flag
// rather than a separate type, so the gateway always talks to the same
// interface regardless of whether caching is actually active.
type LRUObjectCache struct {
	enabled bool
	entries *lru.Cache
}

// NewLRUObjectCache creates a cache with room for capacity entries.
// enabled=false makes every call a pass-through, matching spec.md's
// "referenced only by interface" framing until an operator turns it on.
func NewLRUObjectCache(capacity int, enabled bool) (*LRUObjectCache, error) {
	if capacity <= 0 {
		capacity = 1024
	}
	c, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &LRUObjectCache{enabled: enabled, entries: c}, nil
}

func (c *LRUObjectCache) Bypass(req *wire.Request) bool {
	if !c.enabled {
		return true
	}
	return req.Header.Local
}

func (c *LRUObjectCache) HandleRequest(req *wire.Request) (wire.Response, bool, error) {
	if !c.enabled {
		return wire.Response{}, false, nil
	}

	key := req.Header.OID

	switch req.Header.Opcode {
	case wire.OpRead:
		if v, ok := c.entries.Get(key); ok {
			payload := v.([]byte)
			return wire.Response{
				Header:  wire.Header{Opcode: req.Header.Opcode, OID: key, Result: wire.Success, DataLength: uint32(len(payload))},
				Payload: payload,
			}, true, nil
		}
		return wire.Response{}, false, nil

	case wire.OpWrite, wire.OpCreateAndWrite:
		c.entries.Add(key, append([]byte(nil), req.Payload...))
		return wire.Response{}, false, nil

	case wire.OpRemove:
		c.entries.Remove(key)
		return wire.Response{}, false, nil

	default:
		return wire.Response{}, false, nil
	}
}
