package modes

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ICAOCache remembers addresses heard recently in CRC-clean frames.
// Surveillance replies (DF 0/4/5/16/20/21) carry their address XORed
// into the CRC, so their syndrome can only be trusted when it matches
// an address with a live heartbeat here.
type ICAOCache struct {
	c *gocache.Cache
}

// NewICAOCache creates a cache whose entries expire after ttl.
func NewICAOCache(ttl time.Duration) *ICAOCache {
	return &ICAOCache{c: gocache.New(ttl, 2*ttl)}
}

func key(icao uint32) string { return fmt.Sprintf("%06X", icao) }

// Heard records a heartbeat for an address, resetting its expiry.
func (ic *ICAOCache) Heard(icao uint32) {
	ic.c.SetDefault(key(icao), struct{}{})
}

// Known reports whether the address has a live heartbeat.
func (ic *ICAOCache) Known(icao uint32) bool {
	_, ok := ic.c.Get(key(icao))
	return ok
}
