package service

import (
	"context"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/MKhiriev/go-pos-sync/internal/store"
)

// DedupGuard answers whether a device already applied a logical mutation.
// Recently applied checksums are served from a TTL cache; misses fall back to
// the mutation store, which is authoritative.
type DedupGuard struct {
	cache     *ttlcache.Cache[string, string]
	mutations store.MutationRepository
}

// NewDedupGuard returns a guard whose cache entries live for ttl. The cache
// does not evict in the background until Run is called; expired entries are
// never returned either way.
func NewDedupGuard(mutations store.MutationRepository, ttl time.Duration) *DedupGuard {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &DedupGuard{
		cache:     ttlcache.New[string, string](ttlcache.WithTTL[string, string](ttl)),
		mutations: mutations,
	}
}

func dedupKey(deviceID, checksum string) string {
	return deviceID + "\x00" + checksum
}

// Lookup returns the id of the applied original of checksum for the device.
func (g *DedupGuard) Lookup(ctx context.Context, deviceID, checksum string) (string, bool, error) {
	if checksum == "" {
		return "", false, nil
	}

	key := dedupKey(deviceID, checksum)
	if item := g.cache.Get(key); item != nil {
		return item.Value(), true, nil
	}

	original, err := g.mutations.FindAppliedByChecksum(ctx, deviceID, checksum)
	if errors.Is(err, store.ErrMutationNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	g.cache.Set(key, original.ID, ttlcache.DefaultTTL)
	return original.ID, true, nil
}

// Remember records that mutationID applied checksum for the device. Call it
// only after the application committed.
func (g *DedupGuard) Remember(deviceID, checksum, mutationID string) {
	if checksum == "" {
		return
	}
	g.cache.Set(dedupKey(deviceID, checksum), mutationID, ttlcache.DefaultTTL)
}

// Len returns the number of cached entries.
func (g *DedupGuard) Len() int {
	return g.cache.Len()
}

// Run evicts expired entries until ctx is done.
func (g *DedupGuard) Run(ctx context.Context) error {
	go g.cache.Start()
	<-ctx.Done()
	g.cache.Stop()
	return nil
}
