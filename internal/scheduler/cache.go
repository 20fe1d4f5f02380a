package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"renderd/internal/engine"
	"renderd/pkg/geom"
)

// cacheKey hashes everything that makes a preview distinct: parameter
// snapshot, resolved preset identity, enabled libraries, source signature.
func cacheKey(params geom.ParameterSet, preset geom.QualityPreset, project geom.Project) uint64 {
	h := xxhash.New()
	_, _ = h.Write(params.Canonical())
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(preset.Identity())
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(strings.Join(project.LibraryIDs(), ","))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(project.SourceSignature())
	return h.Sum64()
}

type cacheEntry struct {
	artifact *geom.Artifact
	addedAt  time.Time
	lastUsed time.Time
}

// previewCache is a small bounded LRU. Writes happen only between awaited
// engine calls, so one mutex is plenty.
type previewCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint64]*cacheEntry
}

func newPreviewCache(capacity int) *previewCache {
	return &previewCache{capacity: capacity, entries: make(map[uint64]*cacheEntry)}
}

func (c *previewCache) get(key uint64) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok {
		e.lastUsed = time.Now()
	}
	return e, ok
}

func (c *previewCache) put(key uint64, a *geom.Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.entries[key] = &cacheEntry{artifact: a, addedAt: now, lastUsed: now}
	for len(c.entries) > c.capacity {
		// evict least recently used
		var lruKey uint64
		var lru *cacheEntry
		for k, e := range c.entries {
			if lru == nil || e.lastUsed.Before(lru.lastUsed) {
				lruKey, lru = k, e
			}
		}
		delete(c.entries, lruKey)
	}
}

func (c *previewCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cachedCopy returns a shallow copy of a cached artifact with the cached
// flag set, leaving the stored entry untouched.
func cachedCopy(a *geom.Artifact) *geom.Artifact {
	cp := *a
	cp.Timing.Cached = true
	return &cp
}

// statusError turns a non-OK engine status without an attached error into
// a plain error value.
func statusError(s engine.Status) error {
	return fmt.Errorf("render failed: %s", s)
}
