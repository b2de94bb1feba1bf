// Package artifacts caches rendered report artifacts in memory, keyed by the
// report fingerprint so identical reports share one rendered copy.
package artifacts

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"strategiq-backend/internal/report"
	"strategiq-backend/internal/shared/metrics"
	"strategiq-backend/internal/shared/telemetry"
)

// Renderer produces the artifact bytes for a report.
type Renderer interface {
	Render(rep *report.Report) ([]byte, error)
}

// RenderError wraps a renderer failure so callers can map it to a 502-class
// response instead of a missing-artifact one.
type RenderError struct {
	Fingerprint string
	Err         error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render artifact %s: %v", e.Fingerprint, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

type entry struct {
	fingerprint string
	data        []byte
	renderedAt  time.Time
	hits        int
}

// Cache is a bounded fingerprint-keyed artifact cache with LRU eviction.
// Concurrent requests for the same fingerprint share a single render; failed
// renders are never cached.
type Cache struct {
	renderer   Renderer
	maxBytes   int64
	maxEntries int

	group singleflight.Group

	mu        sync.Mutex
	order     *list.List               // front is most recently used
	entries   map[string]*list.Element // fingerprint -> element holding *entry
	sizeBytes int64
}

// NewCache builds a cache bounded by both byte size and entry count. A zero
// bound disables that dimension.
func NewCache(renderer Renderer, maxBytes int64, maxEntries int) *Cache {
	return &Cache{
		renderer:   renderer,
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

// GetOrCreate returns the artifact for the report, rendering it on a miss.
// The returned slice is a copy; callers may not mutate cache internals.
func (c *Cache) GetOrCreate(ctx context.Context, rep *report.Report) ([]byte, error) {
	fingerprint := report.Fingerprint(rep)

	if data, ok := c.lookup(fingerprint); ok {
		metrics.IncPDFCacheHit()
		return data, nil
	}

	// singleflight guarantees one render per fingerprint even under
	// concurrent misses; losers of the race share the winner's result.
	result, err, shared := c.group.Do(fingerprint, func() (any, error) {
		if data, ok := c.lookup(fingerprint); ok {
			return data, nil
		}
		metrics.IncPDFCacheMiss()
		data, renderErr := c.renderer.Render(rep)
		if renderErr != nil {
			metrics.IncPDFRenderFailed()
			return nil, &RenderError{Fingerprint: fingerprint, Err: renderErr}
		}
		c.insert(fingerprint, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		metrics.IncPDFCacheHit()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	data := result.([]byte)
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Len reports the number of cached artifacts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// SizeBytes reports the total cached artifact size.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sizeBytes
}

func (c *Cache) lookup(fingerprint string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	ent := elem.Value.(*entry)
	ent.hits++

	out := make([]byte, len(ent.data))
	copy(out, ent.data)
	return out, true
}

func (c *Cache) insert(fingerprint string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[fingerprint]; ok {
		c.order.MoveToFront(elem)
		return
	}

	// An artifact larger than the whole byte budget is served uncached.
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		telemetry.Debug("artifacts.cache.oversized", map[string]any{
			"fingerprint": fingerprint,
			"bytes":       len(data),
			"max_bytes":   c.maxBytes,
		})
		return
	}

	ent := &entry{fingerprint: fingerprint, data: data, renderedAt: time.Now()}
	c.entries[fingerprint] = c.order.PushFront(ent)
	c.sizeBytes += int64(len(data))

	for c.overLimit() {
		oldest := c.order.Back()
		if oldest == nil || oldest == c.order.Front() {
			// Never evict the entry just inserted.
			break
		}
		evicted := oldest.Value.(*entry)
		c.order.Remove(oldest)
		delete(c.entries, evicted.fingerprint)
		c.sizeBytes -= int64(len(evicted.data))
		metrics.IncPDFCacheEviction()
		telemetry.Debug("artifacts.cache.evicted", map[string]any{
			"fingerprint": evicted.fingerprint,
			"bytes":       len(evicted.data),
			"hits":        evicted.hits,
		})
	}
}

func (c *Cache) overLimit() bool {
	if c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		return true
	}
	if c.maxBytes > 0 && c.sizeBytes > c.maxBytes {
		return true
	}
	return false
}
