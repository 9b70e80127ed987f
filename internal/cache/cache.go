// Package cache implements the response cache (spec §3 "Cache table",
// §4.B): a hash-bucketed store of origin responses keyed by URL and server
// port, with age/max-age bookkeeping and stale-first-then-LRU eviction.
//
// Bucket placement and eviction policy are grounded on
// original_source/cache.c's putRequest/storeRequest/evictRequest/
// getResponse/findSlotIndex. The original's getMaxAge has a latent defect
// where a non-Cache-Control header line overwrites the running default with
// a garbage value instead of leaving it at the one-hour default; this
// implementation deliberately does not reproduce that behavior; absent or
// malformed max-age always falls back to DefaultMaxAge.
package cache

import (
	"bytes"
	"strconv"
	"sync"
	"time"

	"github.com/hintproxy/hintproxy/internal/hashutil"
	"github.com/hintproxy/hintproxy/pkg/constants"
)

// Entry is a single cached response.
type Entry struct {
	URL        string
	ServerPort int
	Response   []byte

	MaxAge      time.Duration
	StoredAt    time.Time
	StaleAt     time.Time
	RetrievedAt time.Time
}

// Cache is a fixed-bucket-count, dynamically-growing-per-bucket response
// cache. Unlike the connection table (internal/conntable), the cache table
// itself does not resize once created (spec §9 allows it as an option, the
// reference proxy never takes it).
type Cache struct {
	mu       sync.Mutex
	buckets  [][]*Entry
	size     int
	numItems int
	maxItems int
}

// New creates a cache with the given number of buckets. Size should be a
// positive bucket count; constants.DefaultCacheSize is used when the
// configured value is non-positive.
func New(size int) *Cache {
	if size <= 0 {
		size = constants.DefaultCacheSize
	}
	c := &Cache{
		buckets:  make([][]*Entry, size),
		size:     size,
		maxItems: int(float64(size) * constants.CacheLoadFactor),
	}
	for i := range c.buckets {
		c.buckets[i] = make([]*Entry, 0, constants.InitialCacheBucket)
	}
	return c
}

func (c *Cache) bucketIndex(url string) int {
	return int(hashutil.Sum32([]byte(url)) % uint32(c.size))
}

func (c *Cache) findIndex(bucket []*Entry, url string, port int) int {
	for i, e := range bucket {
		if e.URL == url && e.ServerPort == port {
			return i
		}
	}
	return -1
}

// Put stores a response, replacing any existing entry for the same URL and
// port, evicting first if the cache is at capacity and no existing entry
// matched (spec §4.B "insertion").
func (c *Cache) Put(url string, port int, response []byte, responseHeader []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.bucketIndex(url)
	bucket := c.buckets[idx]

	now := time.Now()
	maxAge := extractMaxAge(responseHeader)
	entry := &Entry{
		URL:         url,
		ServerPort:  port,
		Response:    response,
		MaxAge:      maxAge,
		StoredAt:    now,
		RetrievedAt: now,
		StaleAt:     now.Add(maxAge),
	}

	if slotIndex := c.findIndex(bucket, url, port); slotIndex != -1 {
		bucket[slotIndex] = entry
		c.buckets[idx] = bucket
		return
	}

	if c.numItems >= c.maxItems {
		c.evict()
	}

	c.buckets[idx] = append(bucket, entry)
	c.numItems++
}

// Get returns a cached response and its current age if a fresh entry
// exists for url/port. A stale entry is treated as a miss, matching
// getResponse's behavior of returning NULL once staleTime has passed
// without removing the slot itself.
func (c *Cache) Get(url string, port int) (response []byte, age time.Duration, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.bucketIndex(url)
	bucket := c.buckets[idx]

	slotIndex := c.findIndex(bucket, url, port)
	if slotIndex == -1 {
		return nil, 0, false
	}

	entry := bucket[slotIndex]
	now := time.Now()
	if !now.Before(entry.StaleAt) {
		return nil, 0, false
	}

	entry.RetrievedAt = now
	return entry.Response, now.Sub(entry.StoredAt), true
}

// evict removes a single entry: the first stale entry encountered during a
// full sweep, or else the entry with the oldest RetrievedAt (LRU), matching
// evictRequest's single-pass semantics exactly. Caller must hold c.mu.
func (c *Cache) evict() {
	var staleBucket, staleSlot = -1, -1
	oldestRetrieved := time.Time{}
	var lruBucket, lruSlot = -1, -1

	now := time.Now()

outer:
	for bi, bucket := range c.buckets {
		for si, e := range bucket {
			if e.StaleAt.Before(now) {
				staleBucket, staleSlot = bi, si
				break outer
			}
			if lruBucket == -1 || e.RetrievedAt.Before(oldestRetrieved) {
				oldestRetrieved = e.RetrievedAt
				lruBucket, lruSlot = bi, si
			}
		}
	}

	if staleBucket != -1 {
		c.removeAt(staleBucket, staleSlot)
		return
	}
	if lruBucket != -1 {
		c.removeAt(lruBucket, lruSlot)
	}
}

func (c *Cache) removeAt(bucketIdx, slotIdx int) {
	bucket := c.buckets[bucketIdx]
	bucket = append(bucket[:slotIdx], bucket[slotIdx+1:]...)
	c.buckets[bucketIdx] = bucket
	c.numItems--
}

// extractMaxAge scans a raw response header block for a
// "Cache-Control: max-age=N" line and returns N seconds, or
// constants.DefaultMaxAge if the header is absent, unparsable, or the
// header block doesn't carry one at all.
func extractMaxAge(header []byte) time.Duration {
	const prefix = "Cache-Control: max-age="

	for _, line := range bytes.Split(header, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if !bytes.HasPrefix(line, []byte(prefix)) {
			continue
		}
		rest := line[len(prefix):]
		end := bytes.IndexByte(rest, ' ')
		if end != -1 {
			rest = rest[:end]
		}
		seconds, err := strconv.Atoi(string(rest))
		if err != nil || seconds < 0 {
			return constants.DefaultMaxAge
		}
		return time.Duration(seconds) * time.Second
	}
	return constants.DefaultMaxAge
}

// Len reports the number of cached entries, for metrics/logging.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numItems
}
