// Package conntable implements the connection table (spec §3 "Connection
// table", §4.A): a hash-bucketed, handle-indexed store of connection
// records that grows as the proxy accepts more concurrent connections.
//
// Grounded on original_source/proxy.c's hashTableKey/checkTableExpansion/
// expandTable/getClientAtSlot/getServerAtSlot. Bucket placement uses the
// same MurmurHash3 seed (internal/hashutil) as the original; growth keeps
// the original's odd "double plus two" sizing and 3000-bucket ceiling
// (pkg/constants): the table grows on the first insert that finds the load
// at or above 0.75, and once it reaches 3000 buckets it stops growing and
// the load is no longer bounded.
package conntable

import (
	"sync"

	"github.com/hintproxy/hintproxy/internal/hashutil"
	"github.com/hintproxy/hintproxy/internal/record"
	"github.com/hintproxy/hintproxy/pkg/constants"
)

// Table maps socket handles to connection records.
type Table struct {
	mu      sync.RWMutex
	buckets [][]*record.Conn
	size    int
	count   int
}

// New creates a table with constants.InitialTableSize buckets.
func New() *Table {
	return newWithSize(constants.InitialTableSize)
}

func newWithSize(size int) *Table {
	t := &Table{
		buckets: make([][]*record.Conn, size),
		size:    size,
	}
	for i := range t.buckets {
		t.buckets[i] = make([]*record.Conn, 0, constants.InitialBucketCap)
	}
	return t
}

func (t *Table) bucketIndex(handle int) int {
	return int(hashutil.SumHandle(handle) % uint32(t.size))
}

// Get looks up a record by handle.
func (t *Table) Get(handle int) (*record.Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	bucket := t.buckets[t.bucketIndex(handle)]
	for _, c := range bucket {
		if c.Handle == handle {
			return c, true
		}
	}
	return nil, false
}

// Put inserts a new record, expanding the table first if the load factor
// before the insert has reached the threshold. Matches the original's order of
// operations: check expansion, then insert at the (possibly rehashed)
// slot.
func (t *Table) Put(c *record.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeExpand()

	idx := t.bucketIndex(c.Handle)
	t.buckets[idx] = append(t.buckets[idx], c)
	t.count++
}

// Remove deletes the record for a handle, if present.
func (t *Table) Remove(handle int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndex(handle)
	bucket := t.buckets[idx]
	for i, c := range bucket {
		if c.Handle == handle {
			t.buckets[idx] = append(bucket[:i], bucket[i+1:]...)
			t.count--
			return
		}
	}
}

// Len reports the number of tracked connections.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// maybeExpand doubles-plus-two the table when the load factor reaches
// constants.TableLoadFactor, unless already at constants.MaxTableSize.
// Caller must hold t.mu for writing.
func (t *Table) maybeExpand() {
	if t.size >= constants.MaxTableSize {
		return
	}

	loadFactor := float64(t.count) / float64(t.size)
	if loadFactor < constants.TableLoadFactor {
		return
	}

	newSize := t.size*constants.TableGrowFactor + constants.TableGrowConstant
	if newSize > constants.MaxTableSize {
		newSize = constants.MaxTableSize
	}

	newBuckets := make([][]*record.Conn, newSize)
	for i := range newBuckets {
		newBuckets[i] = make([]*record.Conn, 0, constants.InitialBucketCap)
	}

	oldSize := t.size
	t.size = newSize
	for i := 0; i < oldSize; i++ {
		for _, c := range t.buckets[i] {
			idx := t.bucketIndex(c.Handle)
			newBuckets[idx] = append(newBuckets[idx], c)
		}
	}
	t.buckets = newBuckets
}
