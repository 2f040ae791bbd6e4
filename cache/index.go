package cache

import (
	"container/list"
	"sync"
	"time"

	"cctv-replay/archive"
)

// Entry is the metadata record for one cached segment file.
type Entry struct {
	Key        string
	Segment    archive.RemoteSegment
	DiskPath   string
	SizeBytes  int64
	LastAccess time.Time
}

// Index is the bounded, time-expiring metadata index over the disk cache.
// Entries expire after the configured TTL since their last access and the
// index never holds more than capacity entries; the least recently accessed
// entry is dropped when the bound is hit. Dropping metadata does not touch
// the file on disk: a metadata-less file is simply a cache miss that gets
// repaired on the next access, and the janitor owns file deletion.
type Index struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently accessed
	now      func() time.Time
}

// NewIndex creates an index bounded to capacity entries, each expiring ttl
// after its last access.
func NewIndex(capacity int, ttl time.Duration) *Index {
	return &Index{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the entry for key, bumping its access time. Expired entries are
// removed and reported as absent.
func (ix *Index) Get(key string) (Entry, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	el, ok := ix.entries[key]
	if !ok {
		return Entry{}, false
	}
	entry := el.Value.(*Entry)
	if ix.now().Sub(entry.LastAccess) > ix.ttl {
		ix.order.Remove(el)
		delete(ix.entries, key)
		return Entry{}, false
	}
	entry.LastAccess = ix.now()
	ix.order.MoveToFront(el)
	return *entry, true
}

// Put inserts or refreshes the entry for key, evicting the least recently
// accessed entry if the capacity bound would be exceeded.
func (ix *Index) Put(entry Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	entry.LastAccess = ix.now()
	if el, ok := ix.entries[entry.Key]; ok {
		*el.Value.(*Entry) = entry
		ix.order.MoveToFront(el)
		return
	}
	for len(ix.entries) >= ix.capacity {
		oldest := ix.order.Back()
		if oldest == nil {
			break
		}
		ix.order.Remove(oldest)
		delete(ix.entries, oldest.Value.(*Entry).Key)
	}
	ix.entries[entry.Key] = ix.order.PushFront(&entry)
}

// Delete removes the entry for key if present.
func (ix *Index) Delete(key string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if el, ok := ix.entries[key]; ok {
		ix.order.Remove(el)
		delete(ix.entries, key)
	}
}

// Clear drops all entries.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = make(map[string]*list.Element)
	ix.order.Init()
}

// Len returns the number of live entries without touching access order.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}
