package source

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/valyala/fasthttp"
)

// entry is a refcounted Handle. The cache only physically closes a Handle
// once its refcount drops to zero, even if it has already been evicted from
// the LRU (spec.md §9: "eviction closes only when refcount drops to zero").
type entry struct {
	mu     sync.Mutex
	handle *Handle
	refs   int
	closed bool
}

func (e *entry) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refs--
	if e.refs <= 0 && e.closed {
		e.handle.Close()
	}
}

func (e *entry) evict() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.refs <= 0 {
		e.handle.Close()
	}
}

// Cache is a bounded LRU of open raster Handles keyed by URL, with
// reference-counted entries (spec.md §4.2 "memoized by URL"). A single mutex
// guards the LRU and the in-flight table; the cache is not lock-striped. The
// mutex is released while a Handle is being opened, and concurrent opens for
// the same URL wait on a per-URL in-flight marker, so a miss on one URL
// never blocks concurrent opens of others.
type Cache struct {
	client *fasthttp.Client

	mu       sync.Mutex
	inflight map[string]*sync.WaitGroup
	lru      *lru.Cache[string, *entry]
}

// NewCache builds a handle cache with the given capacity (number of distinct
// open rasters) and HTTP client used for remote sources.
func NewCache(capacity int, client *fasthttp.Client) (*Cache, error) {
	if client == nil {
		client = &fasthttp.Client{}
	}
	c := &Cache{client: client, inflight: make(map[string]*sync.WaitGroup)}
	evicted, err := lru.NewWithEvict(capacity, func(_ string, e *entry) { e.evict() })
	if err != nil {
		return nil, err
	}
	c.lru = evicted
	return c, nil
}

// Lease is a leased reference to an open raster. Release must be called
// exactly once when the caller is done with it.
type Lease struct {
	entry *entry
}

func (l *Lease) Handle() *Handle { return l.entry.handle }
func (l *Lease) Release()        { l.entry.release() }

// Acquire returns a leased Handle for url, opening it if necessary.
// Concurrent misses for the same URL wait for the first opener to finish and
// then retry, so a URL is never opened twice at once; the cache never hands
// out a handle it has already closed.
func (c *Cache) Acquire(url string) (*Lease, error) {
	for {
		c.mu.Lock()
		if e, ok := c.lru.Get(url); ok {
			e.mu.Lock()
			if !e.closed {
				e.refs++
				e.mu.Unlock()
				c.mu.Unlock()
				return &Lease{entry: e}, nil
			}
			e.mu.Unlock()
		}
		if wg, busy := c.inflight[url]; busy {
			c.mu.Unlock()
			wg.Wait()
			continue
		}
		wg := &sync.WaitGroup{}
		wg.Add(1)
		c.inflight[url] = wg
		c.mu.Unlock()

		h, err := Open(url, c.client)

		c.mu.Lock()
		delete(c.inflight, url)
		if err != nil {
			c.mu.Unlock()
			wg.Done()
			return nil, err
		}
		e := &entry{handle: h, refs: 1}
		c.lru.Add(url, e)
		c.mu.Unlock()
		wg.Done()
		return &Lease{entry: e}, nil
	}
}

// Len reports the number of distinct open rasters currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
