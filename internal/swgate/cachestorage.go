package swgate

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// CacheStorage is the set of named cache generations.
type CacheStorage interface {
	// Open returns the named cache, creating it if absent.
	Open(ctx context.Context, name string) (Cache, error)
	// Delete removes the named cache and every entry in it. It reports
	// whether the cache existed.
	Delete(ctx context.Context, name string) (bool, error)
	// Keys lists cache names in creation order.
	Keys(ctx context.Context) ([]string, error)
	Has(ctx context.Context, name string) (bool, error)
}

// Cache is a single generation of request → response entries.
type Cache interface {
	// Match returns the stored response for req. ok is false on a miss.
	Match(ctx context.Context, req *Request) (resp *Response, ok bool, err error)
	// Put upserts resp under req's identity.
	Put(ctx context.Context, req *Request, resp *Response) error
}

// MemoryStorage keeps caches in process memory.
type MemoryStorage struct {
	maxEntry int64

	mu     sync.Mutex
	order  []string
	caches map[string]*memoryCache
}

// NewMemoryStorage returns an empty storage. maxEntry <= 0 disables the
// per-entry size limit.
func NewMemoryStorage(maxEntry int64) *MemoryStorage {
	return &MemoryStorage{maxEntry: maxEntry, caches: map[string]*memoryCache{}}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[name]; ok {
		return c, nil
	}
	c := &memoryCache{maxEntry: s.maxEntry, entries: map[string]*Response{}}
	s.caches[name] = c
	s.order = append(s.order, name)
	return c, nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.caches[name]; !ok {
		return false, nil
	}
	delete(s.caches, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...), nil
}

func (s *MemoryStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.caches[name]
	return ok, nil
}

type memoryCache struct {
	maxEntry int64

	mu      sync.RWMutex
	entries map[string]*Response
}

func (c *memoryCache) Match(_ context.Context, req *Request) (*Response, bool, error) {
	if !req.isGet() {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	ent, ok := c.entries[req.CacheKey()]
	if !ok {
		return nil, false, nil
	}
	return ent.Clone(), true, nil
}

func (c *memoryCache) Put(_ context.Context, req *Request, resp *Response) error {
	ent, err := prepareEntry(req, resp, c.maxEntry)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[req.CacheKey()] = ent
	c.mu.Unlock()
	return nil
}

// prepareEntry validates and snapshots a response before it is stored.
func prepareEntry(req *Request, resp *Response, maxEntry int64) (*Response, error) {
	if !req.isGet() {
		return nil, ErrNotCacheable
	}
	if isPrivate(resp.Header) {
		return nil, ErrNotCacheable
	}
	if maxEntry > 0 && int64(len(resp.Body)) > maxEntry {
		return nil, ErrTooLarge
	}
	ent := resp.Clone()
	ent.source = ""
	ent.Header.Del("Content-Length")
	if ent.URL == "" {
		ent.URL = req.URL
	}
	ent.StoredAt = time.Now().Unix()
	return ent, nil
}

// isPrivate reports responses that belong to one user: they set a cookie or
// forbid shared caching.
func isPrivate(h http.Header) bool {
	if len(h.Values("Set-Cookie")) > 0 {
		return true
	}
	for _, v := range h.Values("Cache-Control") {
		for _, d := range strings.Split(v, ",") {
			switch strings.ToLower(strings.TrimSpace(d)) {
			case "private", "no-store":
				return true
			}
		}
	}
	return false
}

// staleNames returns every name in names except keep, sorted.
func staleNames(names []string, keep string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != keep {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
