package storage

import (
	"errors"
	"sync"
)

// ErrCacheClosed is returned when a cache is used after Write or Discard.
var ErrCacheClosed = errors.New("storage: cache already flushed or discarded")

// CacheDB buffers writes on top of a parent database. Reads fall through to
// the parent for keys the cache has not touched. Nothing reaches the parent
// until Write is called, so discarding the cache rolls back every write made
// through it.
type CacheDB struct {
	parent Database

	mu     sync.Mutex
	writes map[string][]byte
	closed bool
}

// NewCacheDB wraps the parent database with a write-back cache.
func NewCacheDB(parent Database) *CacheDB {
	return &CacheDB{parent: parent, writes: make(map[string][]byte)}
}

func (c *CacheDB) Put(key []byte, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	if value == nil {
		value = []byte{}
	}
	c.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

func (c *CacheDB) Get(key []byte) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCacheClosed
	}
	value, ok := c.writes[string(key)]
	c.mu.Unlock()
	if ok {
		if value == nil {
			return nil, ErrNotFound
		}
		return append([]byte(nil), value...), nil
	}
	return c.parent.Get(key)
}

func (c *CacheDB) Delete(key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	c.writes[string(key)] = nil
	return nil
}

// Dirty reports how many keys have pending writes.
func (c *CacheDB) Dirty() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// Write flushes the pending writes into the parent. Parents implementing
// BatchWriter receive the writes atomically.
func (c *CacheDB) Write() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	c.closed = true
	if len(c.writes) == 0 {
		return nil
	}
	if batcher, ok := c.parent.(BatchWriter); ok {
		return batcher.WriteBatch(c.writes)
	}
	for _, key := range sortedKeys(c.writes) {
		value := c.writes[key]
		var err error
		if value == nil {
			err = c.parent.Delete([]byte(key))
		} else {
			err = c.parent.Put([]byte(key), value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every pending write.
func (c *CacheDB) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.writes = nil
}

// Close discards the cache. The parent is owned by the caller and stays open.
func (c *CacheDB) Close() error {
	c.Discard()
	return nil
}
