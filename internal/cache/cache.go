// Package cache stores generated speech audio by key so identical requests
// are not synthesized twice. Entries are write-once.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// ErrDuplicateKey is returned by Set when the key already holds a value.
var ErrDuplicateKey = errors.New("cache key already exists")

// EventKind says what happened to an entry.
type EventKind int

const (
	EventSet EventKind = iota
	EventHit
	EventClear
	EventClearAll
)

func (k EventKind) String() string {
	switch k {
	case EventSet:
		return "set"
	case EventHit:
		return "hit"
	case EventClear:
		return "clear"
	case EventClearAll:
		return "clear_all"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after every change or hit.
type Event struct {
	Kind  EventKind
	Key   string
	Value []byte
}

// Store persists entries behind the in-memory map.
type Store interface {
	LoadAll(ctx context.Context) (map[string][]byte, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context) error
	Close() error
}

// Cache is an in-memory map backed by a Store. Safe for concurrent use.
type Cache struct {
	store  Store
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string][]byte

	subMu  sync.RWMutex
	subs   map[int]func(Event)
	nextID int
}

// New opens a cache over store and preloads every persisted entry.
func New(ctx context.Context, store Store, logger zerolog.Logger) (*Cache, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	entries, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("preload cache: %w", err)
	}
	if entries == nil {
		entries = make(map[string][]byte)
	}

	c := &Cache{
		store:   store,
		logger:  logger.With().Str("component", "cache").Logger(),
		entries: entries,
		subs:    make(map[int]func(Event)),
	}
	c.logger.Debug().Int("entries", len(entries)).Msg("Cache loaded")
	return c, nil
}

// Get returns a copy of the value for key. Misses fall through to the
// store.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var err error
		v, ok, err = c.store.Get(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("cache get %q: %w", key, err)
		}
		if !ok {
			return nil, false, nil
		}
		c.mu.Lock()
		if existing, dup := c.entries[key]; dup {
			v = existing
		} else {
			c.entries[key] = v
		}
		c.mu.Unlock()
	}

	c.publish(Event{Kind: EventHit, Key: key, Value: bytes.Clone(v)})
	return bytes.Clone(v), true, nil
}

// Set stores value under key. It never overwrites: an existing key yields
// ErrDuplicateKey and the stored value is unchanged.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return fmt.Errorf("set %q: %w", key, ErrDuplicateKey)
	}
	if err := c.store.Put(ctx, key, value); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	stored := append([]byte(nil), value...)
	c.entries[key] = stored
	c.mu.Unlock()

	c.publish(Event{Kind: EventSet, Key: key, Value: bytes.Clone(stored)})
	return nil
}

// Clear removes key. Removing a missing key is not an error.
func (c *Cache) Clear(ctx context.Context, key string) error {
	c.mu.Lock()
	if err := c.store.Delete(ctx, key); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("cache clear %q: %w", key, err)
	}
	delete(c.entries, key)
	c.mu.Unlock()

	c.publish(Event{Kind: EventClear, Key: key})
	return nil
}

// ClearAll removes every entry.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	if err := c.store.DeleteAll(ctx); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("cache clear all: %w", err)
	}
	c.entries = make(map[string][]byte)
	c.mu.Unlock()

	c.publish(Event{Kind: EventClearAll})
	return nil
}

// Keys returns the cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Subscribe registers fn for every event. Call the returned func to stop.
func (c *Cache) Subscribe(fn func(Event)) func() {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Cache) publish(e Event) {
	c.subMu.RLock()
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}

func (c *Cache) Close() error {
	return c.store.Close()
}
