package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Cache for tests.
type Memory struct {
	mu sync.RWMutex
	kv map[string][]byte
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{kv: make(map[string][]byte)}
}

func (c *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.kv[key]
	if !ok {
		return nil, ErrMiss
	}
	return append([]byte(nil), value...), nil
}

func (c *Memory) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv[key] = append([]byte(nil), value...)
	return nil
}

func (c *Memory) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.kv, key)
	return nil
}

func (c *Memory) ScanKeys(ctx context.Context, prefix string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0)
	for k := range c.kv {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *Memory) Close() error { return nil }
