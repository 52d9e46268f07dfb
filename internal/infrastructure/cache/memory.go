package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shelfscan/backend/internal/domain"
)

// cacheItem represents a single session in the cache with expiration
type cacheItem struct {
	Value      []byte
	Expiration time.Time
}

// SessionCache is a thread-safe in-memory store of retailer credentials with TTL support
type SessionCache struct {
	data  map[string]cacheItem
	mutex sync.RWMutex
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewSessionCache creates a new session cache
func NewSessionCache() *SessionCache {
	cache := &SessionCache{
		data: make(map[string]cacheItem),
		now:  time.Now,
		stop: make(chan struct{}),
	}

	// Start cleanup goroutine to remove expired entries every 10 minutes
	go cache.cleanupExpired(10 * time.Minute)

	return cache
}

// Get retrieves a copy of the credentials cached under key
func (c *SessionCache) Get(ctx context.Context, key string) (*domain.SessionCredentials, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[key]
	if !exists {
		return nil, domain.ErrCacheMiss
	}

	// Check if expired
	if c.now().After(item.Expiration) {
		return nil, domain.ErrCacheMiss
	}

	var creds domain.SessionCredentials
	if err := json.Unmarshal(item.Value, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// Set stores credentials with TTL. The value is serialized so later mutation by the caller
// never leaks into the cache.
func (c *SessionCache) Set(ctx context.Context, key string, creds *domain.SessionCredentials, ttl time.Duration) error {
	jsonData, err := json.Marshal(creds)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data[key] = cacheItem{
		Value:      jsonData,
		Expiration: c.now().Add(ttl),
	}
	return nil
}

// Delete removes a session from the cache
func (c *SessionCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}

// Exists checks if a key exists in the cache and is not expired
func (c *SessionCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[key]
	if !exists {
		return false, nil
	}
	return !c.now().After(item.Expiration), nil
}

// cleanupExpired removes expired entries from the cache periodically
func (c *SessionCache) cleanupExpired(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *SessionCache) removeExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	now := c.now()
	for key, item := range c.data {
		if now.After(item.Expiration) {
			delete(c.data, key)
		}
	}
}

// Size returns the current number of items in the cache (for debugging/monitoring)
func (c *SessionCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Close stops the cleanup goroutine
func (c *SessionCache) Close() {
	c.once.Do(func() { close(c.stop) })
}
