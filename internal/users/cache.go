package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/versefriends/backend/internal/models"
)

// ErrDirectoryUnavailable is returned when no underlying directory is configured.
var ErrDirectoryUnavailable = errors.New("user directory unavailable")

// Directory resolves basic user information.
type Directory interface {
	SelectUserBasicInfo(ctx context.Context, userID int64) (models.UserBasicInfo, error)
}

type cacheEntry struct {
	user    models.UserBasicInfo
	expires time.Time
}

// CachingDirectory wraps another Directory with a TTL-based in-memory cache. Only successful
// lookups are cached, so new users are visible immediately and status changes after one TTL.
type CachingDirectory struct {
	base Directory
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	items map[int64]cacheEntry
}

// NewCachingDirectory returns a Directory that caches lookups for the provided TTL.
func NewCachingDirectory(base Directory, ttl time.Duration) *CachingDirectory {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachingDirectory{
		base:  base,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[int64]cacheEntry),
	}
}

// WithNowFunc allows tests to override the time source.
func (c *CachingDirectory) WithNowFunc(now func() time.Time) *CachingDirectory {
	c.now = now
	return c
}

// SelectUserBasicInfo returns the cached user when fresh, otherwise it delegates to the
// underlying directory and stores the result.
func (c *CachingDirectory) SelectUserBasicInfo(ctx context.Context, userID int64) (models.UserBasicInfo, error) {
	if c == nil || c.base == nil {
		return models.UserBasicInfo{}, ErrDirectoryUnavailable
	}

	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[userID]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.user, nil
	}

	user, err := c.base.SelectUserBasicInfo(ctx, userID)
	if err != nil {
		return models.UserBasicInfo{}, err
	}

	c.mu.Lock()
	c.items[userID] = cacheEntry{user: user, expires: now.Add(c.ttl)}
	c.evictLocked(now)
	c.mu.Unlock()

	return user, nil
}

func (c *CachingDirectory) evictLocked(now time.Time) {
	for id, entry := range c.items {
		if !now.Before(entry.expires) {
			delete(c.items, id)
		}
	}
}
