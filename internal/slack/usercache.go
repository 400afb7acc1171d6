package slack

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const userCacheVersion = 2

// DefaultUserCacheMaxAge is how long a cached profile is trusted.
const DefaultUserCacheMaxAge = 7 * 24 * time.Hour

type cachedUser struct {
	User      User  `json:"user"`
	FetchedAt int64 `json:"fetched_at"`
}

type cacheFile struct {
	Version int                   `json:"version"`
	Users   map[string]cachedUser `json:"users"`
}

// UserCache persists user names between runs so the directory does not have
// to call users.info for every sender each morning. It stores profile names
// only. An empty path keeps the cache in memory. Safe for concurrent use.
type UserCache struct {
	path   string
	maxAge time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	users map[string]cachedUser
	dirty bool
}

// NewUserCache creates a new UserCache that persists to the given path.
func NewUserCache(path string) *UserCache {
	return &UserCache{
		path:   path,
		maxAge: DefaultUserCacheMaxAge,
		now:    time.Now,
		users:  make(map[string]cachedUser),
	}
}

// WithMaxAge sets how old an entry may be before Load discards it. Zero keeps
// entries forever.
func (c *UserCache) WithMaxAge(d time.Duration) *UserCache {
	c.maxAge = d
	return c
}

// Get returns a cached user by ID, or nil if not found.
func (c *UserCache) Get(id string) *User {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	cu, ok := c.users[id]
	if !ok {
		return nil
	}
	u := cu.User
	return &u
}

// Set adds or updates a user in the cache.
func (c *UserCache) Set(user *User) {
	if c == nil || user == nil || user.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[user.ID] = cachedUser{User: *user, FetchedAt: c.now().Unix()}
	c.dirty = true
}

// Len returns the number of cached users.
func (c *UserCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

// Load reads the cache from disk, dropping expired entries. A missing file or
// one written by an older version leaves the cache empty.
func (c *UserCache) Load() error {
	if c.path == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.users = make(map[string]cachedUser, len(f.Users))
	if f.Version != userCacheVersion {
		return nil
	}

	cutoff := c.now().Add(-c.maxAge).Unix()
	for id, cu := range f.Users {
		if c.maxAge > 0 && cu.FetchedAt < cutoff {
			continue
		}
		c.users[id] = cu
	}
	return nil
}

// Save writes the cache to disk when it changed since the last Load or Save.
func (c *UserCache) Save() error {
	if c.path == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cacheFile{Version: userCacheVersion, Users: c.users}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return err
	}
	c.dirty = false
	return nil
}
