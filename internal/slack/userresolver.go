package slack

import "context"

// UserFetcher looks up a single user on the platform.
type UserFetcher interface {
	FetchUserInfo(ctx context.Context, id string) (*User, error)
}

// UserIndex is an immutable id lookup over a known set of users.
type UserIndex struct {
	byID map[string]*User
}

// NewUserIndex indexes users by ID.
func NewUserIndex(users []User) *UserIndex {
	idx := &UserIndex{byID: make(map[string]*User, len(users))}
	for i := range users {
		idx.byID[users[i].ID] = &users[i]
	}
	return idx
}

// Lookup returns the indexed user, or nil.
func (idx *UserIndex) Lookup(id string) *User {
	if idx == nil {
		return nil
	}
	return idx.byID[id]
}

// UserResolver resolves user ids through the index, then the persistent
// cache, then the platform. Fetched users are written back to the cache.
type UserResolver struct {
	index   *UserIndex
	cache   *UserCache
	fetcher UserFetcher
}

// NewUserResolver returns a resolver; any of its sources may be nil.
func NewUserResolver(index *UserIndex, cache *UserCache, fetcher UserFetcher) *UserResolver {
	return &UserResolver{index: index, cache: cache, fetcher: fetcher}
}

// User returns the profile for id. Without a fetcher an unknown id resolves
// to a placeholder user whose name is the id itself.
func (r *UserResolver) User(ctx context.Context, id string) (*User, error) {
	if u := r.index.Lookup(id); u != nil {
		return u, nil
	}
	if u := r.cache.Get(id); u != nil {
		return u, nil
	}
	if r.fetcher == nil {
		return &User{ID: id, Name: id}, nil
	}
	u, err := r.fetcher.FetchUserInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(u)
	return u, nil
}

// Username returns the display name for id, "unknown" for an empty id.
func (r *UserResolver) Username(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "unknown", nil
	}
	u, err := r.User(ctx, id)
	if err != nil {
		return "", err
	}
	return u.BestName(), nil
}
