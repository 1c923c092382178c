package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ethereum/go-ethereum/event"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
)

// AuthUrlsKey is the Store key holding the origin to AuthUrlInfo map.
const AuthUrlsKey = "authUrls"

// AuthSnapshot is published after every committed change.
type AuthSnapshot map[string]core.AuthUrlInfo

// AuthStore is the persisted mapping from origin to granted permissions.
// Writers persist the complete new map before it becomes visible.
type AuthStore struct {
	store  ports.Store
	logger watermill.LoggerAdapter

	// writeMu serializes persist-then-commit; mu guards urls.
	writeMu sync.Mutex
	mu      sync.RWMutex
	urls    map[string]core.AuthUrlInfo

	feed event.Feed
}

// NewAuthStore creates an empty store. Call Load to read persisted state.
func NewAuthStore(store ports.Store, logger watermill.LoggerAdapter) *AuthStore {
	return &AuthStore{
		store:  store,
		logger: logger.With(watermill.LogFields{"component": "auth_store"}),
		urls:   make(map[string]core.AuthUrlInfo),
	}
}

// Load replaces the in-memory map with the persisted one.
func (a *AuthStore) Load(ctx context.Context) error {
	data, ok, err := a.store.Get(ctx, AuthUrlsKey)
	if err != nil {
		return fmt.Errorf("failed to load authorized urls: %w", err)
	}
	if !ok {
		return nil
	}

	urls := make(map[string]core.AuthUrlInfo)
	if err := json.Unmarshal(data, &urls); err != nil {
		return fmt.Errorf("failed to decode authorized urls: %w", err)
	}

	for origin, info := range urls {
		if info.Origin == "" {
			info.Origin = origin
			urls[origin] = info
		}
	}

	a.mu.Lock()
	a.urls = urls
	a.mu.Unlock()

	return nil
}

// EnsureAuthorized fails with core.ErrUnauthorized unless the origin of url
// has an entry, and with core.ErrNotAllowed if the user denied it.
func (a *AuthStore) EnsureAuthorized(url string) (core.AuthUrlInfo, error) {
	origin, err := core.StripURL(url)
	if err != nil {
		return core.AuthUrlInfo{}, err
	}

	info, ok := a.Get(origin)
	if !ok {
		return core.AuthUrlInfo{}, fmt.Errorf("%w: the source %s has not been enabled yet",
			core.ErrUnauthorized, url)
	}
	if info.Denied {
		return core.AuthUrlInfo{}, fmt.Errorf("%w: the source %s", core.ErrNotAllowed, url)
	}

	return info, nil
}

// Get returns a copy of the entry for origin.
func (a *AuthStore) Get(origin string) (core.AuthUrlInfo, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	info, ok := a.urls[origin]
	if !ok {
		return core.AuthUrlInfo{}, false
	}
	return info.Clone(), true
}

// List returns a copy of every entry.
func (a *AuthStore) List() AuthSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.snapshotLocked()
}

// RecordDecision stores the outcome of an authorization request. A denied
// decision is remembered with no accounts.
func (a *AuthStore) RecordDecision(ctx context.Context, origin, url string, accounts []string, denied bool) error {
	return a.mutate(ctx, func(urls AuthSnapshot) error {
		info := core.AuthUrlInfo{
			Origin:             origin,
			URL:                url,
			AuthorizedAccounts: uniqueAccounts(accounts),
			Denied:             denied,
		}
		if denied {
			info.AuthorizedAccounts = []string{}
		}
		urls[origin] = info
		return nil
	})
}

// CountRequest bumps the request counter of a known origin.
func (a *AuthStore) CountRequest(ctx context.Context, origin string) error {
	return a.mutate(ctx, func(urls AuthSnapshot) error {
		info, ok := urls[origin]
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrNotFound, origin)
		}
		info.RequestCount++
		urls[origin] = info
		return nil
	})
}

// Remove deletes the entry for origin.
func (a *AuthStore) Remove(ctx context.Context, origin string) error {
	return a.mutate(ctx, func(urls AuthSnapshot) error {
		if _, ok := urls[origin]; !ok {
			return fmt.Errorf("%w: %s", core.ErrNotFound, origin)
		}
		delete(urls, origin)
		return nil
	})
}

// UpdateAuthorizedAccounts replaces the authorized accounts of each origin in
// diff. An unknown origin fails the whole update and nothing is written.
func (a *AuthStore) UpdateAuthorizedAccounts(ctx context.Context, diff map[string][]string) error {
	return a.mutate(ctx, func(urls AuthSnapshot) error {
		for origin, accounts := range diff {
			info, ok := urls[origin]
			if !ok {
				return fmt.Errorf("%w: %s", core.ErrNotFound, origin)
			}
			info.AuthorizedAccounts = uniqueAccounts(accounts)
			urls[origin] = info
		}
		return nil
	})
}

// Subscribe registers ch for snapshots published after each change.
func (a *AuthStore) Subscribe(ch chan<- AuthSnapshot) event.Subscription {
	return a.feed.Subscribe(ch)
}

func (a *AuthStore) mutate(ctx context.Context, apply func(AuthSnapshot) error) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.RLock()
	next := a.snapshotLocked()
	a.mu.RUnlock()

	if err := apply(next); err != nil {
		return err
	}

	if err := a.persist(ctx, next); err != nil {
		a.logger.Error("Failed to persist authorized urls", err, nil)
		return fmt.Errorf("failed to persist authorized urls: %w", err)
	}

	a.mu.Lock()
	a.urls = next
	published := a.snapshotLocked()
	a.mu.Unlock()

	a.feed.Send(published)

	return nil
}

// persist writes the whole map. An empty map removes the key.
func (a *AuthStore) persist(ctx context.Context, urls AuthSnapshot) error {
	if len(urls) == 0 {
		return a.store.Remove(ctx, AuthUrlsKey)
	}

	data, err := json.Marshal(urls)
	if err != nil {
		return err
	}
	return a.store.Set(ctx, AuthUrlsKey, data)
}

func (a *AuthStore) snapshotLocked() AuthSnapshot {
	snap := make(AuthSnapshot, len(a.urls))
	for origin, info := range a.urls {
		snap[origin] = info.Clone()
	}
	return snap
}

func uniqueAccounts(accounts []string) []string {
	seen := make(map[string]struct{}, len(accounts))
	out := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		if _, ok := seen[acc]; ok {
			continue
		}
		seen[acc] = struct{}{}
		out = append(out, acc)
	}
	sort.Strings(out)
	return out
}
