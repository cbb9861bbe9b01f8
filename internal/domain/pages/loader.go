package pages

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"ambrosia-pos-gateway/internal/platform/observability"
)

// Loader memoises resolutions per ComponentKey. Concurrent first resolutions
// of one key share a single lookup. Failures are not cached.
type Loader struct {
	catalog *Catalog
	group   singleflight.Group

	mu    sync.RWMutex
	cache map[ComponentKey]*Resolved

	lookups atomic.Int64
}

// Resolved is a memoised resolution.
type Resolved struct {
	Key       ComponentKey
	Location  string
	Component Component
}

func NewLoader(catalog *Catalog) *Loader {
	return &Loader{
		catalog: catalog,
		cache:   make(map[ComponentKey]*Resolved),
	}
}

// Resolve returns the component for key. If ctx ends first the caller gets
// ctx.Err() while the resolution still completes and is cached.
func (l *Loader) Resolve(ctx context.Context, key ComponentKey) (*Resolved, error) {
	l.mu.RLock()
	res, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return res, nil
	}

	ch := l.group.DoChan(key.String()+"|"+key.LoadingMessage, func() (interface{}, error) {
		return l.resolve(key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Resolved), nil
	}
}

func (l *Loader) resolve(key ComponentKey) (*Resolved, error) {
	l.mu.RLock()
	res, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return res, nil
	}

	_, end := observability.StartSpan(context.Background(), "pages", "resolve")
	l.lookups.Add(1)
	factory, location, err := l.catalog.lookup(key)
	end(err)
	if err != nil {
		return nil, err
	}

	res = &Resolved{Key: key, Location: location, Component: factory(location)}
	l.mu.Lock()
	l.cache[key] = res
	l.mu.Unlock()
	return res, nil
}

// Render resolves key and renders it with props. The key's loading message is
// copied onto the view.
func (l *Loader) Render(ctx context.Context, key ComponentKey, props Props) (*View, error) {
	res, err := l.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	view, err := res.Component.Render(ctx, props)
	if err != nil {
		return nil, err
	}
	view.LoadingMessage = key.LoadingMessage
	return view, nil
}

// Lookups counts catalogue lookups. Cache hits do not count.
func (l *Loader) Lookups() int64 {
	return l.lookups.Load()
}
