package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"agridash/internal/metrics"

	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Cache loads each table at most once per process and hands out the same
// immutable *Table afterwards. Readers share an RWMutex; concurrent first
// loads of one name are collapsed so the source sees a single query.
type Cache struct {
	src     Source
	metrics *metrics.Metrics

	mu     sync.RWMutex
	tables map[TableName]*Table
	group  singleflight.Group
}

type CacheOption func(*Cache)

// WithMetrics records hits, misses and load timings.
func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

func NewCache(src Source, opts ...CacheOption) *Cache {
	c := &Cache{src: src, tables: make(map[TableName]*Table)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Load returns the named table, querying the source only on first use.
// Failures are returned as-is and never cached.
func (c *Cache) Load(ctx context.Context, name TableName) (*Table, error) {
	if _, err := SchemaFor(name); err != nil {
		return nil, err
	}

	c.mu.RLock()
	t, ok := c.tables[name]
	c.mu.RUnlock()
	if ok {
		c.metrics.CacheHit(string(name))
		return t, nil
	}
	return c.fill(ctx, name, false)
}

// Refresh reloads a table from the source and replaces the cached copy.
// Holders of the previous *Table keep a consistent snapshot.
func (c *Cache) Refresh(ctx context.Context, name TableName) (*Table, error) {
	if _, err := SchemaFor(name); err != nil {
		return nil, err
	}
	return c.fill(ctx, name, true)
}

func (c *Cache) fill(ctx context.Context, name TableName, force bool) (*Table, error) {
	key := string(name)
	if force {
		key = "refresh:" + key
	}
	// The flight is shared by every caller collapsed onto it, so it must not
	// inherit any single caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if !force {
			c.mu.RLock()
			t, ok := c.tables[name]
			c.mu.RUnlock()
			if ok {
				return t, nil
			}
		}
		c.metrics.CacheMiss(string(name))

		start := time.Now()
		raw, err := c.src.Fetch(flightCtx, name)
		if err != nil {
			c.metrics.LoadFailed(string(name), errorClass(err))
			log.Errorf("engine: load %s: %v", name, err)
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		t, err := BuildTable(name, raw)
		if err != nil {
			c.metrics.LoadFailed(string(name), errorClass(err))
			log.Errorf("engine: load %s: %v", name, err)
			return nil, err
		}

		c.mu.Lock()
		if cur, ok := c.tables[name]; ok && !force {
			// A refresh stored a newer table while this load was fetching.
			c.mu.Unlock()
			return cur, nil
		}
		c.tables[name] = t
		c.mu.Unlock()

		c.metrics.Loaded(string(name), t.Len(), time.Since(start))
		log.Infof("engine: loaded %s (%d rows) in %v", name, t.Len(), time.Since(start))
		return t, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load %s: %w", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Table), nil
	}
}

// Warm loads the given tables concurrently; with no names it loads them all.
func (c *Cache) Warm(ctx context.Context, names ...TableName) error {
	if len(names) == 0 {
		names = KnownTables
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			_, err := c.Load(ctx, name)
			return err
		})
	}
	return g.Wait()
}

// Loaded lists the cached table names, sorted.
func (c *Cache) Loaded() []TableName {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]TableName, 0, len(c.tables))
	for name := range c.tables {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConnectivity):
		return "connectivity"
	case errors.Is(err, ErrSchema):
		return "schema"
	default:
		return "other"
	}
}
