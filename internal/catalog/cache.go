package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/ahinestrog/campusbooks/internal/inventory"
)

// Cached remembers answers from another Lookup, including "not found", and
// collapses concurrent lookups of the same ISBN into one upstream call.
// Failures are never cached.
type Cached struct {
	next    Lookup
	lru     *expirable.LRU[string, cacheEntry]
	group   singleflight.Group
	timeout time.Duration
}

type cacheEntry struct {
	meta *inventory.Metadata
}

// NewCached wraps next. The shared upstream call is bounded by timeout rather
// than by any one caller's context, so a caller giving up does not fail the
// others waiting on the same ISBN.
func NewCached(next Lookup, size int, ttl, timeout time.Duration) *Cached {
	if size <= 0 {
		size = 1024
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Cached{
		next:    next,
		lru:     expirable.NewLRU[string, cacheEntry](size, nil, ttl),
		timeout: timeout,
	}
}

func (c *Cached) Name() string { return c.next.Name() }

// Len reports how many ISBNs are currently cached.
func (c *Cached) Len() int { return c.lru.Len() }

func (c *Cached) Lookup(ctx context.Context, isbn string) (*inventory.Metadata, error) {
	if e, ok := c.lru.Get(isbn); ok {
		return e.meta, nil
	}

	ch := c.group.DoChan(isbn, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		m, err := c.next.Lookup(ctx, isbn)
		if err != nil {
			return nil, err
		}
		c.lru.Add(isbn, cacheEntry{meta: m})
		return m, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		m, _ := res.Val.(*inventory.Metadata)
		return m, nil
	}
}
