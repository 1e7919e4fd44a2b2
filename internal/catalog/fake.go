package catalog

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ahinestrog/campusbooks/internal/inventory"
)

// Offline is a deterministic in-process catalog. It knows the books it was
// given and nothing else, and never fails unless Err is set. The service uses
// it when CATALOG_OFFLINE is on.
type Offline struct {
	mu    sync.RWMutex
	books map[string]inventory.Metadata
	err   error
	calls atomic.Int64
}

func NewOffline(books map[string]inventory.Metadata) *Offline {
	o := &Offline{books: map[string]inventory.Metadata{}}
	for k, v := range books {
		o.books[k] = v
	}
	return o
}

func (o *Offline) Name() string { return "offline" }

// Fail makes every following lookup return err. Fail(nil) restores service.
func (o *Offline) Fail(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

// Calls reports how many lookups reached this catalog.
func (o *Offline) Calls() int64 { return o.calls.Load() }

func (o *Offline) Lookup(ctx context.Context, isbn string) (*inventory.Metadata, error) {
	o.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.err != nil {
		return nil, o.err
	}
	m, ok := o.books[isbn]
	if !ok {
		return nil, nil
	}
	return &m, nil
}
