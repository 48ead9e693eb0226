package memory

import (
	"context"
	"sync"
)

// Directory is an in-process buyer/store registry. A permissive directory
// answers true for every id, which is how the single-node driver runs when
// account data lives elsewhere.
type Directory struct {
	mu         sync.RWMutex
	permissive bool
	buyers     map[string]struct{}
	stores     map[string]struct{}
}

func NewDirectory(permissive bool) *Directory {
	return &Directory{
		permissive: permissive,
		buyers:     make(map[string]struct{}),
		stores:     make(map[string]struct{}),
	}
}

func (d *Directory) AddBuyer(ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.buyers[id] = struct{}{}
	}
}

func (d *Directory) AddStore(ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.stores[id] = struct{}{}
	}
}

func (d *Directory) BuyerExists(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.buyers[id]
	return ok || (d.permissive && id != ""), nil
}

func (d *Directory) StoreExists(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.stores[id]
	return ok || (d.permissive && id != ""), nil
}
