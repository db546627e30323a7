package committee

import (
	"fmt"
	"sync"

	"mcn/errors"
	"mcn/types"
)

// Registry is the shared epoch -> committee map. It is append-only: new
// epochs are added, old epochs are flagged removed once their
// remove-committee message is processed, and entries are never mutated, so
// concurrent readers only need the map lock.
type Registry struct {
	mu         sync.RWMutex
	committees map[types.Epoch]*Committee
	removed    map[types.Epoch]bool
	current    types.Epoch
}

func NewRegistry() *Registry {
	return &Registry{
		committees: make(map[types.Epoch]*Committee),
		removed:    make(map[types.Epoch]bool),
	}
}

// Add registers the committee for its epoch and makes the highest known epoch
// current. Re-adding an epoch is rejected; committees are immutable.
func (r *Registry) Add(c *Committee) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.committees[c.Epoch]; exists {
		return fmt.Errorf("committee for epoch %d already registered", c.Epoch)
	}
	r.committees[c.Epoch] = c
	if c.Epoch >= r.current {
		r.current = c.Epoch
	}
	return nil
}

// Remove flags an epoch's committee as no longer valid for new blocks.
func (r *Registry) Remove(epoch types.Epoch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed[epoch] = true
}

// Get returns the committee for the epoch; removed epochs no longer resolve.
func (r *Registry) Get(epoch types.Epoch) (*Committee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.removed[epoch] {
		return nil, errors.NewError(errors.ErrCodeUnknownEpoch,
			fmt.Sprintf("epoch %d has been removed", epoch))
	}
	c, ok := r.committees[epoch]
	if !ok {
		return nil, errors.NewError(errors.ErrCodeUnknownEpoch,
			fmt.Sprintf("no committee for epoch %d", epoch))
	}
	return c, nil
}

// Current returns the latest registered epoch and its committee.
func (r *Registry) Current() (types.Epoch, *Committee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.committees[r.current]
	if !ok {
		return 0, nil, errors.NewError(errors.ErrCodeUnknownEpoch, "no committee registered")
	}
	return r.current, c, nil
}
