// internal/presale/presale.go
package presale

import (
	"sync"

	"github.com/rovshanmuradov/reflex/internal/types"
)

// Registry keeps the whitelist of every presale, keyed by the presale address.
type Registry struct {
	mu    sync.RWMutex
	lists map[types.Address]map[types.Address]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{lists: make(map[types.Address]map[types.Address]struct{})}
}

// Add whitelists accounts in the given presale.
func (r *Registry) Add(presale types.Address, accounts ...types.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.lists[presale]
	if !ok {
		list = make(map[types.Address]struct{}, len(accounts))
		r.lists[presale] = list
	}
	for _, a := range accounts {
		list[a] = struct{}{}
	}
}

// Remove drops an account from the given presale.
func (r *Registry) Remove(presale, account types.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if list, ok := r.lists[presale]; ok {
		delete(list, account)
	}
}

// IsWhitelisted reports whether account may trade before trading opens.
func (r *Registry) IsWhitelisted(presale, account types.Address) bool {
	if presale.IsZero() {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.lists[presale][account]
	return ok
}

// Len returns the number of whitelisted accounts in a presale.
func (r *Registry) Len(presale types.Address) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lists[presale])
}
