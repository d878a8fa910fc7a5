package app

import (
	"fmt"
	"sync"

	"github.com/bft-labs/dripfeed/internal/domain"
)

// Registry records which session owns each serial address so two
// sessions in the same process never share a port.
type Registry struct {
	mu     sync.Mutex
	owners map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[string]string)}
}

// Acquire claims address for owner. The returned release function is
// safe to call more than once.
func (r *Registry) Acquire(address, owner string) (release func(), err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.owners[address]; ok {
		return nil, domain.NewError(domain.ErrConnection,
			fmt.Sprintf("Failed to open port %s: port is busy", address),
			fmt.Errorf("owned by session %s", current))
	}
	r.owners[address] = owner

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.owners[address] == owner {
				delete(r.owners, address)
			}
		})
	}, nil
}

// Owner returns the session holding address.
func (r *Registry) Owner(address string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[address]
	return owner, ok
}
