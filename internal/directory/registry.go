package directory

import (
	"context"
	"sync"
)

// Registry records which directory instance owns each peer name. Claims
// are exclusive: at most one owner per name at any time.
type Registry interface {
	// Claim takes name for owner and reports false if someone else holds it.
	Claim(ctx context.Context, name, owner string) (bool, error)
	// Release frees name if owner still holds it.
	Release(ctx context.Context, name, owner string) error
	// Owner returns the holder of name, or "" when it is free.
	Owner(ctx context.Context, name string) (string, error)
	// Refresh keeps owner's claims on names alive.
	Refresh(ctx context.Context, owner string, names []string) error
	Close() error
}

// MemoryRegistry serves a single directory instance.
type MemoryRegistry struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{owners: make(map[string]string)}
}

func (r *MemoryRegistry) Claim(_ context.Context, name, owner string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.owners[name]; taken {
		return false, nil
	}
	r.owners[name] = owner
	return true, nil
}

func (r *MemoryRegistry) Release(_ context.Context, name, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[name] == owner {
		delete(r.owners, name)
	}
	return nil
}

func (r *MemoryRegistry) Owner(_ context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owners[name], nil
}

func (r *MemoryRegistry) Refresh(context.Context, string, []string) error { return nil }

func (r *MemoryRegistry) Close() error { return nil }
