package storage

import (
	"fmt"

	"xdao.co/svs/name"
)

// NamedStore associates a Store with a stable backend name.
type NamedStore struct {
	Name  string
	Store Store
}

// ReplicatingStore writes to all configured backends.
//
// Reads fall back in order. Writes go to every backend; the first failure is
// returned, annotated with the backend name. Use PutAll for per-backend results.
type ReplicatingStore struct {
	Backends []NamedStore
}

var _ Store = ReplicatingStore{}

// PutAll writes the packet to all backends and reports each backend's error
// (nil on success). The returned error is the first failure, if any.
func (r ReplicatingStore) PutAll(n name.Name, raw []byte) (map[string]error, error) {
	if len(r.Backends) == 0 {
		return nil, fmt.Errorf("storage: ReplicatingStore has no backends")
	}
	if err := CheckPacket(n, raw); err != nil {
		return nil, err
	}

	out := make(map[string]error, len(r.Backends))
	var first error
	for _, b := range r.Backends {
		if b.Store == nil {
			return out, fmt.Errorf("storage: nil Store for backend %q", b.Name)
		}
		err := b.Store.Put(n, raw)
		out[b.Name] = err
		if err != nil && first == nil {
			first = fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
	}
	return out, first
}

func (r ReplicatingStore) Put(n name.Name, raw []byte) error {
	_, err := r.PutAll(n, raw)
	return err
}

func (r ReplicatingStore) Get(n name.Name) ([]byte, error) {
	for _, b := range r.Backends {
		if b.Store == nil {
			continue
		}
		out, err := b.Store.Get(n)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r ReplicatingStore) Has(n name.Name) bool {
	for _, b := range r.Backends {
		if b.Store != nil && b.Store.Has(n) {
			return true
		}
	}
	return false
}
