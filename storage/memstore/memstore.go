// Package memstore is an in-memory storage.Store.
//
// It is the default cache for a node that does not need packets to survive a
// restart, and the reference backend for tests.
package memstore

import (
	"bytes"
	"sync"

	"xdao.co/svs/name"
	"xdao.co/svs/storage"
)

type Store struct {
	mu      sync.RWMutex
	packets map[string][]byte
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{packets: make(map[string][]byte)}
}

func (s *Store) Put(n name.Name, raw []byte) error {
	if err := storage.CheckPacket(n, raw); err != nil {
		return err
	}
	key := n.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.packets[key]; ok {
		if !bytes.Equal(existing, raw) {
			return storage.ErrImmutable
		}
		return nil
	}
	s.packets[key] = bytes.Clone(raw)
	return nil
}

func (s *Store) Get(n name.Name) ([]byte, error) {
	if len(n) == 0 {
		return nil, storage.ErrInvalidName
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.packets[n.String()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(b), nil
}

func (s *Store) Has(n name.Name) bool {
	if len(n) == 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.packets[n.String()]
	return ok
}

// Len returns the number of stored packets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.packets)
}
