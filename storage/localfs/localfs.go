package localfs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"xdao.co/svs/name"
	"xdao.co/svs/packet"
	"xdao.co/svs/storage"
)

// Store is a local filesystem-backed packet store.
//
// Packets are stored immutably, one file per name. The file path is derived
// from the CID of the canonical name encoding, so arbitrary name components
// never reach the filesystem. Reads re-check that the stored packet still
// carries the requested name.
type Store struct {
	root string
}

var _ storage.Store = (*Store)(nil)

// New constructs a filesystem store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(n name.Name, raw []byte) error {
	if err := storage.CheckPacket(n, raw); err != nil {
		return err
	}
	path, err := s.pathFor(n)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	// Write to a temp file and link it into place so a concurrent reader never
	// observes a partially written packet.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0o444); err != nil {
		return err
	}

	if err := os.Link(tmpPath, path); err != nil {
		if os.IsExist(err) {
			existing, rerr := os.ReadFile(path)
			if rerr != nil {
				// If the file exists but is unreadable, treat as an immutability violation.
				return storage.ErrImmutable
			}
			if !bytes.Equal(existing, raw) {
				return storage.ErrImmutable
			}
			return nil
		}
		return err
	}
	return nil
}

func (s *Store) Get(n name.Name) ([]byte, error) {
	if len(n) == 0 {
		return nil, storage.ErrInvalidName
	}
	path, err := s.pathFor(n)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	d, err := packet.DecodeData(b)
	if err != nil || !d.Name.Equal(n) {
		return nil, storage.ErrNameMismatch
	}
	return b, nil
}

func (s *Store) Has(n name.Name) bool {
	if len(n) == 0 {
		return false
	}
	path, err := s.pathFor(n)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (s *Store) pathFor(n name.Name) (string, error) {
	id, err := n.Key()
	if err != nil {
		return "", err
	}
	k := id.String()
	if len(k) < 2 {
		return filepath.Join(s.root, k), nil
	}
	// CIDv1 strings share their leading characters; shard on the tail.
	return filepath.Join(s.root, k[len(k)-2:], k), nil
}
