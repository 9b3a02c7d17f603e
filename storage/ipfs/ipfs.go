package ipfs

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"strings"
	"sync"

	"xdao.co/svs/name"
	"xdao.co/svs/packet"
	"xdao.co/svs/storage"
)

// DefaultRoot is the MFS directory packets are written under.
const DefaultRoot = "/svs"

// Store is a packet store backed by the mutable file system (MFS) of the
// local Kubo "ipfs" CLI.
//
// Each packet is one MFS file whose path is derived from the name key, so a
// repo daemon or gateway can serve the same bytes by path. Reads re-check the
// packet name, as the MFS tree can be modified outside this process.
//
// Properties:
// - Offline: operates on the local IPFS repo; does not require an IPFS daemon.
// - Best-effort: relies on an external "ipfs" binary (configurable).
//
// Note: This package name is "ipfs" for familiarity, but it does not embed a
// network client; it shells out to the local Kubo CLI.
type Store struct {
	bin  string
	env  []string
	root string

	// MFS has no create-if-absent; writes through one Store are serialized.
	mu sync.RWMutex
}

var _ storage.Store = (*Store)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
	// Root is the MFS directory holding packets. If empty, DefaultRoot is used.
	Root string
}

func New(opts Options) *Store {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	root := opts.Root
	if root == "" {
		root = DefaultRoot
	}
	return &Store{bin: bin, env: opts.Env, root: path.Clean("/" + root)}
}

func (s *Store) Put(n name.Name, raw []byte) error {
	if err := storage.CheckPacket(n, raw); err != nil {
		return err
	}
	p, err := s.pathFor(n)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.run(nil, "files", "read", p)
	switch {
	case err == nil:
		if bytes.Equal(existing, raw) {
			return nil
		}
		return storage.ErrImmutable
	case !isLikelyNotFound(err):
		return err
	}

	_, err = s.run(raw, "files", "write", "--create", "--parents", "--truncate", p)
	return err
}

func (s *Store) Get(n name.Name) ([]byte, error) {
	if len(n) == 0 {
		return nil, storage.ErrInvalidName
	}
	p, err := s.pathFor(n)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	out, err := s.run(nil, "files", "read", p)
	s.mu.RUnlock()
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	d, err := packet.DecodeData(out)
	if err != nil || !d.Name.Equal(n) {
		return nil, storage.ErrNameMismatch
	}
	return out, nil
}

func (s *Store) Has(n name.Name) bool {
	if len(n) == 0 {
		return false
	}
	p, err := s.pathFor(n)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err = s.run(nil, "files", "stat", "--hash", p)
	return err == nil
}

func (s *Store) pathFor(n name.Name) (string, error) {
	id, err := n.Key()
	if err != nil {
		return "", err
	}
	k := id.String()
	return path.Join(s.root, k[len(k)-2:], k), nil
}

func (s *Store) run(stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.Command(s.bin, args...)
	if s.env != nil {
		cmd.Env = s.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		msg := strings.TrimSpace(string(ee.Stderr))
		if msg == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", msg)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}
