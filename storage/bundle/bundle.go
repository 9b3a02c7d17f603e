// Package bundle moves stored packets between stores as a deterministic TAR.
//
// Layout:
//
//	packets/<name key CID>   raw encoded Data packet
//	index.json               optional, non-authoritative listing
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/svs/name"
	"xdao.co/svs/packet"
	"xdao.co/svs/security"
	"xdao.co/svs/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

// ErrKeyMismatch means an entry's file name is not the key of the packet it holds.
var ErrKeyMismatch = errors.New("bundle: entry key does not match packet name")

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes a deterministic TAR bundle containing the packets stored
// under names.
//
// Entry order is lexicographic by key and TAR headers are normalized, so the
// same set of names always yields the same bytes. Every packet is checked to
// carry the name it was requested under.
func Export(w io.Writer, s storage.Store, names []name.Name, opts ExportOptions) error {
	if s == nil {
		return fmt.Errorf("bundle: nil store")
	}

	uniq := make(map[string]name.Name, len(names))
	for _, n := range names {
		if len(n) == 0 {
			return storage.ErrInvalidName
		}
		key, err := n.Key()
		if err != nil {
			return err
		}
		uniq[key.String()] = n
	}

	keys := make([]string, 0, len(uniq))
	for k := range uniq {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tar.NewWriter(w)

	entries := make([]indexEntry, 0, len(keys))
	for _, k := range keys {
		n := uniq[k]
		raw, err := s.Get(n)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: %s: %w", n, err)
		}
		if err := storage.CheckPacket(n, raw); err != nil {
			_ = tw.Close()
			return err
		}
		digest, err := packet.Digest(raw)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "packets/"+k, raw); err != nil {
			_ = tw.Close()
			return err
		}
		entries = append(entries, indexEntry{Name: n.String(), Key: k, Digest: digest.String(), Size: len(raw)})
	}

	if opts.IncludeIndex {
		b, err := marshalCanonicalIndexJSON(indexJSON{
			Version:   FormatVersion,
			KeyCodec:  "raw",
			Multihash: "sha2-256",
			Packets:   entries,
		})
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", b); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool

	// Validator, when set, must accept every packet before any is stored.
	Validator security.Validator
}

// Import reads a bundle from r and stores all packets into s.
//
// Default behavior is fail-closed: unknown entries cause an error.
func Import(r io.Reader, s storage.Store) ([]name.Name, error) {
	return ImportWithOptions(context.Background(), r, s, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and stores all packets into s.
//
// Each entry must decode as a Data packet whose name key equals the entry
// file name. Packets are stored only after the whole bundle was read and
// validated; the returned names are in bundle order.
func ImportWithOptions(ctx context.Context, r io.Reader, s storage.Store, opts ImportOptions) ([]name.Name, error) {
	if s == nil {
		return nil, fmt.Errorf("bundle: nil store")
	}

	type pending struct {
		name name.Name
		raw  []byte
	}
	var batch []pending

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}

	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entry := cleanTarPath(h.Name)
		if entry == "" {
			return nil, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return nil, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, entry)
		}

		// Non-authoritative metadata.
		if entry == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(entry, "packets/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return nil, fmt.Errorf("bundle: unknown entry: %s", entry)
		}

		keyStr := strings.TrimPrefix(entry, "packets/")
		key, derr := cid.Decode(keyStr)
		if derr != nil || !key.Defined() {
			return nil, fmt.Errorf("bundle: invalid entry key %q", keyStr)
		}

		raw, rerr := io.ReadAll(tr)
		if rerr != nil {
			return nil, rerr
		}
		d, perr := packet.DecodeData(raw)
		if perr != nil {
			return nil, fmt.Errorf("%w: %s: %v", storage.ErrInvalidPacket, entry, perr)
		}
		got, kerr := d.Name.Key()
		if kerr != nil {
			return nil, kerr
		}
		if got.String() != key.String() {
			return nil, ErrKeyMismatch
		}
		if _, ok := seen[key.String()]; ok {
			return nil, fmt.Errorf("bundle: duplicate packet entry: %s", key)
		}
		seen[key.String()] = struct{}{}

		if opts.Validator != nil {
			if err := opts.Validator.Validate(ctx, d); err != nil {
				return nil, fmt.Errorf("bundle: %s: %w", d.Name, err)
			}
		}
		batch = append(batch, pending{name: d.Name, raw: raw})
	}

	names := make([]name.Name, 0, len(batch))
	for _, p := range batch {
		if err := s.Put(p.name, p.raw); err != nil {
			return names, fmt.Errorf("bundle: store %s: %w", p.name, err)
		}
		names = append(names, p.name)
	}
	return names, nil
}

type indexJSON struct {
	Version   int          `json:"version"`
	KeyCodec  string       `json:"keyCodec"`
	Multihash string       `json:"multihash"`
	Packets   []indexEntry `json:"packets"`
}

type indexEntry struct {
	Name   string `json:"name"`
	Key    string `json:"key"`
	Digest string `json:"digest"`
	Size   int    `json:"size"`
}

func marshalCanonicalIndexJSON(idx indexJSON) ([]byte, error) {
	// indexJSON is composed only of structs + slices; encoding/json will be deterministic.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, path string, content []byte) error {
	hdr := &tar.Header{
		Name:     path,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return ""
	}

	parts := strings.Split(p, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return p
}
