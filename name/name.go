package name

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/svs/cidutil"
	"xdao.co/svs/internal/codec"
)

var ErrInvalidURI = errors.New("name: invalid URI")

// Component is a single opaque name component.
type Component string

// Name is an ordered sequence of components. The zero value is the root name "/".
type Name []Component

// FromStrings builds a Name with one component per argument.
func FromStrings(parts ...string) Name {
	n := make(Name, 0, len(parts))
	for _, p := range parts {
		n = append(n, Component(p))
	}
	return n
}

// Parse parses the URI form of a name. An optional "ndn:" scheme is accepted,
// empty path segments are skipped.
func Parse(uri string) (Name, error) {
	uri = strings.TrimPrefix(strings.TrimSpace(uri), "ndn:")
	if uri == "" || uri == "/" {
		return Name{}, nil
	}
	segments := strings.Split(uri, "/")
	n := make(Name, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		c, err := unescapeComponent(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidURI, uri, err)
		}
		n = append(n, c)
	}
	return n, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(uri string) Name {
	n, err := Parse(uri)
	if err != nil {
		panic(err)
	}
	return n
}

// String returns the URI form.
func (n Name) String() string {
	if len(n) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, c := range n {
		b.WriteByte('/')
		b.WriteString(escapeComponent(c))
	}
	return b.String()
}

// Clone returns a copy that shares no backing array with n.
func (n Name) Clone() Name {
	out := make(Name, len(n))
	copy(out, n)
	return out
}

// Append returns n followed by cs.
func (n Name) Append(cs ...Component) Name {
	out := make(Name, 0, len(n)+len(cs))
	out = append(out, n...)
	return append(out, cs...)
}

// Concat returns n followed by every component of other.
func (n Name) Concat(other Name) Name {
	return n.Append(other...)
}

func (n Name) Equal(other Name) bool {
	if len(n) != len(other) {
		return false
	}
	for i := range n {
		if n[i] != other[i] {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether n is a (non-strict) prefix of other.
func (n Name) IsPrefixOf(other Name) bool {
	if len(n) > len(other) {
		return false
	}
	return n.Equal(other[:len(n)])
}

// MarshalCBOR encodes the name as an array of byte strings.
func (n Name) MarshalCBOR() ([]byte, error) {
	raw := make([][]byte, len(n))
	for i, c := range n {
		raw[i] = []byte(c)
	}
	return codec.Encode(raw)
}

func (n *Name) UnmarshalCBOR(data []byte) error {
	if len(data) == 1 && data[0] == 0xf6 {
		// CBOR null: keep a nil name so re-encoding is byte-identical.
		*n = nil
		return nil
	}
	var raw [][]byte
	if err := codec.Decode(data, &raw); err != nil {
		return err
	}
	out := make(Name, len(raw))
	for i, c := range raw {
		out[i] = Component(c)
	}
	*n = out
	return nil
}

// Bytes returns the canonical encoding of the name.
func (n Name) Bytes() ([]byte, error) {
	return n.MarshalCBOR()
}

// Key returns a CID derived from the canonical encoding. Equal names always
// yield equal keys; storage backends use it to place packets.
func (n Name) Key() (cid.Cid, error) {
	b, err := n.Bytes()
	if err != nil {
		return cid.Undef, err
	}
	return cidutil.CIDv1RawSHA256CID(b)
}

func escapeComponent(c Component) string {
	if onlyPeriods(string(c)) {
		// "", ".", ".." would be ambiguous in a path; pad them with three periods.
		return string(c) + "..."
	}
	return url.PathEscape(string(c))
}

func unescapeComponent(s string) (Component, error) {
	if onlyPeriods(s) {
		if len(s) < 3 {
			return "", fmt.Errorf("component %q is reserved", s)
		}
		return Component(s[3:]), nil
	}
	v, err := url.PathUnescape(s)
	if err != nil {
		return "", err
	}
	return Component(v), nil
}

func onlyPeriods(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '.' {
			return false
		}
	}
	return true
}
