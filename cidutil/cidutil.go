// Package cidutil derives the content identifiers used to key packets and names.
package cidutil

import (
	"errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ErrMismatch is returned by Verify when bytes do not hash to the expected CID.
var ErrMismatch = errors.New("cidutil: cid mismatch")

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Verify checks that data hashes to want.
func Verify(want cid.Cid, data []byte) error {
	if !want.Defined() {
		return ErrMismatch
	}
	got, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return err
	}
	if !got.Equals(want) {
		return ErrMismatch
	}
	return nil
}
