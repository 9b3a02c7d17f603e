package storage

import (
	"fmt"

	"xdao.co/svs/name"
	"xdao.co/svs/packet"
)

// Store is durable packet storage keyed by name.
//
// Contract:
// - Put MUST be idempotent for identical bytes.
// - Stored packets MUST be immutable: a different packet under an existing name is ErrImmutable.
// - raw MUST decode as a Data packet whose name equals n (ErrNameMismatch otherwise).
// - Get MUST return ErrNotFound when the name is absent.
// - Keys are the exact names given to Put; no canonicalization beyond name equality.
//
// Implementations MUST be safe for concurrent use; concurrent Puts of the same
// packet are expected (two fetches of one name may both write).
type Store interface {
	Put(n name.Name, raw []byte) error
	Get(n name.Name) ([]byte, error)
	Has(n name.Name) bool
}

// CheckPacket enforces the raw-bytes/name contract shared by all backends.
func CheckPacket(n name.Name, raw []byte) error {
	if len(n) == 0 {
		return ErrInvalidName
	}
	d, err := packet.DecodeData(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	if !d.Name.Equal(n) {
		return ErrNameMismatch
	}
	return nil
}
