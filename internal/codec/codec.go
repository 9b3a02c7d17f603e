// Package codec is the deterministic CBOR encoding shared by names and packets.
//
// Every value that is hashed or signed goes through Encode, so two peers that
// hold the same logical value always produce the same bytes.
package codec

import (
	"bytes"
	"errors"
	"sync"

	_cbor "github.com/fxamacker/cbor/v2"
)

var (
	encModeOnce sync.Once
	encMode     _cbor.EncMode
	encModeErr  error

	decModeOnce sync.Once
	decMode     _cbor.DecMode
	decModeErr  error
)

func getEncMode() (_cbor.EncMode, error) {
	encModeOnce.Do(func() {
		opts := _cbor.CoreDetEncOptions()
		encMode, encModeErr = opts.EncMode()
	})
	return encMode, encModeErr
}

func getDecMode() (_cbor.DecMode, error) {
	decModeOnce.Do(func() {
		opts := _cbor.DecOptions{
			DupMapKey:         _cbor.DupMapKeyEnforcedAPF,
			ExtraReturnErrors: _cbor.ExtraDecErrorUnknownField,
			MaxNestedLevels:   16,
		}
		decMode, decModeErr = opts.DecMode()
	})
	return decMode, decModeErr
}

// Encode returns the core deterministic CBOR encoding of v.
func Encode(v any) ([]byte, error) {
	em, err := getEncMode()
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(nil)
	if err := em.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode decodes exactly one CBOR item from data into dest.
// Trailing bytes are rejected.
func Decode(data []byte, dest any) error {
	dm, err := getDecMode()
	if err != nil {
		return err
	}
	if dm == nil {
		return errors.New("codec: CBOR decoder mode not initialized")
	}
	rest, err := dm.UnmarshalFirst(data, dest)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errors.New("codec: trailing bytes after CBOR item")
	}
	return nil
}
