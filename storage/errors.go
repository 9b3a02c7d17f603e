package storage

import "errors"

var (
	ErrNotFound      = errors.New("storage: not found")
	ErrInvalidName   = errors.New("storage: invalid name")
	ErrInvalidPacket = errors.New("storage: invalid packet")
	ErrNameMismatch  = errors.New("storage: name mismatch")
	ErrImmutable     = errors.New("storage: immutable object mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
