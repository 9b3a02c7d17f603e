package fetch

import (
	"xdao.co/svs/name"
	"xdao.co/svs/packet"
)

// Outcome is the result of one Fetch.
//
// Payload is non-empty exactly when the object was delivered; every other
// path leaves it nil and sets Err. CacheErr reports a failed store write for
// a delivered object and never turns a delivery into absence.
type Outcome struct {
	Name     name.Name
	Payload  []byte
	Data     *packet.Data
	Raw      []byte
	Attempts int
	Err      error
	CacheErr error
}

// Delivered reports whether a validated, non-empty payload was obtained.
func (o Outcome) Delivered() bool { return len(o.Payload) > 0 }

// Kind returns the failure kind, or "" for a delivery.
func (o Outcome) Kind() Kind { return KindOf(o.Err) }
