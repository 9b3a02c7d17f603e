// Package testkit provides a conformance suite every storage.Store backend runs.
package testkit

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"xdao.co/svs/keys"
	"xdao.co/svs/name"
	"xdao.co/svs/packet"
	"xdao.co/svs/storage"
)

// NewStore constructs a fresh, empty Store instance for a test.
// The returned Store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.Store

// Packet returns an encoded, digest-signed Data packet named uri.
func Packet(t *testing.T, uri string, content string) (name.Name, []byte) {
	t.Helper()
	n := name.MustParse(uri)
	raw, _, err := packet.MakeData(n, []byte(content), packet.MetaInfo{}, keys.DigestSigner{})
	if err != nil {
		t.Fatalf("MakeData(%s): %v", uri, err)
	}
	return n, raw
}

func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		n, raw := Packet(t, "/g/d/n1/epoch-1", "hello, svs storage")

		if err := s.Put(n, raw); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(n)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		n, raw := Packet(t, "/g/d/epoch-2", "same bytes")

		if err := s.Put(n, raw); err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		if err := s.Put(n, raw); err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
	})

	t.Run("ConcurrentIdenticalPuts", func(t *testing.T) {
		s := newStore(t)
		n, raw := Packet(t, "/g/d/epoch-3", "racing writers")

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Put(n, raw)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent Put failed: %v", err)
			}
		}
		if !s.Has(n) {
			t.Fatalf("Has returned false after concurrent Puts")
		}
	})

	t.Run("RejectDifferentPacketSameName", func(t *testing.T) {
		s := newStore(t)
		n, first := Packet(t, "/g/d/epoch-4", "first")
		_, second := Packet(t, "/g/d/epoch-4", "second")

		if err := s.Put(n, first); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := s.Put(n, second); !errors.Is(err, storage.ErrImmutable) {
			t.Fatalf("Put different packet: got err=%v want ErrImmutable", err)
		}
		got, err := s.Get(n)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, first) {
			t.Fatalf("stored packet was replaced")
		}
	})

	t.Run("RejectNameMismatch", func(t *testing.T) {
		s := newStore(t)
		_, raw := Packet(t, "/g/d/epoch-5", "named elsewhere")

		other := name.MustParse("/g/d/epoch-6")
		if err := s.Put(other, raw); !errors.Is(err, storage.ErrNameMismatch) {
			t.Fatalf("Put under wrong name: got err=%v want ErrNameMismatch", err)
		}
		if s.Has(other) {
			t.Fatalf("rejected packet must not be stored")
		}
	})

	t.Run("RejectGarbage", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(name.MustParse("/g/d/epoch-7"), []byte("not a packet")); !errors.Is(err, storage.ErrInvalidPacket) {
			t.Fatalf("Put garbage: got err=%v want ErrInvalidPacket", err)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		n, raw := Packet(t, "/g/d/n2/epoch-8", "missing")

		if s.Has(n) {
			t.Fatalf("Has returned true for missing name")
		}
		_, err := s.Get(n)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if err := s.Put(n, raw); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !s.Has(n) {
			t.Fatalf("Has returned false after Put")
		}
		if s.Has(n.Append("extra")) {
			t.Fatalf("Has must match names exactly, not by prefix")
		}
	})

	t.Run("RejectEmptyName", func(t *testing.T) {
		s := newStore(t)
		if s.Has(name.Name{}) {
			t.Fatalf("Has should be false for the root name")
		}
		if _, err := s.Get(name.Name{}); err == nil {
			t.Fatalf("Get should fail for the root name")
		}
	})
}
