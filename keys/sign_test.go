package keys

import (
	"crypto/ed25519"
	"io"
	"testing"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"xdao.co/svs/name"
	"xdao.co/svs/packet"
)

type deterministicReader struct{ b byte }

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

func testSeed(fill byte) []byte {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = fill
	}
	return seed
}

func TestEd25519SignerVerifies(t *testing.T) {
	node := name.MustParse("/n1")
	s, err := NewEd25519Signer(testSeed(0x42), node)
	if err != nil {
		t.Fatalf("NewEd25519Signer: %v", err)
	}
	info := s.SignatureInfo()
	if info.Type != packet.SignatureEd25519 || !info.KeyLocator.Equal(s.KeyName) {
		t.Fatalf("unexpected signature info %+v", info)
	}

	msg := []byte("hello")
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !s.PublicKey().Verify(msg, sig) {
		t.Fatalf("signature did not verify")
	}
	if s.PublicKey().Verify([]byte("hellO"), sig) {
		t.Fatalf("signature verified over different bytes")
	}
}

func TestDilithium3SignerVerifies(t *testing.T) {
	s, err := NewDilithium3Signer(io.Reader(&deterministicReader{}), name.MustParse("/n1"))
	if err != nil {
		t.Fatalf("NewDilithium3Signer: %v", err)
	}
	msg := []byte("hello")
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != mode3.SignatureSize {
		t.Fatalf("unexpected signature size: got %d want %d", len(sig), mode3.SignatureSize)
	}
	if !s.PublicKey().Verify(msg, sig) {
		t.Fatalf("signature did not verify")
	}
}

func TestDigestSigner(t *testing.T) {
	sig, err := DigestSigner{}.Sign([]byte("content"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !VerifyDigest([]byte("content"), sig) {
		t.Fatalf("digest did not verify")
	}
	if VerifyDigest([]byte("other"), sig) {
		t.Fatalf("digest verified over different bytes")
	}
}

func TestPublicKeyEncodingRoundTrip(t *testing.T) {
	s, err := NewEd25519Signer(testSeed(7), name.MustParse("/n1"))
	if err != nil {
		t.Fatalf("NewEd25519Signer: %v", err)
	}
	enc, err := EncodeEd25519(s.PublicKey().Ed25519)
	if err != nil {
		t.Fatalf("EncodeEd25519: %v", err)
	}
	pk, err := ParsePublicKey(enc)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if pk.Type != packet.SignatureEd25519 || string(pk.Bytes()) != string(s.PublicKey().Ed25519) {
		t.Fatalf("round trip mismatch")
	}

	d, err := NewDilithium3Signer(io.Reader(&deterministicReader{b: 9}), name.MustParse("/n2"))
	if err != nil {
		t.Fatalf("NewDilithium3Signer: %v", err)
	}
	denc, err := EncodeDilithium3(d.Public)
	if err != nil {
		t.Fatalf("EncodeDilithium3: %v", err)
	}
	dpk, err := ParsePublicKey(denc)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if dpk.Type != packet.SignatureDilithium3 {
		t.Fatalf("expected dilithium3 key")
	}

	for _, bad := range []string{"ed25519", "rsa:AAAA", "ed25519:!!!", "ed25519:AAAA"} {
		if _, err := ParsePublicKey(bad); err == nil {
			t.Fatalf("ParsePublicKey(%q) should fail", bad)
		}
	}
}
