package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"xdao.co/svs/name"
	"xdao.co/svs/packet"
)

// Ed25519 signs sha256(signed portion); Dilithium3 signs sha3-256(signed portion);
// DigestSHA256 carries sha256(signed portion) and no key.
func digestFor(t packet.SignatureType, message []byte) ([]byte, error) {
	switch t {
	case packet.SignatureDigestSHA256, packet.SignatureEd25519:
		s := sha256.Sum256(message)
		return s[:], nil
	case packet.SignatureDilithium3:
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported signature type %s", t)
	}
}

// DigestSigner produces integrity-only DigestSha256 signatures.
type DigestSigner struct{}

var _ packet.Signer = DigestSigner{}

func (DigestSigner) SignatureInfo() packet.SignatureInfo {
	return packet.SignatureInfo{Type: packet.SignatureDigestSHA256}
}

func (DigestSigner) Sign(signed []byte) ([]byte, error) {
	return digestFor(packet.SignatureDigestSHA256, signed)
}

// Ed25519Signer signs with an Ed25519 private key published under KeyName.
type Ed25519Signer struct {
	KeyName    name.Name
	PrivateKey ed25519.PrivateKey
}

var _ packet.Signer = (*Ed25519Signer)(nil)

// NewEd25519Signer builds a signer for nodeID from a 32-byte seed.
func NewEd25519Signer(seed []byte, nodeID name.Name) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Ed25519Signer{KeyName: KeyName(nodeID, pub), PrivateKey: priv}, nil
}

func (s *Ed25519Signer) SignatureInfo() packet.SignatureInfo {
	return packet.SignatureInfo{Type: packet.SignatureEd25519, KeyLocator: s.KeyName.Clone()}
}

func (s *Ed25519Signer) Sign(signed []byte) ([]byte, error) {
	if len(s.PrivateKey) != ed25519.PrivateKeySize {
		return nil, errors.New("missing ed25519 private key")
	}
	digest, err := digestFor(packet.SignatureEd25519, signed)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(s.PrivateKey, digest), nil
}

// PublicKey returns the verification key for s.
func (s *Ed25519Signer) PublicKey() PublicKey {
	return PublicKey{Type: packet.SignatureEd25519, Ed25519: s.PrivateKey.Public().(ed25519.PublicKey)}
}

// Dilithium3Signer signs with a post-quantum Dilithium3 key published under KeyName.
type Dilithium3Signer struct {
	KeyName    name.Name
	PrivateKey *mode3.PrivateKey
	Public     *mode3.PublicKey
}

var _ packet.Signer = (*Dilithium3Signer)(nil)

// NewDilithium3Signer generates a fresh Dilithium3 keypair for nodeID.
func NewDilithium3Signer(rand io.Reader, nodeID name.Name) (*Dilithium3Signer, error) {
	pk, sk, err := GenerateDilithium3Keypair(rand)
	if err != nil {
		return nil, err
	}
	raw, err := pk.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Dilithium3Signer{KeyName: KeyName(nodeID, raw), PrivateKey: sk, Public: pk}, nil
}

func (s *Dilithium3Signer) SignatureInfo() packet.SignatureInfo {
	return packet.SignatureInfo{Type: packet.SignatureDilithium3, KeyLocator: s.KeyName.Clone()}
}

func (s *Dilithium3Signer) Sign(signed []byte) ([]byte, error) {
	if s.PrivateKey == nil {
		return nil, errors.New("missing private key")
	}
	digest, err := digestFor(packet.SignatureDilithium3, signed)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.PrivateKey, digest, sig)
	return sig, nil
}

func (s *Dilithium3Signer) PublicKey() PublicKey {
	return PublicKey{Type: packet.SignatureDilithium3, Dilithium3: s.Public}
}

// GenerateDilithium3Keypair returns a new Dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}

// VerifyDigest reports whether sig is the DigestSha256 value of signed.
func VerifyDigest(signed, sig []byte) bool {
	want, err := digestFor(packet.SignatureDigestSHA256, signed)
	if err != nil {
		return false
	}
	return bytes.Equal(want, sig)
}
