package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"xdao.co/svs/packet"
)

// PublicKey is a parsed verification key.
type PublicKey struct {
	Type       packet.SignatureType
	Ed25519    ed25519.PublicKey
	Dilithium3 *mode3.PublicKey
}

// EncodeEd25519 encodes an Ed25519 public key as "ed25519:<base64>".
func EncodeEd25519(pub ed25519.PublicKey) (string, error) {
	if l := len(pub); l != ed25519.PublicKeySize {
		return "", fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
	}
	return "ed25519:" + base64.StdEncoding.EncodeToString(pub), nil
}

// EncodeDilithium3 encodes a Dilithium3 public key as "dilithium3:<base64>".
func EncodeDilithium3(pub *mode3.PublicKey) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("missing dilithium3 public key")
	}
	b, err := pub.MarshalBinary()
	if err != nil {
		return "", err
	}
	return "dilithium3:" + base64.StdEncoding.EncodeToString(b), nil
}

// ParsePublicKey parses "<alg>:<base64>" as produced by EncodeEd25519 / EncodeDilithium3.
func ParsePublicKey(s string) (PublicKey, error) {
	alg, enc, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return PublicKey{}, fmt.Errorf("invalid public key encoding %q", s)
	}
	raw, err := decodeBase64(enc)
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid public key base64: %w", err)
	}
	switch alg {
	case "ed25519":
		if len(raw) != ed25519.PublicKeySize {
			return PublicKey{}, fmt.Errorf("invalid ed25519 public key length %d", len(raw))
		}
		return PublicKey{Type: packet.SignatureEd25519, Ed25519: ed25519.PublicKey(raw)}, nil
	case "dilithium3":
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(raw); err != nil {
			return PublicKey{}, fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		return PublicKey{Type: packet.SignatureDilithium3, Dilithium3: &pk}, nil
	default:
		return PublicKey{}, fmt.Errorf("unsupported public key algorithm %q", alg)
	}
}

// Bytes returns the raw public key bytes.
func (k PublicKey) Bytes() []byte {
	switch k.Type {
	case packet.SignatureEd25519:
		return []byte(k.Ed25519)
	case packet.SignatureDilithium3:
		if k.Dilithium3 == nil {
			return nil
		}
		b, _ := k.Dilithium3.MarshalBinary()
		return b
	default:
		return nil
	}
}

// Verify checks sig over signed using the digest rule of the key's algorithm.
func (k PublicKey) Verify(signed, sig []byte) bool {
	digest, err := digestFor(k.Type, signed)
	if err != nil {
		return false
	}
	switch k.Type {
	case packet.SignatureEd25519:
		if len(k.Ed25519) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(k.Ed25519, digest, sig)
	case packet.SignatureDilithium3:
		if k.Dilithium3 == nil || len(sig) != mode3.SignatureSize {
			return false
		}
		return mode3.Verify(k.Dilithium3, digest, sig)
	default:
		return false
	}
}

func decodeBase64(s string) ([]byte, error) {
	// Prefer standard padded encoding, but accept raw encoding too.
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
