package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"xdao.co/svs/name"
)

// KeyComponent separates a node identifier from its key id in a key name.
const KeyComponent name.Component = "KEY"

// DeriveNodeSeed deterministically derives a node-specific Ed25519 seed from a root seed.
func DeriveNodeSeed(rootSeed []byte, nodeID name.Name) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if len(nodeID) == 0 {
		return nil, errors.New("node identifier cannot be empty")
	}
	encoded, err := nodeID.Bytes()
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("xdao-svs-node-key-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(encoded)
	sum := h.Sum(nil)
	out := make([]byte, ed25519.SeedSize)
	copy(out, sum[:ed25519.SeedSize])
	return out, nil
}

// KeyName returns nodeID/KEY/<key id>, the name placed in a packet's key locator.
// The key id is the hex of the first 8 bytes of sha256(public key).
func KeyName(nodeID name.Name, pub []byte) name.Name {
	sum := sha256.Sum256(pub)
	return nodeID.Append(KeyComponent, name.Component(hex.EncodeToString(sum[:8])))
}

// IdentityOf strips the KEY/<id> suffix from a key name.
// It returns false if keyName is not shaped like a key name.
func IdentityOf(keyName name.Name) (name.Name, bool) {
	if len(keyName) < 3 || keyName[len(keyName)-2] != KeyComponent {
		return nil, false
	}
	return keyName[:len(keyName)-2].Clone(), true
}
