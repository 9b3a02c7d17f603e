package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"xdao.co/svs/name"
)

// KeyStore keeps Ed25519 seeds on the local filesystem.
//
// EXPERIMENTAL: this storage surface is not part of the wire contract and may change.
//
// Layout:
//
//	<Directory>/<identifier>/root.key
//	<Directory>/<identifier>/nodes/<hex(node name)>.key
//
// Node keys are derived from the root seed with DeriveNodeSeed, so they can
// always be recreated from root.key.
type KeyStore struct {
	Directory string
}

type KeyEntry struct {
	Identifier string
	Nodes      []name.Name
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".xdao", "svs", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootKeyPath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "root.key")
}

func (ks *KeyStore) nodeKeyPath(identifier string, nodeID name.Name) string {
	return filepath.Join(ks.Directory, identifier, "nodes", hex.EncodeToString([]byte(nodeID.String()))+".key")
}

func CheckKeyName(identifier string) error {
	if identifier == "" {
		return errors.New("identifier cannot be empty")
	}
	for _, char := range identifier {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in identifier", char)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func (ks *KeyStore) saveSeed(filePath string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func (ks *KeyStore) loadSeed(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// InitializeRootKey writes seed as the root key of identifier and returns its
// encoded public key.
func (ks *KeyStore) InitializeRootKey(identifier string, seed []byte, overwrite bool) (publicKey string, filePath string, err error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", "", err
	}
	filePath = ks.rootKeyPath(identifier)
	if err := ks.saveSeed(filePath, seed, overwrite); err != nil {
		return "", "", err
	}
	publicKey, err = EncodeEd25519(ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey))
	return publicKey, filePath, err
}

// DeriveNodeKey derives and persists the signing seed identifier uses for nodeID.
func (ks *KeyStore) DeriveNodeKey(identifier string, nodeID name.Name, overwrite bool) (*Ed25519Signer, string, error) {
	if err := CheckKeyName(identifier); err != nil {
		return nil, "", err
	}
	rootSeed, err := ks.loadSeed(ks.rootKeyPath(identifier))
	if err != nil {
		return nil, "", err
	}
	nodeSeed, err := DeriveNodeSeed(rootSeed, nodeID)
	if err != nil {
		return nil, "", err
	}
	filePath := ks.nodeKeyPath(identifier, nodeID)
	if err := ks.saveSeed(filePath, nodeSeed, overwrite); err != nil {
		return nil, "", err
	}
	signer, err := NewEd25519Signer(nodeSeed, nodeID)
	return signer, filePath, err
}

// LoadSigner returns the Ed25519 signer for nodeID. The seed comes from, in
// order: seedHex, keyFile, or the node key stored under identifier.
func (ks *KeyStore) LoadSigner(seedHex, identifier, keyFile string, nodeID name.Name) (*Ed25519Signer, error) {
	var seed []byte
	var err error
	switch {
	case seedHex != "":
		seed, err = ParseSeedHex(seedHex)
	case keyFile != "":
		seed, err = ks.loadSeed(keyFile)
	case identifier != "":
		if err := CheckKeyName(identifier); err != nil {
			return nil, err
		}
		seed, err = ks.loadSeed(ks.nodeKeyPath(identifier, nodeID))
	default:
		return nil, errors.New("no signer provided")
	}
	if err != nil {
		return nil, err
	}
	return NewEd25519Signer(seed, nodeID)
}

func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var identifiers []string
	for _, entry := range entries {
		if entry.IsDir() {
			identifiers = append(identifiers, entry.Name())
		}
	}
	sort.Strings(identifiers)

	var result []KeyEntry
	for _, identifier := range identifiers {
		nodeEntries, rerr := os.ReadDir(filepath.Join(ks.Directory, identifier, "nodes"))
		var nodes []name.Name
		if rerr == nil {
			for _, nodeEntry := range nodeEntries {
				encoded, ok := strings.CutSuffix(nodeEntry.Name(), ".key")
				if nodeEntry.IsDir() || !ok {
					continue
				}
				uri, derr := hex.DecodeString(encoded)
				if derr != nil {
					continue
				}
				n, perr := name.Parse(string(uri))
				if perr != nil {
					continue
				}
				nodes = append(nodes, n)
			}
			sort.Slice(nodes, func(i, j int) bool { return nodes[i].String() < nodes[j].String() })
		}
		result = append(result, KeyEntry{Identifier: identifier, Nodes: nodes})
	}
	return result, nil
}

// ExportKey returns the encoded public key of identifier's root key, or of
// its node key for nodeID when nodeID is non-empty.
func (ks *KeyStore) ExportKey(identifier string, nodeID name.Name) (string, error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", err
	}
	path := ks.rootKeyPath(identifier)
	if len(nodeID) > 0 {
		path = ks.nodeKeyPath(identifier, nodeID)
	}
	seed, err := ks.loadSeed(path)
	if err != nil {
		return "", err
	}
	return EncodeEd25519(ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey))
}
