package keys

import (
	"crypto/ed25519"
	"testing"

	"xdao.co/svs/name"
)

func TestDeriveNodeSeedDeterministic(t *testing.T) {
	root := make([]byte, ed25519.SeedSize)
	for i := range root {
		root[i] = byte(i)
	}
	alice := name.MustParse("/site/alice")

	a, err := DeriveNodeSeed(root, alice)
	if err != nil {
		t.Fatalf("DeriveNodeSeed: %v", err)
	}
	b, err := DeriveNodeSeed(root, alice)
	if err != nil {
		t.Fatalf("DeriveNodeSeed: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected deterministic derivation")
	}

	c, err := DeriveNodeSeed(root, name.MustParse("/site/bob"))
	if err != nil {
		t.Fatalf("DeriveNodeSeed: %v", err)
	}
	if string(a) == string(c) {
		t.Fatalf("expected different nodes to derive different seeds")
	}
}

func TestDeriveNodeSeedRejectsBadInput(t *testing.T) {
	if _, err := DeriveNodeSeed([]byte{1, 2, 3}, name.MustParse("/n")); err == nil {
		t.Fatalf("expected error for short root seed")
	}
	if _, err := DeriveNodeSeed(make([]byte, ed25519.SeedSize), nil); err == nil {
		t.Fatalf("expected error for empty node identifier")
	}
}

func TestKeyNameShape(t *testing.T) {
	node := name.MustParse("/site/alice")
	kn := KeyName(node, []byte("public-key"))
	if len(kn) != len(node)+2 || kn[len(node)] != KeyComponent {
		t.Fatalf("unexpected key name %s", kn)
	}
	if len(kn[len(kn)-1]) != 16 {
		t.Fatalf("expected 16 hex chars of key id, got %q", kn[len(kn)-1])
	}
	id, ok := IdentityOf(kn)
	if !ok || !id.Equal(node) {
		t.Fatalf("IdentityOf(%s) = %s, %v", kn, id, ok)
	}
	if _, ok := IdentityOf(node); ok {
		t.Fatalf("IdentityOf should reject a plain node name")
	}
}
