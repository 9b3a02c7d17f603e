package config

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/svs/keys"
	"xdao.co/svs/name"
	"xdao.co/svs/packet"
	"xdao.co/svs/security"
)

func TestSecurityOptions_Defaults(t *testing.T) {
	opts, err := Default().SecurityOptions(nil)
	require.NoError(t, err)
	assert.IsType(t, keys.DigestSigner{}, opts.Signer)
	assert.IsType(t, security.DigestValidator{}, opts.Validator)
}

func TestSecurityOptions_Ed25519TrustRoundTrip(t *testing.T) {
	seed := bytes.Repeat([]byte{3}, 32)
	node := name.MustParse("/alice")
	ref, err := keys.NewEd25519Signer(seed, node)
	require.NoError(t, err)
	pub, err := keys.EncodeEd25519(ref.PublicKey().Ed25519)
	require.NoError(t, err)

	cfg := Default()
	cfg.GroupPrefix = "/chat"
	cfg.Security.Signer = SignerConfig{Type: "ed25519", SeedHex: hex.EncodeToString(seed)}
	cfg.Security.Validator = ValidatorConfig{
		Mode:         "trust",
		SameIdentity: true,
		Anchors:      []AnchorConfig{{KeyName: ref.KeyName.String(), PublicKey: pub}},
	}
	require.NoError(t, cfg.Validate())

	opts, err := cfg.SecurityOptions(node)
	require.NoError(t, err)

	_, d, err := packet.MakeData(name.MustParse("/chat/d/alice/epoch-1"), []byte("hi"), packet.MetaInfo{}, opts.Signer)
	require.NoError(t, err)
	assert.NoError(t, opts.Validator.Validate(context.Background(), d))

	// Same key, but outside its own identity.
	_, d, err = packet.MakeData(name.MustParse("/chat/d/bob/epoch-1"), []byte("hi"), packet.MetaInfo{}, opts.Signer)
	require.NoError(t, err)
	err = opts.Validator.Validate(context.Background(), d)
	assert.Equal(t, "SVS-SEC-105", security.RuleID(err))
}

func TestSameIdentityRequiresPerNodeNames(t *testing.T) {
	seed := bytes.Repeat([]byte{4}, 32)
	node := name.MustParse("/alice")
	ref, err := keys.NewEd25519Signer(seed, node)
	require.NoError(t, err)
	pub, err := keys.EncodeEd25519(ref.PublicKey().Ed25519)
	require.NoError(t, err)

	cfg := Default()
	cfg.GroupPrefix = "/chat"
	cfg.CacheOthers = true
	cfg.Security.Signer = SignerConfig{Type: "ed25519", SeedHex: hex.EncodeToString(seed)}
	cfg.Security.Validator = ValidatorConfig{
		Mode:         "trust",
		SameIdentity: true,
		Anchors:      []AnchorConfig{{KeyName: ref.KeyName.String(), PublicKey: pub}},
	}

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "same_identity cannot be used with cache_others")
	_, err = cfg.SecurityOptions(node)
	assert.Error(t, err)

	// Without the identity rule the node's own shared-namespace object validates.
	cfg.Security.Validator.SameIdentity = false
	require.NoError(t, cfg.Validate())
	opts, err := cfg.SecurityOptions(node)
	require.NoError(t, err)
	_, d, err := packet.MakeData(name.MustParse("/chat/d/epoch-1"), []byte("hi"), packet.MetaInfo{}, opts.Signer)
	require.NoError(t, err)
	assert.NoError(t, opts.Validator.Validate(context.Background(), d))
}

func TestSecurityOptions_Errors(t *testing.T) {
	cfg := Default()
	cfg.Security.Signer.Type = "ed25519"
	_, err := cfg.SecurityOptions(nil)
	assert.Error(t, err)

	cfg = Default()
	cfg.Security.Validator = ValidatorConfig{Mode: "trust", Anchors: []AnchorConfig{{KeyName: "/k", PublicKey: "rsa:xyz"}}}
	_, err = cfg.SecurityOptions(nil)
	assert.Error(t, err)
}

func TestNamesAndDurations(t *testing.T) {
	cfg := Default()
	g, err := cfg.Group()
	require.NoError(t, err)
	assert.Equal(t, "/svs", g.String())

	_, err = cfg.Node()
	assert.Error(t, err)
	cfg.NodeID = "/n1"
	n, err := cfg.Node()
	require.NoError(t, err)
	assert.Equal(t, "/n1", n.String())

	assert.Equal(t, "6s", cfg.FetchTimeout(nil).String())
	cfg.Fetch.Timeout = ""
	assert.Equal(t, "6s", cfg.FetchTimeout(nil).String())
}
