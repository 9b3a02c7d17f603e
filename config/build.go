package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"xdao.co/svs/fetch"
	"xdao.co/svs/keys"
	"xdao.co/svs/name"
	"xdao.co/svs/security"
)

// Group returns the parsed group prefix.
func (c *Config) Group() (name.Name, error) {
	n, err := name.Parse(c.GroupPrefix)
	if err != nil {
		return nil, fmt.Errorf("group_prefix: %w", err)
	}
	return n, nil
}

// Node returns the parsed node id. An empty node id is an error.
func (c *Config) Node() (name.Name, error) {
	n, err := name.Parse(c.NodeID)
	if err != nil {
		return nil, fmt.Errorf("node_id: %w", err)
	}
	if len(n) == 0 {
		return nil, fmt.Errorf("node_id is required")
	}
	return n, nil
}

// FetchTimeout is the per-attempt timeout, defaulting to fetch.DefaultTimeout.
func (c *Config) FetchTimeout(logger *slog.Logger) time.Duration {
	return ParseDuration(c.Fetch.Timeout, fetch.DefaultTimeout, logger)
}

// DialTimeout is the transport dial timeout.
func (c *Config) DialTimeout(logger *slog.Logger) time.Duration {
	return ParseDuration(c.Transport.DialTimeout, 5*time.Second, logger)
}

// SecurityOptions builds the signer and validator described by the security
// section. nodeID names the signing key and may be nil when only validating.
func (c *Config) SecurityOptions(nodeID name.Name) (security.Options, error) {
	var opts security.Options

	switch strings.ToLower(c.Security.Signer.Type) {
	case "", "digest":
		opts.Signer = keys.DigestSigner{}
	case "ed25519":
		if len(nodeID) == 0 {
			return opts, fmt.Errorf("security.signer: ed25519 needs node_id")
		}
		ks, err := keys.CreateKeyStore(c.Security.Signer.KeyStore)
		if err != nil {
			return opts, err
		}
		signer, err := ks.LoadSigner(c.Security.Signer.SeedHex, c.Security.Signer.KeyName, "", nodeID)
		if err != nil {
			return opts, fmt.Errorf("security.signer: %w", err)
		}
		opts.Signer = signer
	default:
		return opts, fmt.Errorf("security.signer.type: unsupported %q", c.Security.Signer.Type)
	}

	v := c.Security.Validator
	switch strings.ToLower(v.Mode) {
	case "", "digest":
		opts.Validator = security.DigestValidator{}
	case "accept-all":
		opts.Validator = security.AcceptAll{}
	case "trust":
		prefix := c.GroupPrefix
		if v.TrustPrefix != "" {
			prefix = v.TrustPrefix
		}
		p, err := name.Parse(prefix)
		if err != nil {
			return opts, fmt.Errorf("security.validator.trust_prefix: %w", err)
		}
		tv := security.NewTrustValidator(p)
		if v.SameIdentity {
			if c.CacheOthers {
				return opts, errSameIdentityCacheOthers
			}
			group, err := c.Group()
			if err != nil {
				return opts, err
			}
			tv.Rule = security.SameIdentity(name.DataPrefix(group, true, nil))
		}
		for i, a := range v.Anchors {
			kn, err := name.Parse(a.KeyName)
			if err != nil || len(kn) == 0 {
				return opts, fmt.Errorf("security.validator.anchors[%d]: bad key_name %q", i, a.KeyName)
			}
			pub, err := keys.ParsePublicKey(a.PublicKey)
			if err != nil {
				return opts, fmt.Errorf("security.validator.anchors[%d]: %w", i, err)
			}
			tv.AddAnchor(kn, pub)
		}
		opts.Validator = tv
	default:
		return opts, fmt.Errorf("security.validator.mode: unsupported %q", v.Mode)
	}
	return opts, nil
}
