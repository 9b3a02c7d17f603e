// Package security validates Data packets before their payload is trusted.
package security

import (
	"context"
	"fmt"
	"sync"

	"xdao.co/svs/keys"
	"xdao.co/svs/name"
	"xdao.co/svs/packet"
)

// Validator verifies a Data packet's signature and trust chain.
// A nil error accepts the packet.
type Validator interface {
	Validate(ctx context.Context, d *packet.Data) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, d *packet.Data) error

func (f ValidatorFunc) Validate(ctx context.Context, d *packet.Data) error { return f(ctx, d) }

// Options pairs the signer used for publishing with the validator used for fetching.
type Options struct {
	Signer    packet.Signer
	Validator Validator
}

// DefaultOptions signs and validates with DigestSha256 (integrity only).
func DefaultOptions() Options {
	return Options{Signer: keys.DigestSigner{}, Validator: DigestValidator{}}
}

// WithDefaults fills unset fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Signer == nil {
		o.Signer = d.Signer
	}
	if o.Validator == nil {
		o.Validator = d.Validator
	}
	return o
}

// AcceptAll accepts every packet. Only for tests and closed deployments.
type AcceptAll struct{}

func (AcceptAll) Validate(ctx context.Context, d *packet.Data) error {
	if d == nil {
		return newError("SVS-SEC-001", "nil data packet")
	}
	return nil
}

// DigestValidator accepts packets carrying a correct DigestSha256 signature.
type DigestValidator struct{}

func (DigestValidator) Validate(ctx context.Context, d *packet.Data) error {
	if d == nil {
		return newError("SVS-SEC-001", "nil data packet")
	}
	if d.SignatureInfo.Type != packet.SignatureDigestSHA256 {
		return newError("SVS-SEC-101", fmt.Sprintf("unexpected signature type %s", d.SignatureInfo.Type))
	}
	signed, err := d.SignedPortion()
	if err != nil {
		return wrapError("SVS-SEC-002", "cannot encode signed portion", err)
	}
	if !keys.VerifyDigest(signed, d.SignatureValue) {
		return newError("SVS-SEC-401", "signature invalid")
	}
	return nil
}

// Rule decides whether keyName may sign dataName.
type Rule func(dataName, keyName name.Name) bool

// SameIdentity accepts a key whose identity (key name without KEY/<id>) is a
// prefix of the data name. It fits deployments where cache-others is off and
// every publisher's objects live under its own node identifier.
func SameIdentity(groupDataPrefix name.Name) Rule {
	return func(dataName, keyName name.Name) bool {
		id, ok := keys.IdentityOf(keyName)
		if !ok {
			return false
		}
		return groupDataPrefix.Concat(id).IsPrefixOf(dataName)
	}
}

// TrustValidator checks packets against a static table of trust anchors.
//
// A packet is accepted when its name is under Prefix, its key locator names a
// registered anchor of the same algorithm, Rule (if set) allows the pairing and
// the signature verifies.
type TrustValidator struct {
	Prefix name.Name
	Rule   Rule

	mu      sync.RWMutex
	anchors map[string]keys.PublicKey
}

func NewTrustValidator(prefix name.Name) *TrustValidator {
	return &TrustValidator{Prefix: prefix.Clone(), anchors: make(map[string]keys.PublicKey)}
}

// AddAnchor registers pub under keyName, replacing any previous key.
func (v *TrustValidator) AddAnchor(keyName name.Name, pub keys.PublicKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.anchors == nil {
		v.anchors = make(map[string]keys.PublicKey)
	}
	v.anchors[keyName.String()] = pub
}

func (v *TrustValidator) anchor(keyName name.Name) (keys.PublicKey, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	pub, ok := v.anchors[keyName.String()]
	return pub, ok
}

func (v *TrustValidator) Validate(ctx context.Context, d *packet.Data) error {
	if d == nil {
		return newError("SVS-SEC-001", "nil data packet")
	}
	if !v.Prefix.IsPrefixOf(d.Name) {
		return newError("SVS-SEC-104", fmt.Sprintf("name %s outside trust prefix %s", d.Name, v.Prefix))
	}
	switch d.SignatureInfo.Type {
	case packet.SignatureEd25519, packet.SignatureDilithium3:
	default:
		return newError("SVS-SEC-101", fmt.Sprintf("unsupported signature type %s", d.SignatureInfo.Type))
	}
	keyName := d.SignatureInfo.KeyLocator
	if len(keyName) == 0 {
		return newError("SVS-SEC-102", "missing key locator")
	}
	pub, ok := v.anchor(keyName)
	if !ok {
		return newError("SVS-SEC-103", fmt.Sprintf("unknown key %s", keyName))
	}
	if pub.Type != d.SignatureInfo.Type {
		return newError("SVS-SEC-121", "key algorithm does not match signature type")
	}
	if v.Rule != nil && !v.Rule(d.Name, keyName) {
		return newError("SVS-SEC-105", fmt.Sprintf("key %s may not sign %s", keyName, d.Name))
	}
	signed, err := d.SignedPortion()
	if err != nil {
		return wrapError("SVS-SEC-002", "cannot encode signed portion", err)
	}
	if !pub.Verify(signed, d.SignatureValue) {
		return newError("SVS-SEC-401", "signature invalid")
	}
	return nil
}
