// Package packet defines the Interest and Data packets exchanged on the network.
//
// Packets are encoded as deterministic CBOR arrays. The signed portion of a
// Data packet is the encoding of its name, meta info, content and signature
// info; the signature value is carried alongside and never covers itself.
package packet

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/svs/cidutil"
	"xdao.co/svs/internal/codec"
	"xdao.co/svs/name"
)

var (
	ErrMalformed    = errors.New("packet: malformed")
	ErrUnsigned     = errors.New("packet: missing signature")
	ErrNonCanonical = errors.New("packet: non-canonical encoding")
)

// ContentType mirrors the content types of the request/response network.
type ContentType uint64

const (
	ContentBlob ContentType = 0
	ContentLink ContentType = 1
	ContentKey  ContentType = 2
	ContentNack ContentType = 3
)

// SignatureType identifies how SignatureValue was produced.
type SignatureType uint64

const (
	SignatureDigestSHA256 SignatureType = 0
	SignatureEd25519      SignatureType = 5
	SignatureDilithium3   SignatureType = 0x80
)

func (t SignatureType) String() string {
	switch t {
	case SignatureDigestSHA256:
		return "digest-sha256"
	case SignatureEd25519:
		return "ed25519"
	case SignatureDilithium3:
		return "dilithium3"
	default:
		return fmt.Sprintf("signature-type(%d)", uint64(t))
	}
}

type MetaInfo struct {
	_               struct{} `cbor:",toarray"`
	ContentType     ContentType
	FreshnessPeriod time.Duration
}

type SignatureInfo struct {
	_          struct{} `cbor:",toarray"`
	Type       SignatureType
	KeyLocator name.Name
}

// Data is a named, signed packet.
type Data struct {
	_              struct{} `cbor:",toarray"`
	Name           name.Name
	MetaInfo       MetaInfo
	Content        []byte
	SignatureInfo  SignatureInfo
	SignatureValue []byte
}

type signedPortion struct {
	_             struct{} `cbor:",toarray"`
	Name          name.Name
	MetaInfo      MetaInfo
	Content       []byte
	SignatureInfo SignatureInfo
}

// Signer produces SignatureValue over a Data packet's signed portion.
type Signer interface {
	SignatureInfo() SignatureInfo
	Sign(signed []byte) ([]byte, error)
}

// SignedPortion returns the bytes covered by the signature.
func (d *Data) SignedPortion() ([]byte, error) {
	if d == nil {
		return nil, ErrMalformed
	}
	return codec.Encode(signedPortion{
		Name:          d.Name,
		MetaInfo:      d.MetaInfo,
		Content:       d.Content,
		SignatureInfo: d.SignatureInfo,
	})
}

// Sign sets SignatureInfo from s and fills SignatureValue.
func (d *Data) Sign(s Signer) error {
	if s == nil {
		return errors.New("packet: nil signer")
	}
	d.SignatureInfo = s.SignatureInfo()
	signed, err := d.SignedPortion()
	if err != nil {
		return err
	}
	sig, err := s.Sign(signed)
	if err != nil {
		return fmt.Errorf("packet: sign %s: %w", d.Name, err)
	}
	d.SignatureValue = sig
	return nil
}

// Encode returns the wire form of d.
func (d *Data) Encode() ([]byte, error) {
	if d == nil {
		return nil, ErrMalformed
	}
	if len(d.SignatureValue) == 0 {
		return nil, ErrUnsigned
	}
	return codec.Encode(d)
}

// DecodeData parses the wire form of a Data packet. raw must be exactly the
// canonical encoding of the decoded packet: signatures cover the canonical
// signed portion, so any other spelling of the same packet is refused.
func DecodeData(raw []byte) (*Data, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty data packet", ErrMalformed)
	}
	var d Data
	if err := codec.Decode(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(d.SignatureValue) == 0 {
		return nil, ErrUnsigned
	}
	canonical, err := codec.Encode(&d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !bytes.Equal(canonical, raw) {
		return nil, ErrNonCanonical
	}
	return &d, nil
}

// MakeData builds, signs and encodes a Data packet in one step.
func MakeData(n name.Name, content []byte, meta MetaInfo, s Signer) ([]byte, *Data, error) {
	d := &Data{Name: n.Clone(), MetaInfo: meta, Content: content}
	if err := d.Sign(s); err != nil {
		return nil, nil, err
	}
	raw, err := d.Encode()
	if err != nil {
		return nil, nil, err
	}
	return raw, d, nil
}

// Digest is the implicit digest of an encoded packet.
func Digest(raw []byte) (cid.Cid, error) {
	return cidutil.CIDv1RawSHA256CID(raw)
}

// Interest requests the Data packet with a given name.
type Interest struct {
	_           struct{} `cbor:",toarray"`
	Name        name.Name
	MustBeFresh bool
	CanBePrefix bool
	Lifetime    time.Duration
	Nonce       uint32
}

// NewInterest returns an Interest with a random nonce.
func NewInterest(n name.Name, mustBeFresh, canBePrefix bool, lifetime time.Duration) Interest {
	return Interest{
		Name:        n.Clone(),
		MustBeFresh: mustBeFresh,
		CanBePrefix: canBePrefix,
		Lifetime:    lifetime,
		Nonce:       newNonce(),
	}
}

func (i Interest) Encode() ([]byte, error) {
	return codec.Encode(i)
}

func DecodeInterest(raw []byte) (Interest, error) {
	var i Interest
	if err := codec.Decode(raw, &i); err != nil {
		return Interest{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return i, nil
}

// Matches reports whether d satisfies the Interest's name constraint.
func (i Interest) Matches(d *Data) bool {
	if d == nil {
		return false
	}
	if i.CanBePrefix {
		return i.Name.IsPrefixOf(d.Name)
	}
	return i.Name.Equal(d.Name)
}

func newNonce() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(b[:])
}
