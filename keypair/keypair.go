// Package keypair contains the key material used by payment channel
// participants: a Full keypair for the local party, which can sign, and a
// FromAddress for the remote party, which can only verify.
package keypair

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

var (
	ErrMissingSecret    = errors.New("missing secret")
	ErrMissingPublicKey = errors.New("missing public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// FromAddress is a public key and the pay-to-pubkey-hash address derived from
// it on a particular network.
type FromAddress struct {
	pub     *btcec.PublicKey
	address *btcutil.AddressPubKeyHash
}

// Full is a keypair that holds the private key in addition to the public key
// and address.
type Full struct {
	public FromAddress
	priv   *btcec.PrivateKey
}

// ParsePublic parses a hex encoded public key, compressed or uncompressed,
// and derives its address on the given network.
func ParsePublic(pubHex string, params *chaincfg.Params) (*FromAddress, error) {
	if pubHex == "" {
		return nil, ErrMissingPublicKey
	}
	b, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, fmt.Errorf("decoding public key hex: %w", err)
	}
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	return newFromAddress(pub, params)
}

// ParseFull parses a hex encoded 32 byte secret.
func ParseFull(secretHex string, params *chaincfg.Params) (*Full, error) {
	if secretHex == "" {
		return nil, ErrMissingSecret
	}
	b, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("decoding secret hex: %w", err)
	}
	if len(b) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid secret length %d expected %d", len(b), btcec.PrivKeyBytesLen)
	}
	priv, pub := btcec.PrivKeyFromBytes(b)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("invalid secret: zero scalar")
	}
	return newFull(priv, pub, params)
}

// Random generates a new random keypair.
func Random(params *chaincfg.Params) (*Full, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating private key: %w", err)
	}
	return newFull(priv, priv.PubKey(), params)
}

// MustRandom is the same as Random but panics on error.
func MustRandom(params *chaincfg.Params) *Full {
	kp, err := Random(params)
	if err != nil {
		panic(err)
	}
	return kp
}

func newFull(priv *btcec.PrivateKey, pub *btcec.PublicKey, params *chaincfg.Params) (*Full, error) {
	fa, err := newFromAddress(pub, params)
	if err != nil {
		return nil, err
	}
	return &Full{public: *fa, priv: priv}, nil
}

func newFromAddress(pub *btcec.PublicKey, params *chaincfg.Params) (*FromAddress, error) {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params)
	if err != nil {
		return nil, fmt.Errorf("deriving address: %w", err)
	}
	return &FromAddress{pub: pub, address: addr}, nil
}

// PublicKey returns the compressed serialization of the public key. This is
// the form committed to in channel scripts.
func (kp *FromAddress) PublicKey() []byte {
	return kp.pub.SerializeCompressed()
}

// Address returns the pay-to-pubkey-hash address of the key.
func (kp *FromAddress) Address() btcutil.Address {
	return kp.address
}

func (kp *FromAddress) String() string {
	return kp.address.EncodeAddress()
}

// Equal reports whether both keypairs share the same public key.
func (kp *FromAddress) Equal(other *FromAddress) bool {
	if kp == nil || other == nil {
		return kp == other
	}
	return kp.pub.IsEqual(other.pub)
}

// Verify checks that sig, a DER encoded ECDSA signature without a trailing
// sighash type byte, is a valid signature of hash by this key. Signatures
// with a high S value are rejected since standard relay rejects transactions
// carrying them.
func (kp *FromAddress) Verify(hash []byte, sig []byte) error {
	s, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("parsing signature: %v: %w", err, ErrInvalidSignature)
	}
	if sv := s.S(); sv.IsOverHalfOrder() {
		return fmt.Errorf("signature with high S value: %w", ErrInvalidSignature)
	}
	if !s.Verify(hash, kp.pub) {
		return ErrInvalidSignature
	}
	return nil
}

// FromAddress returns the public part of the keypair.
func (kp *Full) FromAddress() *FromAddress {
	fa := kp.public
	return &fa
}

func (kp *Full) PublicKey() []byte {
	return kp.public.PublicKey()
}

func (kp *Full) Address() btcutil.Address {
	return kp.public.Address()
}

func (kp *Full) String() string {
	return kp.public.String()
}

func (kp *Full) Verify(hash []byte, sig []byte) error {
	return kp.public.Verify(hash, sig)
}

// Sign signs hash and returns the DER encoded signature. Signing is
// deterministic (RFC6979), so the same key and hash always yield the same
// signature.
func (kp *Full) Sign(hash []byte) []byte {
	return ecdsa.Sign(kp.priv, hash).Serialize()
}
