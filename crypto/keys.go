// Package crypto provides the secp256k1 key material shared by every
// coordination-engine component: author identities, the per-policy shared
// key, and the ECDH step used to derive per-recipient envelope keys.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// PublicKey is the 32-byte x-only encoding of a secp256k1 public key, the
// same representation relay events use to identify an author or a tag.
type PublicKey [32]byte

// PrivateKey wraps a secp256k1 scalar.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// GeneratePrivateKey creates a new random keypair.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes parses a 32-byte scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, errors.New("crypto: private key must be 32 bytes")
	}
	key, _ := btcec.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromHex parses a hex-encoded 32-byte scalar.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode private key hex: %w", err)
	}
	return PrivateKeyFromBytes(b)
}

// Bytes returns the 32-byte scalar.
func (k *PrivateKey) Bytes() []byte {
	b := k.key.Serialize()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Hex returns the hex-encoded scalar.
func (k *PrivateKey) Hex() string {
	return hex.EncodeToString(k.Bytes())
}

// PubKey returns the x-only public key for this private key, per BIP340.
func (k *PrivateKey) PubKey() PublicKey {
	var out PublicKey
	copy(out[:], schnorr.SerializePubKey(k.key.PubKey()))
	return out
}

// ECDH derives the shared x-coordinate between this private key and a
// counterpart public key. The raw point is never used directly as a cipher
// key — package codec runs it through HKDF before handing it to an AEAD.
func (k *PrivateKey) ECDH(pub PublicKey) ([]byte, error) {
	theirs, err := ParsePublicKey(pub)
	if err != nil {
		return nil, err
	}
	var point btcec.JacobianPoint
	theirs.AsJacobian(&point)
	btcec.ScalarMultNonConst(&k.key.Key, &point, &point)
	point.ToAffine()
	x := point.X.Bytes()
	return x[:], nil
}

// ParsePublicKey recovers a full secp256k1 public key from its x-only
// encoding, choosing the even-Y candidate (the BIP340 convention every
// signer in this engine follows).
func ParsePublicKey(pub PublicKey) (*btcec.PublicKey, error) {
	key, err := schnorr.ParsePubKey(pub[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: parse public key: %w", err)
	}
	return key, nil
}

// String renders the public key as lowercase hex, matching the wire
// representation used in event tags.
func (p PublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// IsZero reports whether p is the zero value (no key set).
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// PublicKeyFromHex parses a hex-encoded x-only public key.
func PublicKeyFromHex(s string) (PublicKey, error) {
	var out PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("crypto: decode public key hex: %w", err)
	}
	if len(b) != 32 {
		return out, errors.New("crypto: public key must be 32 bytes")
	}
	copy(out[:], b)
	return out, nil
}

// Sign produces a BIP340 Schnorr signature over a 32-byte message digest.
func (k *PrivateKey) Sign(digest [32]byte) ([]byte, error) {
	sig, err := schnorr.Sign(k.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w", err)
	}
	return sig.Serialize(), nil
}

// Verify checks a signature produced by Sign against a public key and
// digest.
func Verify(pub PublicKey, digest [32]byte, sig []byte) bool {
	key, err := ParsePublicKey(pub)
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest[:], key)
}

// RandomNonce returns cryptographically-random bytes, used for per-event
// encryption nonces.
func RandomNonce(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: random nonce: %w", err)
	}
	return b, nil
}
