package codec

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"coinstr/crypto"
)

const hkdfInfo = "coinstr-envelope-v1"

// deriveSymmetricKey runs raw ECDH output through HKDF-SHA256 to produce a
// chacha20poly1305 key, so the AEAD never sees a raw elliptic-curve point
// directly. A SharedKey secret is not passed through it: EncryptWithKey uses
// K_p as the AEAD key as is.
func deriveSymmetricKey(secret []byte) ([32]byte, error) {
	var key [32]byte
	r := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("codec: derive key: %w", err)
	}
	return key, nil
}

// EncryptWithKey seals plaintext under key, prefixing the ciphertext with a
// random nonce. Used for content encrypted directly under a policy's shared
// key K_p, the same key every cosigner holds.
func EncryptWithKey(key [32]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("codec: new aead: %w", err)
	}
	nonce, err := crypto.RandomNonce(aead.NonceSize())
	if err != nil {
		return nil, err
	}
	out := aead.Seal(nonce, nonce, plaintext, nil)
	return out, nil
}

// DecryptWithKey reverses EncryptWithKey.
func DecryptWithKey(key [32]byte, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("codec: new aead: %w", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("codec: ciphertext too short")
	}
	nonce, body := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("codec: decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptForRecipient derives a one-to-one envelope key from an ECDH
// exchange between sender and recipient and seals plaintext under it. This
// is how a freshly-generated SharedKey secret is distributed to each
// cosigner: one ciphertext per recipient, each only that recipient (and the
// sender) can open.
func EncryptForRecipient(sender *crypto.PrivateKey, recipient crypto.PublicKey, plaintext []byte) ([]byte, error) {
	shared, err := sender.ECDH(recipient)
	if err != nil {
		return nil, err
	}
	key, err := deriveSymmetricKey(shared)
	if err != nil {
		return nil, err
	}
	return EncryptWithKey(key, plaintext)
}

// DecryptFromSender reverses EncryptForRecipient from the recipient's side.
func DecryptFromSender(receiver *crypto.PrivateKey, sender crypto.PublicKey, ciphertext []byte) ([]byte, error) {
	shared, err := receiver.ECDH(sender)
	if err != nil {
		return nil, err
	}
	key, err := deriveSymmetricKey(shared)
	if err != nil {
		return nil, err
	}
	return DecryptWithKey(key, ciphertext)
}
