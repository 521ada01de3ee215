// Package keychain stores BIP39 mnemonics on disk, password-protected with
// scrypt + ChaCha20-Poly1305 — the same file-codec shape as the teacher's
// go-ethereum v3 keystore, re-grounded on x/crypto/scrypt directly since
// the v3 keystore format is specific to Ethereum's ECDSA keys and isn't a
// fit for a mnemonic blob.
package keychain

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"coinstr/domain"
)

// fileExt is the on-disk extension for a saved keychain file.
const fileExt = ".coinstr"

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

var (
	// ErrNotFound is returned when a named keychain doesn't exist.
	ErrNotFound = errors.New("keychain: not found")
	// ErrWrongPassword is returned when decryption fails, almost always
	// because the password doesn't match.
	ErrWrongPassword = errors.New("keychain: wrong password")
)

// file is the JSON shape persisted at {base}/{network}/keychains/{name}.coinstr.
type file struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Store manages keychain files rooted at a base data directory, one
// subdirectory per network so the same name can be reused across
// mainnet/testnet/signet/regtest without collision.
type Store struct {
	base string
}

// New returns a Store rooted at base.
func New(base string) *Store {
	return &Store{base: base}
}

func (s *Store) dir(network domain.Network) string {
	return filepath.Join(s.base, string(network), "keychains")
}

func (s *Store) path(network domain.Network, name string) string {
	return filepath.Join(s.dir(network), name+fileExt)
}

// GenerateMnemonic returns a fresh 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("keychain: generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("keychain: generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// Seed derives the BIP39 seed for mnemonic, optionally salted with an extra
// passphrase.
func Seed(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("keychain: invalid mnemonic")
	}
	return bip39.NewSeed(mnemonic, passphrase), nil
}

// Save encrypts mnemonic under password and writes it to
// {base}/{network}/keychains/{name}.coinstr, creating parent directories as
// needed.
func (s *Store) Save(network domain.Network, name, mnemonic, password string) error {
	if err := os.MkdirAll(s.dir(network), 0o700); err != nil {
		return err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return fmt.Errorf("keychain: derive key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	ciphertext := aead.Seal(nil, nonce, []byte(mnemonic), nil)

	blob, err := json.Marshal(file{Salt: salt, Nonce: nonce, Ciphertext: ciphertext})
	if err != nil {
		return err
	}

	path := s.path(network, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load decrypts and returns the mnemonic stored under name, failing with
// ErrNotFound or ErrWrongPassword as appropriate.
func (s *Store) Load(network domain.Network, name, password string) (string, error) {
	raw, err := os.ReadFile(s.path(network, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", fmt.Errorf("keychain: decode: %w", err)
	}
	key, err := scrypt.Key([]byte(password), f.Salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("keychain: derive key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}
	plaintext, err := aead.Open(nil, f.Nonce, f.Ciphertext, nil)
	if err != nil {
		return "", ErrWrongPassword
	}
	return string(plaintext), nil
}

// List returns the names of every keychain saved for network.
func (s *Store) List(network domain.Network) ([]string, error) {
	entries, err := os.ReadDir(s.dir(network))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), fileExt))
	}
	return names, nil
}

// Delete removes the keychain file for name, if present.
func (s *Store) Delete(network domain.Network, name string) error {
	err := os.Remove(s.path(network, name))
	if err != nil && os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}
