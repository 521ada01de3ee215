package config

import (
	"encoding/hex"
	"os"

	"github.com/BurntSushi/toml"

	"coinstr/crypto"
	"coinstr/domain"
)

// Config is the node's on-disk configuration: where its Store and keychain
// files live, which network its wallets operate on, the relay set it
// starts subscribed to, and the identity key it signs coordination events
// with.
type Config struct {
	DataDir          string         `toml:"DataDir"`
	Network          domain.Network `toml:"Network"`
	Relays           []string       `toml:"Relays"`
	ElectrumEndpoint string         `toml:"ElectrumEndpoint"`
	IdentityKey      string         `toml:"IdentityKey"`
	NotifyBuffer     int            `toml:"NotifyBuffer"`
}

// Load reads the configuration at path, creating a default one on first
// run the same way the identity key is lazily generated: if the file is
// missing, Load writes a fresh one; if it exists but has no IdentityKey
// yet, Load mints one and rewrites the file in place.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if cfg.IdentityKey == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.IdentityKey = hex.EncodeToString(key.Bytes())

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, os.ModePerm)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file for a
// brand-new data directory.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:      "./coinstr-data",
		Network:      domain.Testnet,
		Relays:       []string{},
		IdentityKey:  hex.EncodeToString(key.Bytes()),
		NotifyBuffer: 1024,
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PrivateKey decodes IdentityKey into this node's signing key.
func (c *Config) PrivateKey() (*crypto.PrivateKey, error) {
	raw, err := hex.DecodeString(c.IdentityKey)
	if err != nil {
		return nil, err
	}
	return crypto.PrivateKeyFromBytes(raw)
}
