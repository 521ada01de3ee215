package keychain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coinstr/domain"
)

func TestGenerateMnemonicIsValidAndDistinct(t *testing.T) {
	a, err := GenerateMnemonic()
	require.NoError(t, err)
	b, err := GenerateMnemonic()
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	_, err = Seed(a, "")
	require.NoError(t, err)
}

func TestSeedRejectsInvalidMnemonic(t *testing.T) {
	_, err := Seed("not a real mnemonic at all", "")
	require.Error(t, err)
}

func TestSeedVariesByPassphrase(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)

	a, err := Seed(mnemonic, "")
	require.NoError(t, err)
	b, err := Seed(mnemonic, "extra")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)

	require.NoError(t, s.Save(domain.Testnet, "primary", mnemonic, "correct horse"))

	got, err := s.Load(domain.Testnet, "primary", "correct horse")
	require.NoError(t, err)
	require.Equal(t, mnemonic, got)
}

func TestLoadRejectsWrongPassword(t *testing.T) {
	s := New(t.TempDir())
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)
	require.NoError(t, s.Save(domain.Testnet, "primary", mnemonic, "correct horse"))

	_, err = s.Load(domain.Testnet, "primary", "wrong password")
	require.ErrorIs(t, err, ErrWrongPassword)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Load(domain.Testnet, "ghost", "whatever")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNetworksAreIsolated(t *testing.T) {
	s := New(t.TempDir())
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)
	require.NoError(t, s.Save(domain.Testnet, "primary", mnemonic, "pw"))

	_, err = s.Load(domain.Mainnet, "primary", "pw")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListAndDelete(t *testing.T) {
	s := New(t.TempDir())
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)
	require.NoError(t, s.Save(domain.Testnet, "alpha", mnemonic, "pw"))
	require.NoError(t, s.Save(domain.Testnet, "beta", mnemonic, "pw"))

	names, err := s.List(domain.Testnet)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alpha", "beta"}, names)

	require.NoError(t, s.Delete(domain.Testnet, "alpha"))
	names, err = s.List(domain.Testnet)
	require.NoError(t, err)
	require.Equal(t, []string{"beta"}, names)
}

func TestListOnMissingNetworkDirReturnsEmpty(t *testing.T) {
	s := New(t.TempDir())
	names, err := s.List(domain.Regtest)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestDeleteMissingReturnsNotFound(t *testing.T) {
	s := New(t.TempDir())
	err := s.Delete(domain.Testnet, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}
