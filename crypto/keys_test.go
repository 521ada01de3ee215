package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	var digest [32]byte
	copy(digest[:], []byte("deterministic test message digest"))

	sig, err := key.Sign(digest)
	require.NoError(t, err)
	require.True(t, Verify(key.PubKey(), digest, sig))
}

func TestVerifyRejectsTamperedDigest(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	var digest, other [32]byte
	copy(digest[:], []byte("original"))
	copy(other[:], []byte("tampered"))

	sig, err := key.Sign(digest)
	require.NoError(t, err)
	require.False(t, Verify(key.PubKey(), other, sig))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	other, err := GeneratePrivateKey()
	require.NoError(t, err)

	var digest [32]byte
	copy(digest[:], []byte("message"))
	sig, err := key.Sign(digest)
	require.NoError(t, err)
	require.False(t, Verify(other.PubKey(), digest, sig))
}

func TestPrivateKeyHexRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	parsed, err := PrivateKeyFromHex(key.Hex())
	require.NoError(t, err)
	require.Equal(t, key.PubKey(), parsed.PubKey())
}

func TestPublicKeyHexRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	pub := key.PubKey()

	parsed, err := PublicKeyFromHex(pub.String())
	require.NoError(t, err)
	require.Equal(t, pub, parsed)
}

func TestPublicKeyFromHexRejectsBadLength(t *testing.T) {
	_, err := PublicKeyFromHex("abcd")
	require.Error(t, err)
}

func TestECDHIsSymmetric(t *testing.T) {
	alice, err := GeneratePrivateKey()
	require.NoError(t, err)
	bob, err := GeneratePrivateKey()
	require.NoError(t, err)

	aliceSecret, err := alice.ECDH(bob.PubKey())
	require.NoError(t, err)
	bobSecret, err := bob.ECDH(alice.PubKey())
	require.NoError(t, err)
	require.Equal(t, aliceSecret, bobSecret)
}

func TestIsZero(t *testing.T) {
	var zero PublicKey
	require.True(t, zero.IsZero())

	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	require.False(t, key.PubKey().IsZero())
}

func TestRandomNonceLength(t *testing.T) {
	n, err := RandomNonce(24)
	require.NoError(t, err)
	require.Len(t, n, 24)
}
