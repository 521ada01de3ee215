package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coinstr/crypto"
	"coinstr/domain"
)

func testKey() [32]byte {
	var key [32]byte
	copy(key[:], []byte("test-shared-key-test-shared-key"))
	return key
}

func TestEncodeDecodePolicyRoundTrip(t *testing.T) {
	author, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	cosigner, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	key := testKey()

	policy := domain.Policy{
		Name:        "vault",
		Description: "cold storage policy",
		Descriptor:  "wsh(multi(2,...))",
		Network:     domain.Testnet,
		Cosigners:   []domain.PublicKey{author.PubKey(), cosigner.PubKey()},
		Threshold:   2,
	}

	ev, err := EncodePolicy(author, key, time.Now().Unix(), policy)
	require.NoError(t, err)

	decoded, err := DecodePolicy(key, ev)
	require.NoError(t, err)
	require.Equal(t, ev.ID, decoded.ID)
	require.Equal(t, policy.Name, decoded.Name)
	require.Equal(t, policy.Descriptor, decoded.Descriptor)
	require.Equal(t, policy.Network, decoded.Network)
	require.Equal(t, policy.Threshold, decoded.Threshold)
	require.ElementsMatch(t, policy.Cosigners, decoded.Cosigners)
}

func TestDecodePolicyWrongKeyFails(t *testing.T) {
	author, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	key := testKey()
	var wrongKey [32]byte
	copy(wrongKey[:], []byte("wrong-key-wrong-key-wrong-key-wr"))

	policy := domain.Policy{Name: "vault", Network: domain.Testnet, Threshold: 1}
	ev, err := EncodePolicy(author, key, time.Now().Unix(), policy)
	require.NoError(t, err)

	_, err = DecodePolicy(wrongKey, ev)
	require.Error(t, err)
}

func TestEncodeDecodeSharedKeyRoundTrip(t *testing.T) {
	author, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	recipient, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	var policyID domain.EventId
	copy(policyID[:], []byte("policy-id-policy-id-policy-id-p"))
	secret := testKey()

	ev, err := EncodeSharedKey(author, policyID, recipient.PubKey(), secret, time.Now().Unix())
	require.NoError(t, err)

	decoded, err := DecodeSharedKey(recipient, ev)
	require.NoError(t, err)
	require.Equal(t, policyID, decoded.PolicyID)
	require.Equal(t, secret, decoded.Secret)
}

func TestDecodeSharedKeyWrongRecipientFails(t *testing.T) {
	author, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	recipient, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	eavesdropper, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	var policyID domain.EventId
	secret := testKey()
	ev, err := EncodeSharedKey(author, policyID, recipient.PubKey(), secret, time.Now().Unix())
	require.NoError(t, err)

	_, err = DecodeSharedKey(eavesdropper, ev)
	require.Error(t, err)
}
