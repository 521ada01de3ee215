package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coinstr/crypto"
)

func TestEncryptDecryptWithKeyRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	ciphertext, err := EncryptWithKey(key, []byte("hello policy"))
	require.NoError(t, err)

	plain, err := DecryptWithKey(key, ciphertext)
	require.NoError(t, err)
	require.Equal(t, []byte("hello policy"), plain)
}

func TestDecryptWithKeyRejectsWrongKey(t *testing.T) {
	var key, other [32]byte
	copy(key[:], []byte("key-a-key-a-key-a-key-a-key-a-aa"))
	copy(other[:], []byte("key-b-key-b-key-b-key-b-key-b-bb"))

	ciphertext, err := EncryptWithKey(key, []byte("secret"))
	require.NoError(t, err)

	_, err = DecryptWithKey(other, ciphertext)
	require.Error(t, err)
}

func TestEncryptForRecipientRoundTrip(t *testing.T) {
	sender, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	receiver, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	ciphertext, err := EncryptForRecipient(sender, receiver.PubKey(), []byte("shared secret"))
	require.NoError(t, err)

	plain, err := DecryptFromSender(receiver, sender.PubKey(), ciphertext)
	require.NoError(t, err)
	require.Equal(t, []byte("shared secret"), plain)
}

func TestDecryptFromSenderRejectsWrongReceiver(t *testing.T) {
	sender, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	receiver, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	eavesdropper, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	ciphertext, err := EncryptForRecipient(sender, receiver.PubKey(), []byte("shared secret"))
	require.NoError(t, err)

	_, err = DecryptFromSender(eavesdropper, sender.PubKey(), ciphertext)
	require.Error(t, err)
}
