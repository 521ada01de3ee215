package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coinstr/crypto"
	"coinstr/domain"
)

func TestEncodeDecodeSignerRoundTrip(t *testing.T) {
	owner, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	signer := domain.Signer{Name: "ledger", Fingerprint: "abcd1234", Descriptor: "[abcd1234]xpub..."}
	ev, err := EncodeSigner(owner, time.Now().Unix(), signer)
	require.NoError(t, err)

	decoded, err := DecodeSigner(owner, ev)
	require.NoError(t, err)
	require.Equal(t, ev.ID, decoded.ID)
	require.Equal(t, signer.Name, decoded.Name)
	require.Equal(t, signer.Fingerprint, decoded.Fingerprint)
	require.Equal(t, owner.PubKey(), decoded.Owner)
}

func TestEncodeDecodeSharedSignerRoundTrip(t *testing.T) {
	owner, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	recipient, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	var signerID domain.EventId
	copy(signerID[:], []byte("signer-id-signer-id-signer-id-s"))
	signer := domain.Signer{ID: signerID, Name: "trezor", Fingerprint: "11223344", Descriptor: "[11223344]xpub..."}

	ev, err := EncodeSharedSigner(owner, recipient.PubKey(), time.Now().Unix(), signer)
	require.NoError(t, err)

	shared, decodedSigner, err := DecodeSharedSigner(recipient, ev)
	require.NoError(t, err)
	require.Equal(t, signerID, shared.SignerID)
	require.Equal(t, owner.PubKey(), shared.Owner)
	require.Equal(t, recipient.PubKey(), shared.Recipient)
	require.Equal(t, signer.Name, decodedSigner.Name)
}

func TestDecodeSharedSignerWrongRecipientFails(t *testing.T) {
	owner, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	recipient, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	other, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	signer := domain.Signer{Name: "trezor"}
	ev, err := EncodeSharedSigner(owner, recipient.PubKey(), time.Now().Unix(), signer)
	require.NoError(t, err)

	_, _, err = DecodeSharedSigner(other, ev)
	require.Error(t, err)
}

func TestEncodeDecodeEventDeletion(t *testing.T) {
	author, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	recipient, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	var id1, id2 domain.EventId
	copy(id1[:], []byte("event-one-event-one-event-one-e"))
	copy(id2[:], []byte("event-two-event-two-event-two-e"))

	ev, err := EncodeEventDeletion(author, time.Now().Unix(), []domain.EventId{id1, id2}, []crypto.PublicKey{recipient.PubKey()})
	require.NoError(t, err)

	ids, err := DecodeEventDeletion(ev)
	require.NoError(t, err)
	require.ElementsMatch(t, []domain.EventId{id1, id2}, ids)
}
