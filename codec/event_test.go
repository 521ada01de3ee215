package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coinstr/crypto"
	"coinstr/relay"
)

func TestSignEventVerifies(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	tags := []relay.Tag{{Key: "p", Values: []string{"deadbeef"}}}
	ev, err := SignEvent(key, 1000, relay.KindPolicy, tags, []byte("content"))
	require.NoError(t, err)
	require.NoError(t, VerifyEvent(ev))
}

func TestVerifyEventRejectsTamperedContent(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	ev, err := SignEvent(key, 1000, relay.KindPolicy, nil, []byte("content"))
	require.NoError(t, err)

	ev.Content = []byte("tampered")
	require.Error(t, VerifyEvent(ev))
}

func TestVerifyEventRejectsTamperedSignature(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	other, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	ev, err := SignEvent(key, 1000, relay.KindPolicy, nil, []byte("content"))
	require.NoError(t, err)

	forged, err := other.Sign(ev.ID)
	require.NoError(t, err)
	ev.Sig = forged
	require.Error(t, VerifyEvent(ev))
}

func TestComputeEventIdDeterministic(t *testing.T) {
	author := crypto.PublicKey{1, 2, 3}
	tags := []relay.Tag{{Key: "e", Values: []string{"abc"}}}
	id1 := ComputeEventId(author, 100, relay.KindProposal, tags, []byte("x"))
	id2 := ComputeEventId(author, 100, relay.KindProposal, tags, []byte("x"))
	require.Equal(t, id1, id2)

	id3 := ComputeEventId(author, 101, relay.KindProposal, tags, []byte("x"))
	require.NotEqual(t, id1, id3)
}
