package loops

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coinstr/crypto"
	"coinstr/relay"
)

func TestCanonicalFiltersCoversSelfAuthoredAndMentioned(t *testing.T) {
	self, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	filters := canonicalFilters(self.PubKey(), 100)
	require.Len(t, filters, 4)

	require.Equal(t, []crypto.PublicKey{self.PubKey()}, filters[0].Authors)
	require.Equal(t, coordinationKinds, filters[0].Kinds)
	require.EqualValues(t, 100, filters[0].Since)

	require.Equal(t, []string{self.PubKey().String()}, filters[1].Tags["p"])
	require.Equal(t, coordinationKinds, filters[1].Kinds)

	require.Equal(t, []string{self.PubKey().String()}, filters[2].Tags["p"])
	require.Equal(t, []relay.Kind{relay.KindNostrConnect}, filters[2].Kinds)

	require.Equal(t, []crypto.PublicKey{self.PubKey()}, filters[3].Authors)
	require.Equal(t, []relay.Kind{relay.KindMetadata, relay.KindContactList}, filters[3].Kinds)
}

func TestCanonicalFiltersAllApplyToDistinctEvents(t *testing.T) {
	self, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	filters := canonicalFilters(self.PubKey(), 0)

	other, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	selfAuthoredPolicy := relay.SignedEvent{Author: self.PubKey(), Kind: relay.KindPolicy, CreatedAt: 1}
	require.True(t, filters[0].Matches(selfAuthoredPolicy))

	mentionedProposal := relay.SignedEvent{
		Author:    other.PubKey(),
		Kind:      relay.KindProposal,
		Tags:      []relay.Tag{{Key: "p", Values: []string{self.PubKey().String()}}},
		CreatedAt: 1,
	}
	require.True(t, filters[1].Matches(mentionedProposal))
	require.False(t, filters[0].Matches(mentionedProposal))
}
