package relay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coinstr/crypto"
	"coinstr/domain"
)

func testEvent(t *testing.T, kind Kind, createdAt int64, tags []Tag) SignedEvent {
	t.Helper()
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	var id domain.EventId
	id[0] = 7
	return SignedEvent{
		ID:        id,
		Author:    priv.PubKey(),
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   []byte("content"),
	}
}

func TestTagValuesCollectsAllMatchingTags(t *testing.T) {
	e := testEvent(t, KindPolicy, 100, []Tag{
		{Key: "p", Values: []string{"alice"}},
		{Key: "e", Values: []string{"ev1"}},
		{Key: "p", Values: []string{"bob"}},
	})
	require.Equal(t, []string{"alice", "bob"}, e.TagValues("p"))
	require.Equal(t, []string{"ev1"}, e.TagValues("e"))
	require.Nil(t, e.TagValues("missing"))
}

func TestTagFirstReturnsEmptyForNoValues(t *testing.T) {
	tag := Tag{Key: "e"}
	require.Equal(t, "", tag.First())
	tag.Values = []string{"a", "b"}
	require.Equal(t, "a", tag.First())
}

func TestFilterMatchesEmptyFilterAcceptsEverything(t *testing.T) {
	e := testEvent(t, KindPolicy, 100, nil)
	require.True(t, Filter{}.Matches(e))
}

func TestFilterMatchesByID(t *testing.T) {
	e := testEvent(t, KindPolicy, 100, nil)
	require.True(t, Filter{IDs: []domain.EventId{e.ID}}.Matches(e))

	var other domain.EventId
	other[0] = 9
	require.False(t, Filter{IDs: []domain.EventId{other}}.Matches(e))
}

func TestFilterMatchesByAuthor(t *testing.T) {
	e := testEvent(t, KindPolicy, 100, nil)
	require.True(t, Filter{Authors: []crypto.PublicKey{e.Author}}.Matches(e))

	other, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	require.False(t, Filter{Authors: []crypto.PublicKey{other.PubKey()}}.Matches(e))
}

func TestFilterMatchesByKind(t *testing.T) {
	e := testEvent(t, KindProposal, 100, nil)
	require.True(t, Filter{Kinds: []Kind{KindProposal, KindPolicy}}.Matches(e))
	require.False(t, Filter{Kinds: []Kind{KindPolicy}}.Matches(e))
}

func TestFilterMatchesSince(t *testing.T) {
	e := testEvent(t, KindPolicy, 100, nil)
	require.True(t, Filter{Since: 50}.Matches(e))
	require.True(t, Filter{Since: 100}.Matches(e))
	require.False(t, Filter{Since: 101}.Matches(e))
}

func TestFilterMatchesByTagValue(t *testing.T) {
	e := testEvent(t, KindPolicy, 100, []Tag{{Key: "p", Values: []string{"alice"}}})
	require.True(t, Filter{Tags: map[string][]string{"p": {"alice", "bob"}}}.Matches(e))
	require.False(t, Filter{Tags: map[string][]string{"p": {"carol"}}}.Matches(e))
	require.False(t, Filter{Tags: map[string][]string{"e": {"anything"}}}.Matches(e))
}

func TestFilterMatchesRequiresAllConstraints(t *testing.T) {
	e := testEvent(t, KindProposal, 100, []Tag{{Key: "p", Values: []string{"alice"}}})
	f := Filter{
		Kinds: []Kind{KindProposal},
		Tags:  map[string][]string{"p": {"alice"}},
		Since: 50,
	}
	require.True(t, f.Matches(e))

	f.Since = 200
	require.False(t, f.Matches(e))
}
