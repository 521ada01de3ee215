package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coinstr/domain"
	"coinstr/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open("")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return New(db)
}

func eventID(seed string) domain.EventId {
	var id domain.EventId
	copy(id[:], seed)
	return id
}

func pubKey(seed byte) domain.PublicKey {
	var pk domain.PublicKey
	pk[0] = seed
	return pk
}

func TestSavePolicyRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id := eventID("policy-round-trip-policy-round-")
	p := domain.Policy{
		ID:        id,
		Name:      "vault",
		Network:   domain.Testnet,
		Cosigners: []domain.PublicKey{pubKey(1), pubKey(2)},
		Threshold: 2,
		CreatedAt: time.Now().Truncate(time.Second),
	}
	require.NoError(t, s.SavePolicy(p))

	got, err := s.GetPolicy(id)
	require.NoError(t, err)
	require.Equal(t, p.Name, got.Name)
	require.Equal(t, p.Threshold, got.Threshold)
	require.ElementsMatch(t, p.Cosigners, got.Cosigners)
}

func TestGetPolicyNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPolicy(eventID("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

// TestMarkDeletedIdempotent covers I1: tombstoning the same id twice must
// not error.
func TestMarkDeletedIdempotent(t *testing.T) {
	s := newTestStore(t)
	id := eventID("tombstone-tombstone-tombstone-to")

	require.NoError(t, s.MarkDeleted([]domain.EventId{id}, time.Now()))
	require.NoError(t, s.MarkDeleted([]domain.EventId{id}, time.Now()))

	deleted, err := s.IsDeleted(id)
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestIsDeletedFalseForUnknownID(t *testing.T) {
	s := newTestStore(t)
	deleted, err := s.IsDeleted(eventID("never-seen"))
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestDeletePolicyCascades(t *testing.T) {
	s := newTestStore(t)
	policyID := eventID("cascade-policy-cascade-policy-c")
	require.NoError(t, s.SavePolicy(domain.Policy{ID: policyID, Network: domain.Testnet}))
	require.NoError(t, s.SaveSharedKey(domain.SharedKey{PolicyID: policyID}, time.Now()))

	proposalID := eventID("cascade-proposal-cascade-propos")
	require.NoError(t, s.SaveProposal(domain.Proposal{ID: proposalID, PolicyID: policyID}))
	require.NoError(t, s.SaveApproval(domain.Approval{ID: eventID("cascade-approval-cascade-approv"), ProposalID: proposalID, PolicyID: policyID}))
	require.NoError(t, s.SaveCompletedProposal(domain.CompletedProposal{ID: eventID("cascade-completed-cascade-compl"), PolicyID: policyID}))

	require.NoError(t, s.DeletePolicy(policyID))

	_, err := s.GetPolicy(policyID)
	require.ErrorIs(t, err, ErrNotFound)
	has, err := s.HasSharedKey(policyID)
	require.NoError(t, err)
	require.False(t, has)
	proposals, err := s.GetProposals(policyID)
	require.NoError(t, err)
	require.Empty(t, proposals)
}

// TestSaveSharedKeyResolvesRaceByEarliestTimestamp covers §4.2: a second
// SaveSharedKey call for a policy that already holds a key doesn't just
// overwrite or reject, it keeps whichever of the two carries the earlier
// CreatedAt.
func TestSaveSharedKeyResolvesRaceByEarliestTimestamp(t *testing.T) {
	s := newTestStore(t)
	policyID := eventID("race-policy-race-policy-race-po")
	now := time.Now()

	var later, earlier [32]byte
	later[0] = 1
	earlier[0] = 2

	require.NoError(t, s.SaveSharedKey(domain.SharedKey{PolicyID: policyID, Secret: later}, now.Add(time.Minute)))
	require.NoError(t, s.SaveSharedKey(domain.SharedKey{PolicyID: policyID, Secret: earlier}, now))

	got, err := s.GetSharedKey(policyID)
	require.NoError(t, err)
	require.Equal(t, earlier, got.Secret)

	// Replaying the already-losing candidate must not flip the result back.
	require.NoError(t, s.SaveSharedKey(domain.SharedKey{PolicyID: policyID, Secret: later}, now.Add(time.Minute)))
	got, err = s.GetSharedKey(policyID)
	require.NoError(t, err)
	require.Equal(t, earlier, got.Secret)
}

// TestSaveSignerDuplicateDescriptorIsIdempotent covers I7: saving the same
// (owner, descriptor) pair twice must not create two rows.
func TestSaveSignerDuplicateDescriptorIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	owner := pubKey(9)
	signer := domain.Signer{ID: eventID("signer-one-signer-one-signer-on"), Owner: owner, Descriptor: "[abcd1234]xpub...", Name: "first"}

	require.NoError(t, s.SaveSigner(signer))
	signer.Name = "renamed"
	require.NoError(t, s.SaveSigner(signer))

	signers, err := s.GetSigners(owner)
	require.NoError(t, err)
	require.Len(t, signers, 1)
	require.Equal(t, "renamed", signers[0].Name)
}

func TestSaveProfileIfNewerKeepsMostRecent(t *testing.T) {
	s := newTestStore(t)
	author := pubKey(5)
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	require.NoError(t, s.SaveProfileIfNewer(author, []byte("old"), older))
	require.NoError(t, s.SaveProfileIfNewer(author, []byte("new"), newer))
	// A stale write after a newer one is already stored must be ignored.
	require.NoError(t, s.SaveProfileIfNewer(author, []byte("stale"), older))

	content, found, err := s.GetProfile(author)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("new"), content)
}

func TestReplaceContactsSwapsWholeSet(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetContact(pubKey(1), "alice"))
	require.NoError(t, s.ReplaceContacts(map[string]string{pubKey(2).String(): "bob"}))

	contacts, err := s.GetContacts()
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	require.Equal(t, "bob", contacts[pubKey(2).String()])
}

func TestResyncFlagsPollAndDrain(t *testing.T) {
	s := newTestStore(t)
	policyID := eventID("resync-policy-resync-policy-res")

	require.NoError(t, s.MarkPolicyResync(policyID))
	ids, err := s.TakeResyncFlags()
	require.NoError(t, err)
	require.Equal(t, []domain.EventId{policyID}, ids)

	// Draining clears the flag.
	ids, err = s.TakeResyncFlags()
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestRelaySyncDefaultsToZero(t *testing.T) {
	s := newTestStore(t)
	since, err := s.GetRelaySync("wss://relay.example")
	require.NoError(t, err)
	require.Zero(t, since)

	require.NoError(t, s.SetRelaySync("wss://relay.example", 12345))
	since, err = s.GetRelaySync("wss://relay.example")
	require.NoError(t, err)
	require.EqualValues(t, 12345, since)
}

func TestExportImportPolicyBackupRequiresSharedKey(t *testing.T) {
	s := newTestStore(t)
	policyID := eventID("backup-policy-backup-policy-bac")
	require.NoError(t, s.SavePolicy(domain.Policy{ID: policyID, Name: "vault", Network: domain.Testnet}))

	_, err := s.ExportPolicyBackup(policyID)
	require.Error(t, err)

	var secret [32]byte
	copy(secret[:], []byte("backup-secret-backup-secret-bac"))
	require.NoError(t, s.SaveSharedKey(domain.SharedKey{PolicyID: policyID, Secret: secret}, time.Now()))

	backup, err := s.ExportPolicyBackup(policyID)
	require.NoError(t, err)
	require.Equal(t, secret, backup.Secret)

	restored := newTestStore(t)
	require.NoError(t, restored.ImportPolicyBackup(backup))
	got, err := restored.GetPolicy(policyID)
	require.NoError(t, err)
	require.Equal(t, "vault", got.Name)
	has, err := restored.HasSharedKey(policyID)
	require.NoError(t, err)
	require.True(t, has)
}

func TestPendingEventLifecycle(t *testing.T) {
	s := newTestStore(t)
	id := eventID("pending-event-pending-event-pen")
	require.NoError(t, s.SavePendingEvent(domain.PendingEvent{ID: id, Kind: 1, Payload: []byte("payload")}))

	pending, err := s.GetPendingEvents()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.DeletePendingEvent(id))
	pending, err = s.GetPendingEvents()
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestChainStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	height, confirmations, err := s.GetChainState()
	require.NoError(t, err)
	require.Zero(t, height)
	require.Zero(t, confirmations)

	require.NoError(t, s.SetChainState(800000, 6, time.Now()))
	height, confirmations, err = s.GetChainState()
	require.NoError(t, err)
	require.EqualValues(t, 800000, height)
	require.EqualValues(t, 6, confirmations)
}
