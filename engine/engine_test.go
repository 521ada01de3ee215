package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coinstr/crypto"
	"coinstr/domain"
	"coinstr/relay"
	"coinstr/store"
	"coinstr/storage"
	"coinstr/wallet"
)

// fakeTransport is a minimal in-memory relay.Transport, recording every
// published event for assertions instead of dialing a real relay.
type fakeTransport struct {
	mu        sync.Mutex
	relays    []string
	published []relay.SignedEvent
	failNext  bool
}

func (f *fakeTransport) AddRelay(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relays = append(f.relays, url)
	return nil
}

func (f *fakeTransport) RemoveRelay(url string) error { return nil }

func (f *fakeTransport) Relays() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.relays...)
}

func (f *fakeTransport) Publish(ctx context.Context, event relay.SignedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return context.DeadlineExceeded
	}
	f.published = append(f.published, event)
	return nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, relayURL string, filters []relay.Filter) (<-chan relay.InboundMessage, error) {
	ch := make(chan relay.InboundMessage)
	close(ch)
	return ch, nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeTransport) {
	t.Helper()
	db, err := storage.Open("")
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	st := store.New(db)

	identity, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	transport := &fakeTransport{}
	e := New(st, transport, wallet.NewStubFactory(1_000_000), identity, domain.Testnet, 16)
	e.sendWait = time.Second
	return e, transport
}

func twoCosigners(t *testing.T) []crypto.PublicKey {
	t.Helper()
	a, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	b, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return []crypto.PublicKey{a.PubKey(), b.PubKey()}
}

func TestSavePolicyRequiresTwoCosigners(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.SavePolicy("vault", "", "wsh(multi(2,...))", domain.Testnet, []crypto.PublicKey{e.Identity()})
	require.ErrorIs(t, err, ErrNotEnoughPublicKeys)
}

func TestSavePolicyPersistsAndPublishes(t *testing.T) {
	e, transport := newTestEngine(t)
	cosigners := twoCosigners(t)

	id, err := e.SavePolicy("vault", "cold storage", "wsh(multi(2,pk(a),pk(b)))", domain.Testnet, cosigners)
	require.NoError(t, err)
	require.False(t, id.IsZero())

	policy, err := e.GetPolicy(id)
	require.NoError(t, err)
	require.Equal(t, "vault", policy.Name)
	require.Equal(t, 2, policy.Threshold)

	has, err := e.Store().HasSharedKey(id)
	require.NoError(t, err)
	require.True(t, has)

	// The POLICY event publishes synchronously; SHARED_KEY fan-out is async
	// but should land shortly after.
	require.Eventually(t, func() bool {
		return len(transport.published) >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestSavePolicyRejectsBadDescriptor(t *testing.T) {
	e, _ := newTestEngine(t)
	cosigners := twoCosigners(t)
	_, err := e.SavePolicy("vault", "", "not-a-descriptor", domain.Testnet, cosigners)
	require.Error(t, err)
}

func TestGetPolicyNotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.GetPolicy(domain.EventId{1})
	require.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestGetDetailedPolicyIncludesBalanceAndSyncHeight(t *testing.T) {
	e, _ := newTestEngine(t)
	cosigners := twoCosigners(t)

	id, err := e.SavePolicy("vault", "", "wsh(multi(2,pk(a),pk(b)))", domain.Testnet, cosigners)
	require.NoError(t, err)

	require.NoError(t, e.Store().SetChainState(123456, 6, time.Now()))

	detailed, err := e.GetDetailedPolicy(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "vault", detailed.Policy.Name)
	require.Equal(t, wallet.Sats(1_000_000), detailed.Balance.Confirmed)
	require.Equal(t, int64(123456), detailed.LastSyncHeight)
}

func TestGetDetailedPolicyNotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.GetDetailedPolicy(context.Background(), domain.EventId{1})
	require.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestDeletePolicyRemovesLocallyAndPublishesTombstone(t *testing.T) {
	e, transport := newTestEngine(t)
	cosigners := twoCosigners(t)

	id, err := e.SavePolicy("vault", "", "wsh(multi(2,pk(a),pk(b)))", domain.Testnet, cosigners)
	require.NoError(t, err)

	before := len(transport.published)
	require.NoError(t, e.DeletePolicy(context.Background(), id))

	_, err = e.GetPolicy(id)
	require.ErrorIs(t, err, ErrPolicyNotFound)
	require.Greater(t, len(transport.published), before)
}

// TestSyncIdempotencyGuard covers I8: only one caller may transition the
// sync guard from stopped to running at a time.
func TestSyncIdempotencyGuard(t *testing.T) {
	e, _ := newTestEngine(t)
	require.False(t, e.IsSyncing())
	require.True(t, e.TryStartSync())
	require.True(t, e.IsSyncing())
	require.False(t, e.TryStartSync())

	e.StopSync()
	require.False(t, e.IsSyncing())
	require.True(t, e.TryStartSync())
}

func TestSyncPoliciesWithoutElectrumEndpoint(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.SyncPolicies(context.Background(), nil)
	require.ErrorIs(t, err, ErrElectrumEndpointNotSet)
}

func TestGetElectrumEndpointDefaultsEmpty(t *testing.T) {
	e, _ := newTestEngine(t)
	require.Equal(t, "", e.GetElectrumEndpoint())
}

// TestCloneSharesUnderlyingState verifies the Clone-per-task pattern: a
// sync-guard transition observed through one handle is visible through
// another handle cloned from the same Engine.
func TestCloneSharesUnderlyingState(t *testing.T) {
	e, _ := newTestEngine(t)
	clone := e.Clone()

	require.True(t, e.TryStartSync())
	require.True(t, clone.IsSyncing())

	clone.StopSync()
	require.False(t, e.IsSyncing())
}

func TestNotificationsChannelDoesNotBlockWhenFull(t *testing.T) {
	db, err := storage.Open("")
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	st := store.New(db)
	identity, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	e := New(st, &fakeTransport{}, wallet.NewStubFactory(0), identity, domain.Testnet, 1)
	e.deliverNotification(domain.Notification{ID: domain.EventId{1}})
	e.deliverNotification(domain.Notification{ID: domain.EventId{2}})

	select {
	case n := <-e.Notifications():
		require.Equal(t, domain.EventId{1}, n.ID)
	default:
		t.Fatal("expected first notification to be buffered")
	}
}
