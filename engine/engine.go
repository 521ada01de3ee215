// Package engine implements the Coordination API (§4.5): the operations a
// UI, CLI, or binding calls to manage policies, proposals, approvals, and
// signers. It is the one package that ties the Local Store, Shared-Key
// Registry, Event Codec, Event Reducer, and Remote Signing Channel together
// behind a small operation surface.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"coinstr/chain"
	"coinstr/codec"
	"coinstr/connect"
	"coinstr/crypto"
	"coinstr/domain"
	"coinstr/reducer"
	"coinstr/relay"
	"coinstr/store"
	"coinstr/wallet"
)

// sendWaitDefault is how long save_policy/spend/etc. block waiting for a
// relay to acknowledge the record-of-truth event (the POLICY/PROPOSAL/...
// event, as opposed to the fire-and-forget SHARED_KEY fan-out) per §4.5.
const sendWaitDefault = 5 * time.Second

// approvalValidityDefault is how long an Approval remains authoritative
// after it's created, per the Approval entity's invariant in §3.
const approvalValidityDefault = 7 * 24 * time.Hour

// indexerCell is the engine's single read-write cell for the configured
// chain indexer endpoint (§5: "Electrum endpoint = read-write cell,
// last-writer-wins"), shared by every Clone of an Engine.
type indexerCell struct {
	mu       sync.RWMutex
	endpoint string
	indexer  chain.Indexer
}

func (c *indexerCell) set(endpoint string, idx chain.Indexer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoint, c.indexer = endpoint, idx
}

func (c *indexerCell) get() (string, chain.Indexer) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint, c.indexer
}

// Engine is the coordination engine's handle: a Store, a relay Transport, a
// wallet Factory, and this node's identity key, plus the shared mutable
// cells (indexer endpoint, sync guard, notification queue) every Clone of
// the same logical engine must observe consistently.
type Engine struct {
	store     *store.Store
	transport relay.Transport
	wallets   wallet.Factory
	identity  *crypto.PrivateKey
	network   domain.Network

	reducer *reducer.Reducer
	connect *connect.Handler

	indexer  *indexerCell
	syncing  *int32 // atomic.CompareAndSwap guard for sync() idempotency (I8)
	notifyCh chan domain.Notification

	now      func() time.Time
	sendWait time.Duration
}

// New constructs a fresh Engine. notifyBuffer should be 1024 per §5's
// bounded broadcast queue; callers that don't need notifications can pass 0
// to get an unbuffered best-effort channel that simply never blocks
// publishers (see deliverNotification).
func New(st *store.Store, transport relay.Transport, wallets wallet.Factory, identity *crypto.PrivateKey, network domain.Network, notifyBuffer int) *Engine {
	e := &Engine{
		store:     st,
		transport: transport,
		wallets:   wallets,
		identity:  identity,
		network:   network,
		indexer:   &indexerCell{},
		syncing:   new(int32),
		notifyCh:  make(chan domain.Notification, notifyBuffer),
		now:       time.Now,
		sendWait:  sendWaitDefault,
	}
	connHandler := connect.New(st, identity, transport, e.now)
	e.connect = connHandler
	e.reducer = reducer.New(st, identity, connHandler, e.now, e.deliverNotification)
	return e
}

// Clone returns a handle sharing this Engine's Store, Transport, and mutable
// cells — the clone-per-task pattern §5/§9 describe for background loops:
// cheap to create, never holds its own copy of interior-mutable state.
func (e *Engine) Clone() *Engine {
	cp := *e
	return &cp
}

// Identity returns this engine's own public key.
func (e *Engine) Identity() crypto.PublicKey { return e.identity.PubKey() }

// Reducer exposes the shared Reducer instance, driven by the subscription
// loop (package loops) for inbound events.
func (e *Engine) Reducer() *reducer.Reducer { return e.reducer }

// Store exposes the shared Store, for read-only accessors callers build on
// top of the Coordination API (listing, paging, and so on).
func (e *Engine) Store() *store.Store { return e.store }

// Transport exposes the shared relay Transport, for the subscription loop.
func (e *Engine) Transport() relay.Transport { return e.transport }

// Connect exposes the shared Remote Signing Channel handler.
func (e *Engine) Connect() *connect.Handler { return e.connect }

// Notifications returns the channel new Notifications are broadcast on.
// Per §5, a slow subscriber drains late rather than blocking producers: the
// channel is created with a fixed buffer and deliverNotification drops
// rather than blocks when it's full.
func (e *Engine) Notifications() <-chan domain.Notification { return e.notifyCh }

func (e *Engine) deliverNotification(n domain.Notification) {
	select {
	case e.notifyCh <- n:
	default:
		// Bounded queue, never blocks the reducer: a slow subscriber misses
		// this one but can still page through GetNotifications later.
	}
}

// TryStartSync implements the compare-and-set half of sync()'s idempotency
// guard (I8): it reports true only for the caller that actually transitions
// the shared flag from stopped to running, so calling sync() twice starts
// exactly one loop set.
func (e *Engine) TryStartSync() bool {
	return atomic.CompareAndSwapInt32(e.syncing, 0, 1)
}

// StopSync clears the sync guard, called by shutdown().
func (e *Engine) StopSync() {
	atomic.StoreInt32(e.syncing, 0)
}

// IsSyncing reports whether a loop set is currently running.
func (e *Engine) IsSyncing() bool {
	return atomic.LoadInt32(e.syncing) == 1
}

// SetElectrumEndpoint dials endpoint and, on success, makes it the engine's
// configured chain indexer for every Clone (last-writer-wins).
func (e *Engine) SetElectrumEndpoint(endpoint string) error {
	client, err := chain.NewElectrumClient(chain.ElectrumConfig{Endpoint: endpoint})
	if err != nil {
		return fmt.Errorf("engine: set electrum endpoint: %w", err)
	}
	e.indexer.set(endpoint, client)
	return e.store.SetConfigCell("electrum_endpoint", endpoint)
}

// GetElectrumEndpoint returns the currently configured endpoint, or "" if
// none has been set.
func (e *Engine) GetElectrumEndpoint() string {
	endpoint, _ := e.indexer.get()
	return endpoint
}

// indexerOrErr returns the configured chain Indexer, or
// ErrElectrumEndpointNotSet if SetElectrumEndpoint has never succeeded.
func (e *Engine) indexerOrErr() (chain.Indexer, error) {
	endpoint, idx := e.indexer.get()
	if endpoint == "" || idx == nil {
		return nil, ErrElectrumEndpointNotSet
	}
	return idx, nil
}

// sharedKeyAsPrivate reconstructs the signing key a policy-scoped
// EventDeletion must be authenticated with: K_p's secret is the same
// secp256k1-scalar shape as an identity key (sharedkey.Generate derives it
// from crypto.GeneratePrivateKey), so any cosigner holding it can sign on
// the policy's behalf without a separate multi-party signature scheme.
func sharedKeyAsPrivate(key domain.SharedKey) (*crypto.PrivateKey, error) {
	priv, err := crypto.PrivateKeyFromBytes(key.Secret[:])
	if err != nil {
		return nil, fmt.Errorf("engine: reconstruct shared key: %w", err)
	}
	return priv, nil
}

// openWallet opens a policy-scoped Wallet through the engine's Factory.
func (e *Engine) openWallet(policy domain.Policy) (wallet.Wallet, error) {
	return e.wallets.Open(policy.Descriptor, policy.Network)
}

// publishAsync fire-and-forgets ev: used for the SHARED_KEY fan-out, where
// §4.5 says cosigners are notified without the caller blocking on each
// delivery. A failure is queued for the pending-event retry loop rather
// than surfaced, since local state never depended on this publish
// succeeding synchronously.
func (e *Engine) publishAsync(ev relay.SignedEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.sendWait)
		defer cancel()
		if err := e.transport.Publish(ctx, ev); err != nil {
			e.enqueuePending(ev)
		}
	}()
}

// publishWait publishes ev and blocks up to e.sendWait for the relay to
// accept it — the "5s send-wait" §4.5 specifies for an operation's
// record-of-truth event. Local state has already been committed by the
// caller before this runs (§5 ordering), so a failure here is surfaced but
// non-fatal: the event is queued for retry and converges via rebroadcast on
// the next relay connect.
func (e *Engine) publishWait(ev relay.SignedEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.sendWait)
	defer cancel()
	if err := e.transport.Publish(ctx, ev); err != nil {
		e.enqueuePending(ev)
		return fmt.Errorf("engine: publish %s: %w", ev.ID, err)
	}
	return nil
}

func (e *Engine) enqueuePending(ev relay.SignedEvent) {
	payload, err := relay.EncodeSignedEvent(ev)
	if err != nil {
		return
	}
	relays, _ := e.store.GetRelays()
	_ = e.store.SavePendingEvent(domain.PendingEvent{
		ID:        ev.ID,
		Kind:      int(ev.Kind),
		Payload:   payload,
		Relays:    relays,
		CreatedAt: e.now(),
	})
}

// SyncPolicies syncs the given policies' wallets against the configured
// chain indexer, or every saved policy when ids is empty — the chain-sync
// loop's unit of work (§4.6). Returns ErrElectrumEndpointNotSet if no
// indexer has been configured yet; callers should treat that as retryable,
// not fatal.
func (e *Engine) SyncPolicies(ctx context.Context, ids []domain.EventId) error {
	indexer, err := e.indexerOrErr()
	if err != nil {
		return err
	}
	var policies []domain.Policy
	if len(ids) == 0 {
		policies, err = e.store.GetPolicies()
		if err != nil {
			return err
		}
	} else {
		for _, id := range ids {
			p, err := e.store.GetPolicy(id)
			if err != nil {
				continue
			}
			policies = append(policies, p)
		}
	}
	for _, p := range policies {
		w, err := e.openWallet(p)
		if err != nil {
			continue
		}
		_ = w.Sync(ctx, indexer)
	}
	return nil
}

// TakeResyncFlags drains the set of policies flagged for priority resync by
// a recent COMPLETED_PROPOSAL.
func (e *Engine) TakeResyncFlags() ([]domain.EventId, error) {
	return e.store.TakeResyncFlags()
}

// RebroadcastAllEvents re-derives events from current Store state, the
// convergence mechanism §7 relies on after a publish failure: every stored
// policy whose K_p is held, and each of its open proposals, is re-encoded
// under this node's identity key and re-sent so a relay that missed it the
// first time catches up. Approvals, completed proposals, signers and shared
// signers are not republished.
func (e *Engine) RebroadcastAllEvents(ctx context.Context) error {
	policies, err := e.store.GetPolicies()
	if err != nil {
		return err
	}
	for _, p := range policies {
		key, err := e.store.GetSharedKey(p.ID)
		if err != nil {
			continue
		}
		ev, err := codec.EncodePolicy(e.identity, key.Secret, p.CreatedAt.Unix(), p)
		if err != nil {
			continue
		}
		_ = e.transport.Publish(ctx, ev)

		proposals, err := e.store.GetProposals(p.ID)
		if err != nil {
			continue
		}
		for _, pr := range proposals {
			ev, err := codec.EncodeProposal(e.identity, key.Secret, pr.CreatedAt.Unix(), pr)
			if err != nil {
				continue
			}
			_ = e.transport.Publish(ctx, ev)
		}
	}
	return nil
}
