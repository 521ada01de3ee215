// Package wallet defines the typed boundary to the descriptor/PSBT library:
// building PSBTs from descriptors, signing with secret keys, finalizing, and
// verifying proof-of-reserves. The coordination engine never inspects
// scripts or derives keys itself (see spec Non-goals); it only calls through
// the Wallet interface below. ParseDescriptor and StubWallet are a
// spec-sufficient default so this module runs standalone — a production
// deployment replaces StubWallet with a real bdk-equivalent implementation.
package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/btcsuite/btcutil/bech32"

	"coinstr/domain"
)

// Sats is an amount of satoshis.
type Sats uint64

// FeeRate is expressed in sat/vB.
type FeeRate float64

// Address is a chain address string, already validated for its network.
type Address string

// Txid is a transaction id, hex-encoded.
type Txid string

// RawTx is a serialized raw transaction.
type RawTx []byte

// Psbt is an opaque, base64-able PSBT blob. The engine only ever passes
// these between Wallet calls and the relay envelope; it never parses them.
type Psbt []byte

// Utxo is a single unspent output known to a policy's wallet.
type Utxo struct {
	Txid   Txid
	Vout   uint32
	Amount Sats
}

// TxRef references a confirmed or mempool transaction touching a policy's
// wallet.
type TxRef struct {
	Txid   Txid
	Height int64
}

// Balance summarises a policy's on-chain funds.
type Balance struct {
	Confirmed   Sats
	Unconfirmed Sats
}

// ErrInsufficientFunds is returned by BuildSpend when the policy's wallet
// cannot cover the requested amount plus fees.
var ErrInsufficientFunds = errors.New("wallet: insufficient funds")

// ChainIndexer is the minimal surface Wallet.Sync needs from a chain client;
// it mirrors (and is satisfied by) package chain's Indexer interface,
// declared again here to avoid a dependency cycle between wallet and chain.
type ChainIndexer interface {
	ListUnspent(ctx context.Context, addr Address) ([]Utxo, error)
	History(ctx context.Context, addr Address) ([]TxRef, error)
}

// Wallet is the descriptor/PSBT library's typed API, scoped to one Policy.
type Wallet interface {
	NextUnusedAddress(ctx context.Context) (Address, error)
	Balance(ctx context.Context) (Balance, error)
	BuildSpend(ctx context.Context, addr Address, amount Sats, feeRate FeeRate) (Psbt, error)
	BuildProofOfReserve(ctx context.Context, message string) (Psbt, error)
	SignPsbt(ctx context.Context, psbt Psbt, key [32]byte, internalKey bool) (Psbt, error)
	CombinePsbts(ctx context.Context, psbts []Psbt) (Psbt, error)
	FinalizeExtractTx(ctx context.Context, psbt Psbt) (RawTx, Txid, error)
	VerifyProofOfReserve(ctx context.Context, psbt Psbt, message string) error
	Sync(ctx context.Context, indexer ChainIndexer) error
}

// Factory builds a policy-scoped Wallet from its descriptor and network.
// The engine holds one Factory and opens a Wallet per Policy on demand.
type Factory interface {
	Open(descriptor string, network domain.Network) (Wallet, error)
}

// ParseDescriptor performs the shallow validation save_policy needs: reject
// malformed input and an unknown network. It does not check keys or
// addresses inside the descriptor against the network, does not build a
// spendable wallet and does not interpret the miniscript fragment
// (Non-goal: no script interpreter).
func ParseDescriptor(descriptor string, network domain.Network) error {
	d := strings.TrimSpace(descriptor)
	if d == "" {
		return errors.New("wallet: empty descriptor")
	}
	if !network.Valid() {
		return fmt.Errorf("wallet: unknown network %q", network)
	}
	opens := strings.Count(d, "(")
	closes := strings.Count(d, ")")
	if opens == 0 || opens != closes {
		return fmt.Errorf("wallet: unbalanced descriptor %q", d)
	}
	fn := d[:strings.IndexByte(d, '(')]
	switch fn {
	case "tr", "wsh", "sh", "wpkh", "pkh", "multi", "sortedmulti":
	default:
		return fmt.Errorf("wallet: unsupported descriptor function %q", fn)
	}
	return nil
}

// ExtractThreshold estimates the number of signatures a descriptor's script
// requires, for finalize's approval-count check. multi(...)/sortedmulti(...)
// descriptors encode an explicit M; anything else (tr() trees, single
// miniscript fragments) doesn't admit a cheap answer without a real script
// interpreter (Non-goal: no script interpreter), so this falls back to
// requiring every cosigner but one.
func ExtractThreshold(descriptor string, cosignerCount int) int {
	d := strings.TrimSpace(descriptor)
	for _, fn := range []string{"multi(", "sortedmulti("} {
		idx := strings.Index(d, fn)
		if idx == -1 {
			continue
		}
		rest := d[idx+len(fn):]
		comma := strings.IndexByte(rest, ',')
		if comma == -1 {
			continue
		}
		var m int
		if _, err := fmt.Sscanf(rest[:comma], "%d", &m); err == nil && m > 0 {
			return m
		}
	}
	if cosignerCount <= 1 {
		return cosignerCount
	}
	return cosignerCount - 1
}

// StubWallet is a deterministic, file-free Wallet used for development and
// tests. It fabricates addresses and PSBT blobs from the descriptor's hash
// rather than tracking a real UTXO set, but follows the real lifecycle
// (build -> sign -> combine -> finalize) closely enough to exercise the
// coordination engine end to end.
type StubWallet struct {
	mu         sync.Mutex
	descriptor string
	network    domain.Network
	addrIndex  uint32
	funds      Sats
}

// NewStubFactory returns a Factory producing StubWallets pre-funded with the
// given number of satoshis — enough for tests and local exploration to
// exercise spend/approve/finalize without a real indexer.
func NewStubFactory(funds Sats) Factory {
	return stubFactory{funds: funds}
}

type stubFactory struct{ funds Sats }

func (f stubFactory) Open(descriptor string, network domain.Network) (Wallet, error) {
	if err := ParseDescriptor(descriptor, network); err != nil {
		return nil, err
	}
	return &StubWallet{descriptor: descriptor, network: network, funds: f.funds}, nil
}

func (w *StubWallet) NextUnusedAddress(ctx context.Context) (Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addrIndex++
	return w.deriveAddress(w.addrIndex), nil
}

func (w *StubWallet) deriveAddress(index uint32) Address {
	h := sha256.New()
	h.Write([]byte(w.descriptor))
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	h.Write(idx[:])
	sum := h.Sum(nil)
	conv, err := bech32.ConvertBits(sum[:20], 8, 5, true)
	if err != nil {
		return Address(hex.EncodeToString(sum[:20]))
	}
	hrp := "bc"
	if w.network != domain.Mainnet {
		hrp = "tb"
	}
	encoded, err := bech32.Encode(hrp, conv)
	if err != nil {
		return Address(hex.EncodeToString(sum[:20]))
	}
	return Address(encoded)
}

func (w *StubWallet) Balance(ctx context.Context) (Balance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Balance{Confirmed: w.funds}, nil
}

func (w *StubWallet) BuildSpend(ctx context.Context, addr Address, amount Sats, feeRate FeeRate) (Psbt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fee := Sats(float64(250) * float64(feeRate))
	if amount+fee > w.funds {
		return nil, ErrInsufficientFunds
	}
	return encodeStubPsbt(stubPsbtBody{
		Descriptor: w.descriptor,
		Kind:       "spend",
		Address:    string(addr),
		Amount:     uint64(amount),
		Fee:        uint64(fee),
	}), nil
}

func (w *StubWallet) BuildProofOfReserve(ctx context.Context, message string) (Psbt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return encodeStubPsbt(stubPsbtBody{
		Descriptor: w.descriptor,
		Kind:       "proof",
		Message:    message,
		Amount:     uint64(w.funds),
	}), nil
}

func (w *StubWallet) SignPsbt(ctx context.Context, psbt Psbt, key [32]byte, internalKey bool) (Psbt, error) {
	body, err := decodeStubPsbt(psbt)
	if err != nil {
		return nil, err
	}
	body.Signers = append(body.Signers, hex.EncodeToString(key[:]))
	return encodeStubPsbt(body), nil
}

func (w *StubWallet) CombinePsbts(ctx context.Context, psbts []Psbt) (Psbt, error) {
	if len(psbts) == 0 {
		return nil, errors.New("wallet: no psbts to combine")
	}
	base, err := decodeStubPsbt(psbts[0])
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(base.Signers))
	for _, s := range base.Signers {
		seen[s] = true
	}
	for _, p := range psbts[1:] {
		other, err := decodeStubPsbt(p)
		if err != nil {
			return nil, err
		}
		for _, s := range other.Signers {
			if !seen[s] {
				seen[s] = true
				base.Signers = append(base.Signers, s)
			}
		}
	}
	return encodeStubPsbt(base), nil
}

func (w *StubWallet) FinalizeExtractTx(ctx context.Context, psbt Psbt) (RawTx, Txid, error) {
	body, err := decodeStubPsbt(psbt)
	if err != nil {
		return nil, "", err
	}
	if body.Kind != "spend" {
		return nil, "", errors.New("wallet: not a spending psbt")
	}
	if len(body.Signers) == 0 {
		return nil, "", errors.New("wallet: no signatures to finalize")
	}
	h := sha256.Sum256(psbt)
	txid := Txid(hex.EncodeToString(h[:]))
	return RawTx(psbt), txid, nil
}

func (w *StubWallet) VerifyProofOfReserve(ctx context.Context, psbt Psbt, message string) error {
	body, err := decodeStubPsbt(psbt)
	if err != nil {
		return err
	}
	if body.Kind != "proof" {
		return errors.New("wallet: not a proof-of-reserve psbt")
	}
	if body.Message != message {
		return errors.New("wallet: proof message mismatch")
	}
	if len(body.Signers) == 0 {
		return errors.New("wallet: proof not signed")
	}
	return nil
}

func (w *StubWallet) Sync(ctx context.Context, indexer ChainIndexer) error {
	return nil
}
