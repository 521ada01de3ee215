// Package chain defines the typed boundary to the chain indexer: querying
// UTXOs/transactions for a descriptor's addresses and broadcasting raw
// transactions. The engine never speaks to a block explorer or full node
// directly — only through the Indexer interface.
package chain

import (
	"context"

	"coinstr/wallet"
)

// Indexer is the chain indexer client's typed API.
type Indexer interface {
	// SubscribeAddress registers addr for change notifications. Electrum's
	// subscription model; implementations that poll instead of push may
	// treat this as a no-op.
	SubscribeAddress(ctx context.Context, addr wallet.Address) error
	ListUnspent(ctx context.Context, addr wallet.Address) ([]wallet.Utxo, error)
	History(ctx context.Context, addr wallet.Address) ([]wallet.TxRef, error)
	Broadcast(ctx context.Context, raw wallet.RawTx) (wallet.Txid, error)
}
