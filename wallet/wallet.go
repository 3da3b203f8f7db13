package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type TxRequest struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
	Gas   uint64
}

// Event describes the wallet state after an account or chain change.
type Event struct {
	Account   common.Address
	ChainID   uint64
	Connected bool
}

// Wallet is the signer collaborator. It never exposes private keys; signing
// happens on the wallet side of SendTransaction.
type Wallet interface {
	Address() common.Address
	ChainID() uint64
	SendTransaction(ctx context.Context, tx *TxRequest) (common.Hash, error)
	// Subscribe registers fn for change events and returns its unsubscribe
	// function.
	Subscribe(fn func(Event)) func()
}
