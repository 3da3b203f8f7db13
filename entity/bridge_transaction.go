package entity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type TxStatus string

const (
	TxStatusPending  TxStatus = "pending"
	TxStatusMined    TxStatus = "mined"
	TxStatusReverted TxStatus = "reverted"
	// TxStatusTimedOut marks a transaction that got no receipt within the
	// pending timeout. It is not polled again.
	TxStatusTimedOut TxStatus = "timeout"
)

// BridgeTransaction is a source chain transaction submitted by the user,
// together with the message it emitted once mined.
type BridgeTransaction struct {
	Owner       common.Address `db:"owner" json:"owner"`
	TxHash      common.Hash    `db:"tx_hash" json:"txHash"`
	MsgHash     *common.Hash   `db:"msg_hash" json:"msgHash,omitempty"`
	SrcChainID  uint64         `db:"src_chain_id" json:"srcChainId"`
	DestChainID uint64         `db:"dest_chain_id" json:"destChainId"`
	TokenKind   string         `db:"token_kind" json:"tokenKind"`
	TxStatus    TxStatus       `db:"tx_status" json:"txStatus"`
	Status      MessageStatus  `db:"status" json:"status"`
	Message     *Message       `db:"message" json:"message,omitempty"`
	SubmittedAt time.Time      `db:"submitted_at" json:"submittedAt"`
	UpdatedAt   *time.Time     `db:"updated_at" json:"updatedAt,omitempty"`
}

// Key identifies a transaction across chains.
type Key struct {
	ChainID uint64
	TxHash  common.Hash
}

func (t *BridgeTransaction) Key() Key {
	return Key{ChainID: t.SrcChainID, TxHash: t.TxHash}
}

type BridgeTransactionsRepo interface {
	Ensure(ctx context.Context, txs ...*BridgeTransaction) error
	GetByOwner(ctx context.Context, owner common.Address) ([]*BridgeTransaction, error)
	GetByTxHash(ctx context.Context, srcChainID uint64, txHash common.Hash) (*BridgeTransaction, error)
	Delete(ctx context.Context, srcChainID uint64, txHash common.Hash) error
}
