package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/db"
	"github.com/omni/tokenbridge-client/entity"
)

var bridgeTransactionColumns = []string{
	"owner", "tx_hash", "msg_hash", "src_chain_id", "dest_chain_id", "token_kind",
	"tx_status", "status", "message", "submitted_at", "updated_at",
}

type bridgeTransactionsRepo basePostgresRepo

func NewBridgeTransactionsRepo(table string, db *db.DB) entity.BridgeTransactionsRepo {
	return (*bridgeTransactionsRepo)(newBasePostgresRepo(table, db))
}

func (r *bridgeTransactionsRepo) Ensure(ctx context.Context, txs ...*entity.BridgeTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	q := sq.Insert(r.table).Columns(bridgeTransactionColumns...)
	for _, tx := range txs {
		q = q.Values(tx.Owner, tx.TxHash, tx.MsgHash, tx.SrcChainID, tx.DestChainID, tx.TokenKind,
			tx.TxStatus, tx.Status, tx.Message, tx.SubmittedAt, tx.UpdatedAt)
	}
	query, args, err := q.
		Suffix("ON CONFLICT (src_chain_id, tx_hash) DO UPDATE SET " +
			"msg_hash = EXCLUDED.msg_hash, dest_chain_id = EXCLUDED.dest_chain_id, " +
			"tx_status = EXCLUDED.tx_status, status = EXCLUDED.status, " +
			"message = EXCLUDED.message, updated_at = EXCLUDED.updated_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("can't insert bridge transactions: %w", err)
	}
	return nil
}

func (r *bridgeTransactionsRepo) GetByOwner(ctx context.Context, owner common.Address) ([]*entity.BridgeTransaction, error) {
	query, args, err := sq.Select(bridgeTransactionColumns...).
		From(r.table).
		Where(sq.Eq{"owner": owner}).
		OrderBy("submitted_at", "tx_hash").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	txs := make([]*entity.BridgeTransaction, 0, 8)
	err = r.db.SelectContext(ctx, &txs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get bridge transactions: %w", err)
	}
	return txs, nil
}

// GetByTxHash returns nil when the transaction is unknown.
func (r *bridgeTransactionsRepo) GetByTxHash(ctx context.Context, srcChainID uint64, txHash common.Hash) (*entity.BridgeTransaction, error) {
	query, args, err := sq.Select(bridgeTransactionColumns...).
		From(r.table).
		Where(sq.Eq{"src_chain_id": srcChainID, "tx_hash": txHash}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	tx := new(entity.BridgeTransaction)
	err = r.db.GetContext(ctx, tx, query, args...)
	if err != nil {
		if err = db.IgnoreErrNotFound(err); err != nil {
			return nil, fmt.Errorf("can't get bridge transaction: %w", err)
		}
		return nil, nil
	}
	return tx, nil
}

func (r *bridgeTransactionsRepo) Delete(ctx context.Context, srcChainID uint64, txHash common.Hash) error {
	query, args, err := sq.Delete(r.table).
		Where(sq.Eq{"src_chain_id": srcChainID, "tx_hash": txHash}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("can't delete bridge transaction: %w", err)
	}
	return nil
}
