// Package redis keeps the bridge transaction history in redis. Every owner
// has a hash under transactions:<owner> with one field per transaction.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redis/v8"

	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/entity"
)

const (
	ownerKeyPrefix = "transactions:"
	indexKeyPrefix = "transaction-owner:"
)

type bridgeTransactionsRepo struct {
	client redis.UniversalClient
}

func NewClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewBridgeTransactionsRepo(client redis.UniversalClient) entity.BridgeTransactionsRepo {
	return &bridgeTransactionsRepo{client: client}
}

func ownerKey(owner common.Address) string {
	return ownerKeyPrefix + strings.ToLower(owner.Hex())
}

func indexKey(srcChainID uint64, txHash common.Hash) string {
	return indexKeyPrefix + txField(srcChainID, txHash)
}

func txField(srcChainID uint64, txHash common.Hash) string {
	return strconv.FormatUint(srcChainID, 10) + ":" + txHash.Hex()
}

func (r *bridgeTransactionsRepo) Ensure(ctx context.Context, txs ...*entity.BridgeTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tx := range txs {
			blob, err := json.Marshal(tx)
			if err != nil {
				return fmt.Errorf("can't encode bridge transaction: %w", err)
			}
			pipe.HSet(ctx, ownerKey(tx.Owner), txField(tx.SrcChainID, tx.TxHash), blob)
			pipe.Set(ctx, indexKey(tx.SrcChainID, tx.TxHash), tx.Owner.Hex(), 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't store bridge transactions: %w", err)
	}
	return nil
}

// GetByOwner returns the history of owner ordered by submission time.
func (r *bridgeTransactionsRepo) GetByOwner(ctx context.Context, owner common.Address) ([]*entity.BridgeTransaction, error) {
	fields, err := r.client.HGetAll(ctx, ownerKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get bridge transactions: %w", err)
	}
	txs := make([]*entity.BridgeTransaction, 0, len(fields))
	for field, blob := range fields {
		tx := new(entity.BridgeTransaction)
		if err = json.Unmarshal([]byte(blob), tx); err != nil {
			return nil, fmt.Errorf("can't decode bridge transaction %s: %w", field, err)
		}
		txs = append(txs, tx)
	}
	sortBySubmission(txs)
	return txs, nil
}

func (r *bridgeTransactionsRepo) GetByTxHash(ctx context.Context, srcChainID uint64, txHash common.Hash) (*entity.BridgeTransaction, error) {
	owner, err := r.client.Get(ctx, indexKey(srcChainID, txHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("can't get bridge transaction owner: %w", err)
	}
	blob, err := r.client.HGet(ctx, ownerKey(common.HexToAddress(owner)), txField(srcChainID, txHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("can't get bridge transaction: %w", err)
	}
	tx := new(entity.BridgeTransaction)
	if err = json.Unmarshal([]byte(blob), tx); err != nil {
		return nil, fmt.Errorf("can't decode bridge transaction: %w", err)
	}
	return tx, nil
}

func (r *bridgeTransactionsRepo) Delete(ctx context.Context, srcChainID uint64, txHash common.Hash) error {
	owner, err := r.client.Get(ctx, indexKey(srcChainID, txHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("can't get bridge transaction owner: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, ownerKey(common.HexToAddress(owner)), txField(srcChainID, txHash))
		pipe.Del(ctx, indexKey(srcChainID, txHash))
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't delete bridge transaction: %w", err)
	}
	return nil
}

func sortBySubmission(txs []*entity.BridgeTransaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].SubmittedAt.Equal(txs[j].SubmittedAt) {
			return txs[i].SubmittedAt.Before(txs[j].SubmittedAt)
		}
		return txs[i].TxHash.Hex() < txs[j].TxHash.Hex()
	})
}
