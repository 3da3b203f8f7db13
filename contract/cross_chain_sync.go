package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/contract/bridgeabi"
	"github.com/omni/tokenbridge-client/ethclient"
)

type CrossChainSyncContract struct {
	*Contract
}

func NewCrossChainSyncContract(client ethclient.Client, addr common.Address) *CrossChainSyncContract {
	return &CrossChainSyncContract{NewContract(client, addr, bridgeabi.CrossChainSyncABI)}
}

// GetCrossChainBlockHash with number 0 returns the latest synced header.
func (c *CrossChainSyncContract) GetCrossChainBlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	res, err := c.Call(ctx, "getCrossChainBlockHash", number)
	if err != nil {
		return common.Hash{}, fmt.Errorf("cannot obtain synced block hash: %w", err)
	}
	hash, ok := res[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("unexpected block hash type %T", res[0])
	}
	return hash, nil
}
