package token

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/config"
)

// IsDeployedCrossChain reports whether the destination vault already holds a
// bridged counterpart of the canonical token. It selects the gas policy for
// the bridging transaction.
func (d *Detector) IsDeployedCrossChain(ctx context.Context, kind Kind, canonical common.Address, srcChainID uint64, dest *config.ChainConfig) (bool, error) {
	const op = "token.IsDeployedCrossChain"
	if kind == KindETH {
		return true, nil
	}
	client, err := d.clients.Get(dest.ChainID)
	if err != nil {
		return false, bridgeerr.Wrap(bridgeerr.KindUnsupportedChain, op, err)
	}
	vault := NewVault(client, dest, kind)
	bridged, err := vault.CanonicalToBridged(ctx, srcChainID, canonical)
	if err != nil {
		return false, bridgeerr.Classify(op, err)
	}
	return bridged != (common.Address{}), nil
}
