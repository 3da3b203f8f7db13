package ethclient

import (
	"errors"
	"fmt"
)

var ErrUnknownChain = errors.New("no rpc client for chain")

// Clients holds one client per configured chain id.
type Clients map[uint64]Client

func (c Clients) Get(chainID uint64) (Client, error) {
	client, ok := c[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrUnknownChain)
	}
	return client, nil
}
