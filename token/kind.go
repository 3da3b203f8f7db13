package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/contract"
	"github.com/omni/tokenbridge-client/ethclient"
)

type Kind string

const (
	KindETH     Kind = "ETH"
	KindERC20   Kind = "ERC20"
	KindERC721  Kind = "ERC721"
	KindERC1155 Kind = "ERC1155"
)

var Kinds = []Kind{KindETH, KindERC20, KindERC721, KindERC1155}

func ParseKind(s string) (Kind, error) {
	for _, kind := range Kinds {
		if string(kind) == s {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown token kind %q", s)
}

func (k Kind) IsNFT() bool {
	return k == KindERC721 || k == KindERC1155
}

// VaultAddress returns the chain's vault for the token kind. Native ether is
// escrowed by the bridge itself.
func VaultAddress(chain *config.ChainConfig, kind Kind) common.Address {
	switch kind {
	case KindERC20:
		return chain.ERC20VaultAddress
	case KindERC721:
		return chain.ERC721VaultAddress
	case KindERC1155:
		return chain.ERC1155VaultAddress
	default:
		return chain.BridgeAddress
	}
}

// NewVault binds the chain's vault for an ERC token kind.
func NewVault(client ethclient.Client, chain *config.ChainConfig, kind Kind) *contract.VaultContract {
	addr := VaultAddress(chain, kind)
	switch kind {
	case KindERC721:
		return contract.NewERC721VaultContract(client, addr)
	case KindERC1155:
		return contract.NewERC1155VaultContract(client, addr)
	default:
		return contract.NewERC20VaultContract(client, addr)
	}
}
