package bridge

import (
	"math/big"

	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/token"
)

// GasPolicy maps a transfer shape to the gas limit declared in the bridged
// message. It never consults the network.
type GasPolicy struct {
	cfg *config.GasConfig
}

func NewGasPolicy(cfg *config.GasConfig) *GasPolicy {
	return &GasPolicy{cfg: cfg}
}

// GasLimit returns the message gas limit for a transfer of the given kind.
// Zero lets only the owner process the message on the destination chain.
func (p *GasPolicy) GasLimit(kind token.Kind, deployed, feePresent bool) uint64 {
	if kind != token.KindETH && !deployed {
		switch kind {
		case token.KindERC721:
			return p.cfg.ERC721NotDeployedGasLimit
		case token.KindERC1155:
			return p.cfg.ERC1155NotDeployedGasLimit
		default:
			return p.cfg.ERC20NotDeployedGasLimit
		}
	}
	if feePresent {
		return p.cfg.NoOwnerGasLimit
	}
	return 0
}

// ClaimThreshold is the message gas limit above which a claim is submitted
// with an explicit gas limit instead of the wallet estimate.
func (p *GasPolicy) ClaimThreshold(kind token.Kind) uint64 {
	switch kind {
	case token.KindERC20:
		return p.cfg.ERC20ClaimThreshold
	case token.KindERC721:
		return p.cfg.ERC721ClaimThreshold
	case token.KindERC1155:
		return p.cfg.ERC1155ClaimThreshold
	default:
		return p.cfg.ETHClaimThreshold
	}
}

// ClaimGas returns the explicit claim gas for msgGasLimit, or 0 to defer to
// the wallet estimate.
func (p *GasPolicy) ClaimGas(kind token.Kind, msgGasLimit *big.Int) uint64 {
	if msgGasLimit == nil || !msgGasLimit.IsUint64() {
		return 0
	}
	if limit := msgGasLimit.Uint64(); limit > p.ClaimThreshold(kind) {
		return limit
	}
	return 0
}

// feeGasLimit is the relayer gas budget a recommended processing fee has to
// cover. NFT kinds share the ERC20 budget.
func (p *GasPolicy) feeGasLimit(kind token.Kind, deployed bool) uint64 {
	switch {
	case kind == token.KindETH:
		return p.cfg.FeeETHGasLimit
	case deployed:
		return p.cfg.FeeDeployedGasLimit
	default:
		return p.cfg.FeeNotDeployedGasLimit
	}
}

// feeMultiplier pads low gas prices with a larger multiplier.
func feeMultiplier(gasPrice *big.Int) int64 {
	switch {
	case gasPrice.Cmp(big.NewInt(50_000_000)) <= 0:
		return 4
	case gasPrice.Cmp(big.NewInt(100_000_000)) <= 0:
		return 3
	default:
		return 2
	}
}

// ProcessingFee returns gasLimit * gasPrice * multiplier.
func (p *GasPolicy) ProcessingFee(kind token.Kind, deployed bool, gasPrice *big.Int) *big.Int {
	fee := new(big.Int).SetUint64(p.feeGasLimit(kind, deployed))
	fee.Mul(fee, gasPrice)
	return fee.Mul(fee, big.NewInt(feeMultiplier(gasPrice)))
}
