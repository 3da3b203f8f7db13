package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/contract/abi"
	"github.com/omni/tokenbridge-client/contract/bridgeabi"
	"github.com/omni/tokenbridge-client/entity"
	"github.com/omni/tokenbridge-client/ethclient"
)

// TransferOp is the sendToken argument. Amount is used by the ERC20 vault,
// TokenIDs and Amounts by the NFT vaults.
type TransferOp struct {
	DestChainID   uint64
	To            common.Address
	Token         common.Address
	Amount        *big.Int
	TokenIDs      []*big.Int
	Amounts       []*big.Int
	GasLimit      *big.Int
	ProcessingFee *big.Int
	RefundTo      common.Address
	Memo          string
}

//nolint:revive,stylecheck
type erc20TransferOp struct {
	DestChainId   *big.Int
	To            common.Address
	Token         common.Address
	Amount        *big.Int
	GasLimit      *big.Int
	ProcessingFee *big.Int
	RefundTo      common.Address
	Memo          string
}

//nolint:revive,stylecheck
type nftTransferOp struct {
	DestChainId   *big.Int
	To            common.Address
	Token         common.Address
	TokenIds      []*big.Int
	Amounts       []*big.Int
	GasLimit      *big.Int
	ProcessingFee *big.Int
	RefundTo      common.Address
	Memo          string
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

type VaultContract struct {
	*Contract
	nft bool
}

func NewERC20VaultContract(client ethclient.Client, addr common.Address) *VaultContract {
	return &VaultContract{NewContract(client, addr, bridgeabi.ERC20VaultABI), false}
}

func NewERC721VaultContract(client ethclient.Client, addr common.Address) *VaultContract {
	return &VaultContract{NewContract(client, addr, bridgeabi.ERC721VaultABI), true}
}

func NewERC1155VaultContract(client ethclient.Client, addr common.Address) *VaultContract {
	return &VaultContract{NewContract(client, addr, bridgeabi.ERC1155VaultABI), true}
}

// NewVaultContract is used when only the vault ABI is known up front.
func NewVaultContract(client ethclient.Client, addr common.Address, vaultABI abi.ABI, nft bool) *VaultContract {
	return &VaultContract{NewContract(client, addr, vaultABI), nft}
}

func (v *VaultContract) encodeOp(op *TransferOp) interface{} {
	destChainID := new(big.Int).SetUint64(op.DestChainID)
	if v.nft {
		amounts := op.Amounts
		if amounts == nil {
			amounts = []*big.Int{}
		}
		return nftTransferOp{
			DestChainId:   destChainID,
			To:            op.To,
			Token:         op.Token,
			TokenIds:      op.TokenIDs,
			Amounts:       amounts,
			GasLimit:      orZero(op.GasLimit),
			ProcessingFee: orZero(op.ProcessingFee),
			RefundTo:      op.RefundTo,
			Memo:          op.Memo,
		}
	}
	return erc20TransferOp{
		DestChainId:   destChainID,
		To:            op.To,
		Token:         op.Token,
		Amount:        orZero(op.Amount),
		GasLimit:      orZero(op.GasLimit),
		ProcessingFee: orZero(op.ProcessingFee),
		RefundTo:      op.RefundTo,
		Memo:          op.Memo,
	}
}

// SendToken attaches the processing fee as transaction value.
func (v *VaultContract) SendToken(ctx context.Context, sender Sender, op *TransferOp, gas uint64) (common.Hash, error) {
	return v.Transact(ctx, sender, TxOpts{Value: orZero(op.ProcessingFee), Gas: gas}, "sendToken", v.encodeOp(op))
}

func (v *VaultContract) EstimateSendToken(ctx context.Context, from common.Address, op *TransferOp) (uint64, error) {
	return v.EstimateGas(ctx, from, TxOpts{Value: orZero(op.ProcessingFee)}, "sendToken", v.encodeOp(op))
}

func (v *VaultContract) ReleaseToken(ctx context.Context, sender Sender, msg *entity.Message, proof []byte) (common.Hash, error) {
	return v.Transact(ctx, sender, TxOpts{}, "releaseToken", toABIMessage(msg), proof)
}

// CanonicalToBridged returns the zero address when the canonical token has
// no bridged counterpart on this vault's chain.
func (v *VaultContract) CanonicalToBridged(ctx context.Context, srcChainID uint64, token common.Address) (common.Address, error) {
	res, err := v.Call(ctx, "canonicalToBridged", new(big.Int).SetUint64(srcChainID), token)
	if err != nil {
		return common.Address{}, fmt.Errorf("cannot resolve bridged token: %w", err)
	}
	addr, _ := res[0].(common.Address)
	return addr, nil
}
