package bridge

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/contract"
	"github.com/omni/tokenbridge-client/ethclient"
)

type ERC1155Bridge struct {
	vaultBridge
}

var _ Bridge = (*ERC1155Bridge)(nil)

// erc1155TransferOp bridges Amount units of the first token id.
func erc1155TransferOp(op string, args *Args, transfer *contract.TransferOp) error {
	tokenID, err := firstTokenID(op, args)
	if err != nil {
		return err
	}
	if args.Amount == nil || args.Amount.Sign() <= 0 {
		return bridgeerr.New(bridgeerr.KindInvalidArgs, op, "amount must be positive")
	}
	transfer.TokenIDs = []*big.Int{tokenID}
	transfer.Amounts = []*big.Int{args.Amount}
	return nil
}

func (b *ERC1155Bridge) IsApprovedForAll(ctx context.Context, args *Args) (bool, error) {
	const op = "ERC1155Bridge.IsApprovedForAll"
	client, vault, err := b.approvalArgs(op, args)
	if err != nil {
		return false, err
	}
	return b.isApproved(ctx, op, client, args, vault)
}

func (b *ERC1155Bridge) isApproved(ctx context.Context, op string, client ethclient.Client, args *Args, vault common.Address) (bool, error) {
	approved, err := contract.NewERC1155Contract(client, args.Token).IsApprovedForAll(ctx, args.Wallet.Address(), vault)
	if err != nil {
		return false, fail(op, err)
	}
	return approved, nil
}

func (b *ERC1155Bridge) RequiresApproval(ctx context.Context, args *Args) (bool, error) {
	approved, err := b.IsApprovedForAll(ctx, args)
	return !approved, err
}

// Approve makes the vault an operator for all of the owner's tokens.
func (b *ERC1155Bridge) Approve(ctx context.Context, args *Args) (*TxHandle, error) {
	const op = "ERC1155Bridge.Approve"
	client, vault, err := b.approvalArgs(op, args)
	if err != nil {
		return nil, err
	}
	approved, err := b.isApproved(ctx, op, client, args, vault)
	if err != nil {
		return nil, err
	}
	if approved {
		return nil, bridgeerr.New(bridgeerr.KindNoApprovalRequired, op, "vault is already approved")
	}
	hash, err := contract.NewERC1155Contract(client, args.Token).SetApprovalForAll(ctx, args.Wallet, vault, true)
	if err != nil {
		return nil, fail(op, err)
	}
	return b.handle(hash, args.SrcChainID), nil
}

func (b *ERC1155Bridge) Bridge(ctx context.Context, args *Args) (*TxHandle, error) {
	const op = "ERC1155Bridge.Bridge"
	return b.send(ctx, op, args, func(call *vaultCall) error {
		approved, err := b.isApproved(ctx, op, call.client, args, call.vault.Address())
		if err != nil {
			return err
		}
		if !approved {
			return bridgeerr.New(bridgeerr.KindNotApproved, op, "vault is not an approved operator")
		}
		return nil
	})
}
