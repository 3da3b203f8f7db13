package bridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/contract"
)

type ERC20Bridge struct {
	vaultBridge
}

var _ Bridge = (*ERC20Bridge)(nil)

func erc20TransferOp(op string, args *Args, transfer *contract.TransferOp) error {
	if args.Amount == nil || args.Amount.Sign() <= 0 {
		return bridgeerr.New(bridgeerr.KindInvalidArgs, op, "amount must be positive")
	}
	transfer.Amount = args.Amount
	return nil
}

// RequiresAllowance reports whether the vault allowance is below the amount.
func (b *ERC20Bridge) RequiresAllowance(ctx context.Context, args *Args) (bool, error) {
	const op = "ERC20Bridge.RequiresAllowance"
	client, vault, err := b.approvalArgs(op, args)
	if err != nil {
		return false, err
	}
	return b.requiresAllowance(ctx, op, contract.NewERC20Contract(client, args.Token), args, vault)
}

func (b *ERC20Bridge) requiresAllowance(ctx context.Context, op string, erc20 *contract.ERC20Contract, args *Args, vault common.Address) (bool, error) {
	allowance, err := erc20.Allowance(ctx, args.Wallet.Address(), vault)
	if err != nil {
		return false, fail(op, err)
	}
	amount := args.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return allowance.Cmp(amount) < 0, nil
}

func (b *ERC20Bridge) RequiresApproval(ctx context.Context, args *Args) (bool, error) {
	return b.RequiresAllowance(ctx, args)
}

// Approve sets the vault allowance to the amount.
func (b *ERC20Bridge) Approve(ctx context.Context, args *Args) (*TxHandle, error) {
	const op = "ERC20Bridge.Approve"
	client, vault, err := b.approvalArgs(op, args)
	if err != nil {
		return nil, err
	}
	erc20 := contract.NewERC20Contract(client, args.Token)
	required, err := b.requiresAllowance(ctx, op, erc20, args, vault)
	if err != nil {
		return nil, err
	}
	if !required {
		return nil, bridgeerr.New(bridgeerr.KindNoApprovalRequired, op, "allowance covers the amount")
	}
	hash, err := erc20.Approve(ctx, args.Wallet, vault, args.Amount)
	if err != nil {
		return nil, fail(op, err)
	}
	return b.handle(hash, args.SrcChainID), nil
}

func (b *ERC20Bridge) Bridge(ctx context.Context, args *Args) (*TxHandle, error) {
	const op = "ERC20Bridge.Bridge"
	return b.send(ctx, op, args, func(call *vaultCall) error {
		required, err := b.requiresAllowance(ctx, op, contract.NewERC20Contract(call.client, args.Token), args, call.vault.Address())
		if err != nil {
			return err
		}
		if required {
			return bridgeerr.New(bridgeerr.KindApprovalRequired, op,
				fmt.Sprintf("vault %s allowance is below %s", call.vault.Address(), call.op.Amount))
		}
		return nil
	})
}
