package bridge

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/contract"
	"github.com/omni/tokenbridge-client/ethclient"
)

type ERC721Bridge struct {
	vaultBridge
}

var _ Bridge = (*ERC721Bridge)(nil)

// erc721TransferOp bridges the first token id. The vault expects a zero
// amount for every ERC721 id.
func erc721TransferOp(op string, args *Args, transfer *contract.TransferOp) error {
	tokenID, err := firstTokenID(op, args)
	if err != nil {
		return err
	}
	transfer.TokenIDs = []*big.Int{tokenID}
	transfer.Amounts = []*big.Int{new(big.Int)}
	return nil
}

// IsApprovedForAll reports whether the vault may move the first token id,
// either as an operator of the owner or as the token's approved address.
func (b *ERC721Bridge) IsApprovedForAll(ctx context.Context, args *Args) (bool, error) {
	const op = "ERC721Bridge.IsApprovedForAll"
	client, vault, err := b.approvalArgs(op, args)
	if err != nil {
		return false, err
	}
	return b.isApproved(ctx, op, client, args, vault)
}

func (b *ERC721Bridge) isApproved(ctx context.Context, op string, client ethclient.Client, args *Args, vault common.Address) (bool, error) {
	tokenID, err := firstTokenID(op, args)
	if err != nil {
		return false, err
	}
	nft := contract.NewERC721Contract(client, args.Token)
	approved, err := nft.IsApprovedForAll(ctx, args.Wallet.Address(), vault)
	if err != nil {
		return false, fail(op, err)
	}
	if approved {
		return true, nil
	}
	operator, err := nft.GetApproved(ctx, tokenID)
	if err != nil {
		return false, fail(op, err)
	}
	return operator == vault, nil
}

func (b *ERC721Bridge) RequiresApproval(ctx context.Context, args *Args) (bool, error) {
	approved, err := b.IsApprovedForAll(ctx, args)
	return !approved, err
}

// Approve approves the vault for the first token id.
func (b *ERC721Bridge) Approve(ctx context.Context, args *Args) (*TxHandle, error) {
	const op = "ERC721Bridge.Approve"
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
	hash, err := contract.NewERC721Contract(client, args.Token).Approve(ctx, args.Wallet, vault, args.TokenIDs[0])
	if err != nil {
		return nil, fail(op, err)
	}
	return b.handle(hash, args.SrcChainID), nil
}

func (b *ERC721Bridge) Bridge(ctx context.Context, args *Args) (*TxHandle, error) {
	const op = "ERC721Bridge.Bridge"
	return b.send(ctx, op, args, func(call *vaultCall) error {
		approved, err := b.isApproved(ctx, op, call.client, args, call.vault.Address())
		if err != nil {
			return err
		}
		if !approved {
			return bridgeerr.New(bridgeerr.KindNotApproved, op, "vault is not approved for the token")
		}
		return nil
	})
}
