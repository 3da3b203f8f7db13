package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/contract/bridgeabi"
	"github.com/omni/tokenbridge-client/ethclient"
)

type ERC20Contract struct {
	*Contract
}

func NewERC20Contract(client ethclient.Client, addr common.Address) *ERC20Contract {
	return &ERC20Contract{NewContract(client, addr, bridgeabi.ERC20ABI)}
}

func (c *ERC20Contract) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	res, err := c.Call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("cannot obtain balance: %w", err)
	}
	return toBig(res[0])
}

func (c *ERC20Contract) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	res, err := c.Call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("cannot obtain allowance: %w", err)
	}
	return toBig(res[0])
}

func (c *ERC20Contract) Approve(ctx context.Context, sender Sender, spender common.Address, amount *big.Int) (common.Hash, error) {
	return c.Transact(ctx, sender, TxOpts{}, "approve", spender, amount)
}

type ERC721Contract struct {
	*Contract
}

func NewERC721Contract(client ethclient.Client, addr common.Address) *ERC721Contract {
	return &ERC721Contract{NewContract(client, addr, bridgeabi.ERC721ABI)}
}

func (c *ERC721Contract) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	res, err := c.Call(ctx, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	addr, _ := res[0].(common.Address)
	return addr, nil
}

func (c *ERC721Contract) GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	res, err := c.Call(ctx, "getApproved", tokenID)
	if err != nil {
		return common.Address{}, fmt.Errorf("cannot obtain approved address: %w", err)
	}
	addr, _ := res[0].(common.Address)
	return addr, nil
}

func (c *ERC721Contract) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	return isApprovedForAll(ctx, c.Contract, owner, operator)
}

func (c *ERC721Contract) Approve(ctx context.Context, sender Sender, to common.Address, tokenID *big.Int) (common.Hash, error) {
	return c.Transact(ctx, sender, TxOpts{}, "approve", to, tokenID)
}

type ERC1155Contract struct {
	*Contract
}

func NewERC1155Contract(client ethclient.Client, addr common.Address) *ERC1155Contract {
	return &ERC1155Contract{NewContract(client, addr, bridgeabi.ERC1155ABI)}
}

func (c *ERC1155Contract) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	return isApprovedForAll(ctx, c.Contract, owner, operator)
}

func (c *ERC1155Contract) SetApprovalForAll(ctx context.Context, sender Sender, operator common.Address, approved bool) (common.Hash, error) {
	return c.Transact(ctx, sender, TxOpts{}, "setApprovalForAll", operator, approved)
}

func isApprovedForAll(ctx context.Context, c *Contract, owner, operator common.Address) (bool, error) {
	res, err := c.Call(ctx, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	approved, _ := res[0].(bool)
	return approved, nil
}

func toBig(v interface{}) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected numeric type %T", v)
	}
	return n, nil
}
