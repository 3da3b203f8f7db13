package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/contract/abi"
	"github.com/omni/tokenbridge-client/entity"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/wallet"
)

// Sender submits transactions on behalf of the connected account.
type Sender interface {
	Address() common.Address
	SendTransaction(ctx context.Context, tx *wallet.TxRequest) (common.Hash, error)
}

type TxOpts struct {
	Value *big.Int
	Gas   uint64
}

type Contract struct {
	address common.Address
	client  ethclient.Client
	abi     abi.ABI
}

func NewContract(client ethclient.Client, addr common.Address, contractABI abi.ABI) *Contract {
	return &Contract{addr, client, contractABI}
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) ChainID() uint64 {
	return c.client.ChainID()
}

func (c *Contract) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot encode abi calldata: %w", err)
	}
	return data, nil
}

func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	res, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.address,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot call %s(...): %w", method, err)
	}
	values, err := c.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s(...) result: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty %s(...) result", method)
	}
	return values, nil
}

func (c *Contract) EstimateGas(ctx context.Context, from common.Address, opts TxOpts, method string, args ...interface{}) (uint64, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return 0, err
	}
	gas, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &c.address,
		Value: opts.Value,
		Data:  data,
	})
	if err != nil {
		return 0, fmt.Errorf("cannot estimate gas for %s(...): %w", method, err)
	}
	return gas, nil
}

func (c *Contract) Transact(ctx context.Context, sender Sender, opts TxOpts, method string, args ...interface{}) (common.Hash, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := sender.SendTransaction(ctx, &wallet.TxRequest{
		From:  sender.Address(),
		To:    &c.address,
		Value: opts.Value,
		Data:  data,
		Gas:   opts.Gas,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("cannot send %s(...): %w", method, err)
	}
	return hash, nil
}

func (c *Contract) ParseLog(log *entity.Log) (string, map[string]interface{}, error) {
	return c.abi.ParseLog(log)
}
