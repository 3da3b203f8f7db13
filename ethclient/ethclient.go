package ethclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

var ErrIncompatibleChainID = errors.New("rpc url returned incompatible chainID")

// Client is the subset of chain RPC used by the bridge client. Every call is
// bounded by the configured timeout and the per-chain rate limit.
type Client interface {
	ChainID() uint64
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	GetProof(ctx context.Context, account common.Address, keys []common.Hash, blockHash common.Hash) (*AccountProof, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

type rpcClient struct {
	chainID   uint64
	label     string
	url       string
	timeout   time.Duration
	limiter   *rate.Limiter
	rawClient *rpc.Client
	client    *ethclient.Client
}

func NewClient(url string, timeout time.Duration, rps float64, chainID uint64) (Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rawClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("can't dial JSON rpc url: %w", err)
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	client := &rpcClient{
		chainID:   chainID,
		label:     strconv.FormatUint(chainID, 10),
		url:       url,
		timeout:   timeout,
		limiter:   rate.NewLimiter(limit, 1),
		rawClient: rawClient,
		client:    ethclient.NewClient(rawClient),
	}
	rpcChainID, err := client.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get chainID: %w", err)
	}
	if !rpcChainID.IsUint64() || rpcChainID.Uint64() != chainID {
		return nil, fmt.Errorf("received chainID %s != expected %d: %w", rpcChainID, chainID, ErrIncompatibleChainID)
	}
	return client, nil
}

func (c *rpcClient) ChainID() uint64 {
	return c.chainID
}

// prepare waits for the rate limiter and bounds ctx with the call timeout.
func (c *rpcClient) prepare(ctx context.Context) (context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	if err := c.limiter.Wait(ctx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}
	return ctx, cancel, nil
}

func (c *rpcClient) BlockNumber(ctx context.Context) (uint64, error) {
	defer ObserveDuration(c.label, c.url, "eth_blockNumber")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err := c.client.BlockNumber(ctx)
	ObserveError(c.label, c.url, "eth_blockNumber", err)
	return n, err
}

func (c *rpcClient) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	defer ObserveDuration(c.label, c.url, "eth_getBlockByHash")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	header, err := c.client.HeaderByHash(ctx, hash)
	ObserveError(c.label, c.url, "eth_getBlockByHash", err)
	return header, err
}

// GetProof requests eth_getProof pinned to a block hash, which the typed
// go-ethereum client does not expose.
func (c *rpcClient) GetProof(ctx context.Context, account common.Address, keys []common.Hash, blockHash common.Hash) (*AccountProof, error) {
	defer ObserveDuration(c.label, c.url, "eth_getProof")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var res AccountProof
	err = c.rawClient.CallContext(ctx, &res, "eth_getProof", account, keys, blockHash)
	ObserveError(c.label, c.url, "eth_getProof", err)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *rpcClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	defer ObserveDuration(c.label, c.url, "eth_call")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	res, err := c.client.CallContract(ctx, msg, nil)
	ObserveError(c.label, c.url, "eth_call", err)
	return res, err
}

func (c *rpcClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	defer ObserveDuration(c.label, c.url, "eth_estimateGas")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	gas, err := c.client.EstimateGas(ctx, msg)
	ObserveError(c.label, c.url, "eth_estimateGas", err)
	return gas, err
}

// TransactionReceipt returns ethereum.NotFound while the transaction is
// not mined.
func (c *rpcClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	defer ObserveDuration(c.label, c.url, "eth_getTransactionReceipt")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		ObserveError(c.label, c.url, "eth_getTransactionReceipt", nil)
		return nil, err
	}
	ObserveError(c.label, c.url, "eth_getTransactionReceipt", err)
	return receipt, err
}

func (c *rpcClient) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	defer ObserveDuration(c.label, c.url, "eth_getCode")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	code, err := c.client.CodeAt(ctx, addr, nil)
	ObserveError(c.label, c.url, "eth_getCode", err)
	return code, err
}

func (c *rpcClient) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	defer ObserveDuration(c.label, c.url, "eth_getBalance")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	balance, err := c.client.BalanceAt(ctx, addr, nil)
	ObserveError(c.label, c.url, "eth_getBalance", err)
	return balance, err
}

func (c *rpcClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	defer ObserveDuration(c.label, c.url, "eth_gasPrice")()
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	price, err := c.client.SuggestGasPrice(ctx)
	ObserveError(c.label, c.url, "eth_gasPrice", err)
	return price, err
}
