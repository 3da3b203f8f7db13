// Package ethclienttest provides an in-memory ethclient.Client for tests.
package ethclienttest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/omni/tokenbridge-client/ethclient"
)

type CallHandler func(args []interface{}) ([]interface{}, error)

type callKey struct {
	to       common.Address
	selector [4]byte
}

type callHandler struct {
	method abi.Method
	fn     CallHandler
}

// Client answers calls from registered handlers. Unregistered calls revert.
type Client struct {
	mu          sync.Mutex
	chainID     uint64
	blockNumber uint64
	gasPrice    *big.Int
	headers     map[common.Hash]*types.Header
	proofs      map[common.Hash]*ethclient.AccountProof
	receipts    map[common.Hash]*types.Receipt
	code        map[common.Address][]byte
	balances    map[common.Address]*big.Int
	handlers    map[callKey]callHandler
	calls       map[string]int

	EstimateGasFn func(msg ethereum.CallMsg) (uint64, error)
	// Err is returned by every call while set.
	Err error
}

var _ ethclient.Client = (*Client)(nil)

func NewClient(chainID uint64) *Client {
	return &Client{
		chainID:  chainID,
		headers:  make(map[common.Hash]*types.Header),
		proofs:   make(map[common.Hash]*ethclient.AccountProof),
		receipts: make(map[common.Hash]*types.Receipt),
		code:     make(map[common.Address][]byte),
		balances: make(map[common.Address]*big.Int),
		handlers: make(map[callKey]callHandler),
		calls:    make(map[string]int),
	}
}

func (c *Client) Handle(to common.Address, contractABI abi.ABI, method string, fn CallHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := contractABI.Methods[method]
	if !ok {
		panic("unknown method " + method)
	}
	var selector [4]byte
	copy(selector[:], m.ID)
	c.handlers[callKey{to, selector}] = callHandler{m, fn}
}

// Returns is a CallHandler answering with fixed values.
func Returns(values ...interface{}) CallHandler {
	return func([]interface{}) ([]interface{}, error) {
		return values, nil
	}
}

// Reverts is a CallHandler failing with a revert error.
func Reverts(err error) CallHandler {
	return func([]interface{}) ([]interface{}, error) {
		return nil, err
	}
}

func (c *Client) SetHeader(h *types.Header) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := h.Hash()
	c.headers[hash] = h
	return hash
}

func (c *Client) SetProof(blockHash common.Hash, p *ethclient.AccountProof) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proofs[blockHash] = p
}

func (c *Client) SetReceipt(r *types.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[r.TxHash] = r
}

func (c *Client) SetCode(addr common.Address, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[addr] = code
}

func (c *Client) SetBalance(addr common.Address, balance *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = balance
}

func (c *Client) SetGasPrice(price *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gasPrice = price
}

func (c *Client) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

// Calls reports how many times the named rpc method was invoked.
func (c *Client) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *Client) begin(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
	return c.Err
}

func (c *Client) ChainID() uint64 {
	return c.chainID
}

func (c *Client) BlockNumber(context.Context) (uint64, error) {
	if err := c.begin("eth_blockNumber"); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockNumber, nil
}

func (c *Client) HeaderByHash(_ context.Context, hash common.Hash) (*types.Header, error) {
	if err := c.begin("eth_getBlockByHash"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.headers[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return h, nil
}

func (c *Client) GetProof(_ context.Context, _ common.Address, _ []common.Hash, blockHash common.Hash) (*ethclient.AccountProof, error) {
	if err := c.begin("eth_getProof"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.proofs[blockHash]
	if !ok {
		return nil, fmt.Errorf("no proof for block %s", blockHash)
	}
	return p, nil
}

func (c *Client) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if err := c.begin("eth_call"); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, NewRevertError("")
	}
	var selector [4]byte
	copy(selector[:], msg.Data[:4])
	c.mu.Lock()
	h, ok := c.handlers[callKey{*msg.To, selector}]
	c.mu.Unlock()
	if !ok {
		return nil, NewRevertError("")
	}
	args, err := h.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("can't unpack %s args: %w", h.method.Name, err)
	}
	values, err := h.fn(args)
	if err != nil {
		return nil, err
	}
	return h.method.Outputs.Pack(values...)
}

func (c *Client) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := c.begin("eth_estimateGas"); err != nil {
		return 0, err
	}
	if c.EstimateGasFn != nil {
		return c.EstimateGasFn(msg)
	}
	return 21000, nil
}

func (c *Client) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := c.begin("eth_getTransactionReceipt"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *Client) CodeAt(_ context.Context, addr common.Address) ([]byte, error) {
	if err := c.begin("eth_getCode"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code[addr], nil
}

func (c *Client) BalanceAt(_ context.Context, addr common.Address) (*big.Int, error) {
	if err := c.begin("eth_getBalance"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.balances[addr]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func (c *Client) SuggestGasPrice(context.Context) (*big.Int, error) {
	if err := c.begin("eth_gasPrice"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gasPrice == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return new(big.Int).Set(c.gasPrice), nil
}

// RevertError mimics the error returned by a node for a reverted call.
type RevertError struct {
	msg  string
	data []byte
}

func NewRevertError(reason string) *RevertError {
	if reason == "" {
		return &RevertError{msg: "execution reverted"}
	}
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	data := append(crypto.Keccak256([]byte("Error(string)"))[:4], packed...)
	return &RevertError{"execution reverted: " + reason, data}
}

// NewRevertErrorData reverts with raw revert data.
func NewRevertErrorData(data []byte) *RevertError {
	return &RevertError{"execution reverted", data}
}

// NewCustomRevertError reverts with a parameterless custom error.
func NewCustomRevertError(name string) *RevertError {
	return &RevertError{"execution reverted", crypto.Keccak256([]byte(name + "()"))[:4]}
}

func (e *RevertError) Error() string          { return e.msg }
func (e *RevertError) ErrorCode() int         { return 3 }
func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.data) }
