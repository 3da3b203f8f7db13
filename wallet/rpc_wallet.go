package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/omni/tokenbridge-client/logging"
	"github.com/omni/tokenbridge-client/utils"
)

var ErrNotConnected = errors.New("wallet has no connected account")

// RPCWallet drives an EIP-1193 style JSON-RPC signer (eth_accounts,
// eth_chainId, eth_sendTransaction). Account and chain changes are detected
// by polling.
type RPCWallet struct {
	logger       logging.Logger
	client       *rpc.Client
	timeout      time.Duration
	pollInterval time.Duration

	mu     sync.RWMutex
	state  Event
	subs   map[int]func(Event)
	nextID int
}

func NewRPCWallet(ctx context.Context, logger logging.Logger, url string, timeout, pollInterval time.Duration) (*RPCWallet, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := rpc.DialContext(dialCtx, url)
	if err != nil {
		return nil, fmt.Errorf("can't dial wallet rpc url: %w", err)
	}
	return NewRPCWalletWithClient(ctx, logger, client, timeout, pollInterval)
}

func NewRPCWalletWithClient(ctx context.Context, logger logging.Logger, client *rpc.Client, timeout, pollInterval time.Duration) (*RPCWallet, error) {
	w := &RPCWallet{
		logger:       logger.WithField("service", "wallet"),
		client:       client,
		timeout:      timeout,
		pollInterval: pollInterval,
		subs:         make(map[int]func(Event)),
	}
	if _, err := w.refresh(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RPCWallet) Address() common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.Account
}

func (w *RPCWallet) ChainID() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.ChainID
}

func (w *RPCWallet) Subscribe(fn func(Event)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs, id)
	}
}

func (w *RPCWallet) SendTransaction(ctx context.Context, tx *TxRequest) (common.Hash, error) {
	if tx.From == (common.Address{}) {
		return common.Hash{}, ErrNotConnected
	}
	arg := map[string]interface{}{
		"from": tx.From,
		"data": hexutil.Bytes(tx.Data),
	}
	if tx.To != nil {
		arg["to"] = tx.To
	}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		arg["value"] = (*hexutil.Big)(tx.Value)
	}
	if tx.Gas > 0 {
		arg["gas"] = hexutil.Uint64(tx.Gas)
	}
	var hash common.Hash
	if err := w.client.CallContext(ctx, &hash, "eth_sendTransaction", arg); err != nil {
		return common.Hash{}, err
	}
	w.logger.WithFields(logrus.Fields{
		"tx_hash": hash,
		"from":    tx.From,
	}).Info("transaction submitted")
	return hash, nil
}

// Run polls the wallet until ctx is cancelled.
func (w *RPCWallet) Run(ctx context.Context) {
	for {
		if _, err := w.refresh(ctx); err != nil && ctx.Err() == nil {
			w.logger.WithError(err).Warn("can't refresh wallet state")
		}
		if utils.ContextSleep(ctx, w.pollInterval) == nil {
			return
		}
	}
}

func (w *RPCWallet) refresh(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var accounts []common.Address
	var chainID hexutil.Uint64
	batches := []rpc.BatchElem{
		{Method: "eth_accounts", Result: &accounts},
		{Method: "eth_chainId", Result: &chainID},
	}
	if err := w.client.BatchCallContext(ctx, batches); err != nil {
		return false, fmt.Errorf("can't make batch request: %w", err)
	}
	for _, batch := range batches {
		if batch.Error != nil {
			return false, fmt.Errorf("can't request %s: %w", batch.Method, batch.Error)
		}
	}
	next := Event{ChainID: uint64(chainID)}
	if len(accounts) > 0 {
		next.Account = accounts[0]
		next.Connected = true
	}
	return w.apply(next), nil
}

func (w *RPCWallet) apply(next Event) bool {
	w.mu.Lock()
	if next == w.state {
		w.mu.Unlock()
		return false
	}
	w.state = next
	subs := make([]func(Event), 0, len(w.subs))
	for _, fn := range w.subs {
		subs = append(subs, fn)
	}
	w.mu.Unlock()

	w.logger.WithFields(logrus.Fields{
		"account":  next.Account,
		"chain_id": next.ChainID,
	}).Info("wallet state changed")
	for _, fn := range subs {
		fn(next)
	}
	return true
}
