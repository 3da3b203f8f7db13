package watcher

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/logging"
	"github.com/omni/tokenbridge-client/utils"
	"github.com/omni/tokenbridge-client/wallet"
)

// SwitchNetworkRequest asks the user to move the wallet to one of the
// supported chains.
type SwitchNetworkRequest struct {
	ChainID   uint64
	Supported []uint64
}

// State is the derived view of the connected wallet.
type State struct {
	Account   common.Address
	Connected bool
	ChainID   uint64
	// Chain is nil while the wallet is on an unsupported chain.
	Chain                 *config.ChainConfig
	SwitchNetwork         *SwitchNetworkRequest
	IsSmartContractWallet bool
	// Balances holds the native balance of Account on the connected chain
	// and on every chain it routes to.
	Balances  map[uint64]*big.Int
	Err       error
	UpdatedAt time.Time
}

type Watcher struct {
	logger  logging.Logger
	cfg     *config.Config
	clients ethclient.Clients
	wallet  wallet.Wallet

	mu      sync.Mutex
	latest  wallet.Event
	state   State
	subs    map[int]chan State
	nextSub int

	refreshing atomic.Bool
	dirty      atomic.Bool
	stopped    atomic.Bool

	kick        chan struct{}
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// Start begins watching w until Stop is called or ctx is done.
func Start(ctx context.Context, logger logging.Logger, cfg *config.Config, clients ethclient.Clients, w wallet.Wallet) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	wt := &Watcher{
		logger:  logger.WithField("service", "watcher"),
		cfg:     cfg,
		clients: clients,
		wallet:  w,
		latest: wallet.Event{
			Account:   w.Address(),
			ChainID:   w.ChainID(),
			Connected: w.Address() != common.Address{},
		},
		subs:   make(map[int]chan State),
		kick:   make(chan struct{}, 1),
		cancel: cancel,
	}
	wt.unsubscribe = w.Subscribe(wt.onEvent)
	wt.kick <- struct{}{}

	wt.wg.Add(1)
	go wt.loop(ctx)
	wt.logger.Info("started wallet watcher")
	return wt
}

// Stop unsubscribes from the wallet and closes subscriber channels.
// In-flight refreshes are cancelled rather than awaited: their RPC calls
// return early with a context error and whatever they computed is
// discarded, so subscribers never see a state derived after Stop.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		w.unsubscribe()
		w.cancel()
		w.wg.Wait()

		w.mu.Lock()
		for id, ch := range w.subs {
			close(ch)
			delete(w.subs, id)
		}
		w.mu.Unlock()
		w.logger.Info("stopped wallet watcher")
	})
}

func (w *Watcher) onEvent(ev wallet.Event) {
	if w.stopped.Load() {
		return
	}
	w.mu.Lock()
	w.latest = ev
	w.mu.Unlock()
	w.logger.WithFields(logrus.Fields{
		"account":   ev.Account,
		"chain_id":  ev.ChainID,
		"connected": ev.Connected,
	}).Debug("wallet changed")
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	periodic := make(chan struct{})
	go func() {
		for utils.ContextSleep(ctx, w.cfg.Watcher.PollInterval) != nil {
			select {
			case periodic <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.kick:
		case <-periodic:
		}
		w.Refresh(ctx)
	}
}

func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Subscribe returns a channel holding the latest state. Unread states are
// replaced by newer ones.
func (w *Watcher) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped.Load() {
		close(ch)
		return ch, func() {}
	}
	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch
	ch <- w.state
	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if _, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(ch)
		}
	}
}

// Refresh re-derives the wallet state. When a cycle is already running it
// returns false and that cycle runs once more with the latest event.
func (w *Watcher) Refresh(ctx context.Context) bool {
	if !w.refreshing.CompareAndSwap(false, true) {
		w.dirty.Store(true)
		SkippedRefreshes.Inc()
		return false
	}
	for {
		w.dirty.Store(false)
		w.refreshOnce(ctx)
		if w.stopped.Load() {
			w.refreshing.Store(false)
			return true
		}
		if w.dirty.Load() {
			continue
		}
		w.refreshing.Store(false)
		// a request may have been marked dirty after the check above but
		// before the flag was cleared
		if !w.dirty.Load() || !w.refreshing.CompareAndSwap(false, true) {
			return true
		}
	}
}

func (w *Watcher) event() wallet.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

func (w *Watcher) refreshOnce(ctx context.Context) {
	ev := w.event()
	logger := w.logger.WithFields(logrus.Fields{
		"account":  ev.Account,
		"chain_id": ev.ChainID,
	})
	next := State{
		Account:   ev.Account,
		Connected: ev.Connected,
		ChainID:   ev.ChainID,
		UpdatedAt: time.Now().UTC(),
	}

	result := "ok"
	switch chain := w.cfg.GetChainConfig(ev.ChainID); {
	case !ev.Connected:
		result = "disconnected"
	case chain == nil || chain.Disabled:
		result = "switch_network"
		next.SwitchNetwork = &SwitchNetworkRequest{ChainID: ev.ChainID, Supported: w.supportedChains()}
		logger.Warn("wallet is connected to an unsupported chain")
	default:
		next.Chain = chain
		if err := w.inspect(ctx, ev.Account, chain, &next); err != nil {
			result = "error"
			next.Err = bridgeerr.Classify("Watcher.Refresh", err)
			w.keepPrevious(&next)
			logger.WithError(err).Warn("can't refresh wallet state")
		}
	}

	if w.stopped.Load() || w.event() != ev {
		Refreshes.WithLabelValues("discarded").Inc()
		logger.Debug("wallet changed during refresh, discarding results")
		return
	}
	Refreshes.WithLabelValues(result).Inc()
	w.apply(next)
}

// inspect checks for contract code at the account and fetches its balances,
// all requests running concurrently.
func (w *Watcher) inspect(ctx context.Context, account common.Address, chain *config.ChainConfig, next *State) error {
	client, err := w.clients.Get(chain.ChainID)
	if err != nil {
		return err
	}
	chains := append([]*config.ChainConfig{chain}, chain.DestChains...)
	balances := make([]*big.Int, len(chains))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		code, err2 := client.CodeAt(gctx, account)
		if err2 != nil {
			return err2
		}
		next.IsSmartContractWallet = len(code) > 0
		return nil
	})
	for i, c := range chains {
		i, c := i, c
		g.Go(func() error {
			cl, err2 := w.clients.Get(c.ChainID)
			if err2 != nil {
				return err2
			}
			balance, err2 := cl.BalanceAt(gctx, account)
			if err2 != nil {
				return err2
			}
			balances[i] = balance
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}
	next.Balances = make(map[uint64]*big.Int, len(chains))
	for i, c := range chains {
		next.Balances[c.ChainID] = balances[i]
	}
	return nil
}

// keepPrevious carries over the last known values for the same account and
// chain when a refresh fails.
func (w *Watcher) keepPrevious(next *State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Account == next.Account && w.state.ChainID == next.ChainID {
		next.IsSmartContractWallet = w.state.IsSmartContractWallet
		next.Balances = w.state.Balances
	}
}

func (w *Watcher) apply(next State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped.Load() {
		return
	}
	w.state = next
	for _, ch := range w.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

func (w *Watcher) supportedChains() []uint64 {
	res := make([]uint64, 0, len(w.cfg.Chains))
	for _, chain := range w.cfg.Chains {
		if !chain.Disabled {
			res = append(res, chain.ChainID)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}
