package watcher_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/ethclient/ethclienttest"
	"github.com/omni/tokenbridge-client/logging"
	"github.com/omni/tokenbridge-client/wallet"
	"github.com/omni/tokenbridge-client/watcher"
)

const (
	srcChainID      = 31336
	destChainID     = 167001
	disabledChainID = 5
)

const testCfg = `
chains:
  l1:
    chain_id: 31336
    destinations:
      - l2
  l2:
    chain_id: 167001
    destinations:
      - l1
  l5:
    chain_id: 5
    disabled: true
watcher:
  poll_interval: 1h
`

var owner = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

type fakeWallet struct {
	mu      sync.Mutex
	account common.Address
	chainID uint64
	fn      func(wallet.Event)
}

func (w *fakeWallet) Address() common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.account
}

func (w *fakeWallet) ChainID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID
}

func (w *fakeWallet) SendTransaction(context.Context, *wallet.TxRequest) (common.Hash, error) {
	return common.Hash{}, errors.New("not supported")
}

func (w *fakeWallet) Subscribe(fn func(wallet.Event)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fn = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.fn = nil
	}
}

func (w *fakeWallet) emit(account common.Address, chainID uint64) {
	w.mu.Lock()
	w.account, w.chainID = account, chainID
	fn := w.fn
	w.mu.Unlock()
	if fn != nil {
		fn(wallet.Event{Account: account, ChainID: chainID, Connected: account != common.Address{}})
	}
}

// blockingClient holds CodeAt calls until release is closed.
type blockingClient struct {
	*ethclienttest.Client
	entered chan struct{}
	release chan struct{}
}

func (c *blockingClient) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	select {
	case c.entered <- struct{}{}:
	default:
	}
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.Client.CodeAt(ctx, addr)
}

type testEnv struct {
	src    *ethclienttest.Client
	dest   *ethclienttest.Client
	wallet *fakeWallet
	cfg    *config.Config
}

func newTestEnv(t *testing.T, account common.Address, chainID uint64) *testEnv {
	t.Helper()
	cfg, err := config.ReadConfig([]byte(testCfg))
	require.NoError(t, err)
	env := &testEnv{
		src:    ethclienttest.NewClient(srcChainID),
		dest:   ethclienttest.NewClient(destChainID),
		wallet: &fakeWallet{account: account, chainID: chainID},
		cfg:    cfg,
	}
	env.src.SetBalance(account, big.NewInt(10))
	env.dest.SetBalance(account, big.NewInt(20))
	return env
}

func (e *testEnv) start(t *testing.T, clients ethclient.Clients) *watcher.Watcher {
	t.Helper()
	if clients == nil {
		clients = ethclient.Clients{srcChainID: e.src, destChainID: e.dest}
	}
	w := watcher.Start(context.Background(), logging.Discard(), e.cfg, clients, e.wallet)
	t.Cleanup(w.Stop)
	return w
}

func waitFor(t *testing.T, ch <-chan watcher.State, cond func(watcher.State) bool) watcher.State {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			require.True(t, ok, "updates channel closed")
			if cond(s) {
				return s
			}
		case <-timeout:
			t.Fatal("timed out waiting for watcher state")
		}
	}
}

func TestWatcher_SupportedChain(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, owner, srcChainID)
	w := env.start(t, nil)
	ch, unsubscribe := w.Subscribe()
	defer unsubscribe()

	s := waitFor(t, ch, func(s watcher.State) bool { return s.Chain != nil })
	require.True(t, s.Connected)
	require.Equal(t, owner, s.Account)
	require.Equal(t, uint64(srcChainID), s.Chain.ChainID)
	require.Nil(t, s.SwitchNetwork)
	require.NoError(t, s.Err)
	require.False(t, s.IsSmartContractWallet)
	require.Equal(t, map[uint64]*big.Int{
		srcChainID:  big.NewInt(10),
		destChainID: big.NewInt(20),
	}, s.Balances)

	env.src.SetCode(owner, []byte{0x60, 0x80})
	env.wallet.emit(owner, srcChainID)
	s = waitFor(t, ch, func(s watcher.State) bool { return s.IsSmartContractWallet })
	require.Equal(t, s, w.State())
}

func TestWatcher_UnsupportedChain(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, owner, disabledChainID)
	w := env.start(t, nil)
	ch, unsubscribe := w.Subscribe()
	defer unsubscribe()

	s := waitFor(t, ch, func(s watcher.State) bool { return s.SwitchNetwork != nil })
	require.Nil(t, s.Chain)
	require.Equal(t, &watcher.SwitchNetworkRequest{
		ChainID:   disabledChainID,
		Supported: []uint64{srcChainID, destChainID},
	}, s.SwitchNetwork)

	env.wallet.emit(owner, 999)
	s = waitFor(t, ch, func(s watcher.State) bool { return s.ChainID == 999 })
	require.NotNil(t, s.SwitchNetwork)
	require.Equal(t, uint64(999), s.SwitchNetwork.ChainID)

	env.wallet.emit(owner, destChainID)
	s = waitFor(t, ch, func(s watcher.State) bool { return s.Chain != nil })
	require.Nil(t, s.SwitchNetwork)
	require.Equal(t, uint64(destChainID), s.Chain.ChainID)
	require.Len(t, s.Balances, 2)
	require.Zero(t, s.Balances[destChainID].Cmp(big.NewInt(20)))
}

func TestWatcher_Disconnected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, common.Address{}, srcChainID)
	w := env.start(t, nil)
	ch, unsubscribe := w.Subscribe()
	defer unsubscribe()

	s := waitFor(t, ch, func(s watcher.State) bool { return !s.UpdatedAt.IsZero() })
	require.False(t, s.Connected)
	require.Nil(t, s.Chain)
	require.Nil(t, s.SwitchNetwork)
	require.Zero(t, env.src.Calls("eth_getCode"))
}

func TestWatcher_NetworkError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, owner, srcChainID)
	w := env.start(t, nil)
	ch, unsubscribe := w.Subscribe()
	defer unsubscribe()

	s := waitFor(t, ch, func(s watcher.State) bool { return s.Balances != nil })
	require.NoError(t, s.Err)

	env.src.SetErr(syscall.ECONNREFUSED)
	env.wallet.emit(owner, srcChainID)
	s = waitFor(t, ch, func(s watcher.State) bool { return s.Err != nil })
	require.True(t, bridgeerr.Is(s.Err, bridgeerr.KindNetwork))
	require.Zero(t, s.Balances[srcChainID].Cmp(big.NewInt(10)), "last known balances are kept")
}

func TestWatcher_OverlappingRefresh(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, owner, srcChainID)
	src := &blockingClient{
		Client:  env.src,
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	w := env.start(t, ethclient.Clients{srcChainID: src, destChainID: env.dest})
	ch, unsubscribe := w.Subscribe()
	defer unsubscribe()

	<-src.entered
	require.False(t, w.Refresh(context.Background()), "refresh must not overlap")

	env.wallet.emit(owner, destChainID)
	close(src.release)

	var seenStale bool
	s := waitFor(t, ch, func(s watcher.State) bool {
		if s.Chain != nil && s.Chain.ChainID == srcChainID {
			seenStale = true
		}
		return s.Chain != nil && s.Chain.ChainID == destChainID
	})
	require.False(t, seenStale, "results for a superseded event must be discarded")
	require.Equal(t, uint64(destChainID), s.ChainID)
}

func TestWatcher_Stop(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, owner, srcChainID)
	src := &blockingClient{
		Client:  env.src,
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	w := env.start(t, ethclient.Clients{srcChainID: src, destChainID: env.dest})
	ch, _ := w.Subscribe()
	<-ch

	<-src.entered
	w.Stop()
	close(src.release)

	_, ok := <-ch
	require.False(t, ok)
	require.Nil(t, w.State().Chain)

	w.Refresh(context.Background())
	require.Nil(t, w.State().Chain)

	env.wallet.emit(owner, destChainID)
	late, _ := w.Subscribe()
	_, ok = <-late
	require.False(t, ok)
}

func TestWatcher_ConcurrentRefreshSettlesOnLatestEvent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, owner, srcChainID)
	w := env.start(t, nil)
	ch, unsubscribe := w.Subscribe()
	defer unsubscribe()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%2 == 0 {
					env.wallet.emit(owner, srcChainID)
				} else {
					env.wallet.emit(owner, destChainID)
				}
				w.Refresh(ctx)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Refresh(ctx)
		}()
	}
	env.wallet.emit(owner, 999)
	wg.Wait()

	s := waitFor(t, ch, func(s watcher.State) bool { return s.ChainID == 999 })
	require.NotNil(t, s.SwitchNetwork)
	require.Eventually(t, func() bool { return w.State().ChainID == 999 }, 5*time.Second, 10*time.Millisecond)
}
