package presenter_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"syscall"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/omni/tokenbridge-client/bridge"
	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/contract/bridgeabi"
	"github.com/omni/tokenbridge-client/entity"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/ethclient/ethclienttest"
	"github.com/omni/tokenbridge-client/logging"
	"github.com/omni/tokenbridge-client/presenter"
	"github.com/omni/tokenbridge-client/token"
	"github.com/omni/tokenbridge-client/tracker"
	"github.com/omni/tokenbridge-client/wallet"
	"github.com/omni/tokenbridge-client/watcher"
)

const testCfg = `
chains:
  l1:
    chain_id: 31336
    explorer_url: https://l1.example.org/
    bridge_address: 0x0000000000000000000000000000000000000101
    destinations:
      - l2
  l2:
    chain_id: 167001
    bridge_address: 0x0000000000000000000000000000000000000201
    destinations:
      - l1
`

var (
	owner      = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	destBridge = common.HexToAddress("0x0000000000000000000000000000000000000201")
	msgHash    = common.HexToHash("0x5c1d0b2c3d4e5f60718293a4b5c6d7e8f9012345678901234567890123456789")
)

type fakeTxs struct {
	txs []*entity.BridgeTransaction
}

func (f *fakeTxs) Transactions(_ context.Context, o common.Address) ([]*entity.BridgeTransaction, error) {
	var res []*entity.BridgeTransaction
	for _, tx := range f.txs {
		if tx.Owner == o {
			res = append(res, tx)
		}
	}
	return res, nil
}

func (f *fakeTxs) Pending(context.Context) ([]*entity.BridgeTransaction, error) {
	var res []*entity.BridgeTransaction
	for _, tx := range f.txs {
		if tx.TxStatus == entity.TxStatusPending {
			res = append(res, tx)
		}
	}
	return res, nil
}

func (f *fakeTxs) Track(context.Context, *entity.BridgeTransaction) (*tracker.Future, error) {
	return nil, nil
}

// fakeBridge records the arguments it is called with and answers with err
// when set.
type fakeBridge struct {
	mu     sync.Mutex
	err    error
	args   []*bridge.Args
	claims []*bridge.ClaimArgs
}

func (f *fakeBridge) RecommendProcessingFee(_ context.Context, kind token.Kind, destChainID uint64, deployed bool) (*big.Int, error) {
	if destChainID != 167001 {
		return nil, bridgeerr.New(bridgeerr.KindUnsupportedChain, "fees", "no route")
	}
	fee := big.NewInt(100)
	if kind != token.KindETH && !deployed {
		fee = big.NewInt(300)
	}
	return fee, nil
}

func (f *fakeBridge) ResolveArgs(_ context.Context, args *bridge.Args) error {
	if args.Kind == "" {
		args.Kind = token.KindETH
	}
	args.Deployed = true
	return nil
}

func (f *fakeBridge) EstimateGas(_ context.Context, args *bridge.Args) (uint64, error) {
	if err := f.record(args); err != nil {
		return 0, err
	}
	return 21000, nil
}

func (f *fakeBridge) RequiresApproval(_ context.Context, args *bridge.Args) (bool, error) {
	return args.Kind != token.KindETH, nil
}

func (f *fakeBridge) Approve(_ context.Context, args *bridge.Args) (*bridge.TxHandle, error) {
	return f.handle(args, 0xa1)
}

func (f *fakeBridge) Bridge(_ context.Context, args *bridge.Args) (*bridge.TxHandle, error) {
	return f.handle(args, 0xb1)
}

func (f *fakeBridge) Claim(_ context.Context, kind token.Kind, args *bridge.ClaimArgs) (*bridge.TxHandle, error) {
	return f.claim(kind, args, 0xc1)
}

func (f *fakeBridge) Release(_ context.Context, kind token.Kind, args *bridge.ClaimArgs) (*bridge.TxHandle, error) {
	return f.claim(kind, args, 0xd1)
}

func (f *fakeBridge) record(args *bridge.Args) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append(f.args, args)
	return f.err
}

func (f *fakeBridge) handle(args *bridge.Args, n byte) (*bridge.TxHandle, error) {
	if err := f.record(args); err != nil {
		return nil, err
	}
	return &bridge.TxHandle{Hash: common.BytesToHash([]byte{n}), ChainID: args.SrcChainID, Kind: args.Kind}, nil
}

func (f *fakeBridge) claim(kind token.Kind, args *bridge.ClaimArgs, n byte) (*bridge.TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, args)
	if f.err != nil {
		return nil, f.err
	}
	return &bridge.TxHandle{Hash: common.BytesToHash([]byte{n}), ChainID: args.Message.DestChainID, Kind: kind}, nil
}

func (f *fakeBridge) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeBridge) lastArgs() *bridge.Args {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.args[len(f.args)-1]
}

type fakeSigner struct {
	address common.Address
	chainID uint64
}

func (s *fakeSigner) Address() common.Address { return s.address }
func (s *fakeSigner) ChainID() uint64         { return s.chainID }

func (s *fakeSigner) SendTransaction(context.Context, *wallet.TxRequest) (common.Hash, error) {
	return common.Hash{}, nil
}

func (s *fakeSigner) Subscribe(func(wallet.Event)) func() { return func() {} }

type fakeWallet struct {
	state watcher.State
}

func (w *fakeWallet) State() watcher.State { return w.state }

type testEnv struct {
	dest    *ethclienttest.Client
	handler http.Handler
}

func newTestEnv(t *testing.T, wallet presenter.WalletSource) *testEnv {
	t.Helper()
	cfg, err := config.ReadConfig([]byte(testCfg))
	require.NoError(t, err)

	dest := ethclienttest.NewClient(167001)
	txs := &fakeTxs{txs: []*entity.BridgeTransaction{
		{Owner: owner, TxHash: common.HexToHash("0x01"), SrcChainID: 31336, DestChainID: 167001, TxStatus: entity.TxStatusMined, Status: entity.MessageStatusDone},
		{Owner: owner, TxHash: common.HexToHash("0x02"), SrcChainID: 167001, DestChainID: 31336, TxStatus: entity.TxStatusPending},
		{Owner: common.HexToAddress("0x0b0b"), TxHash: common.HexToHash("0x03"), SrcChainID: 31336, TxStatus: entity.TxStatusPending},
	}}
	clients := ethclient.Clients{167001: dest}
	p := presenter.NewPresenter(logging.Discard(), cfg, clients, txs, &fakeBridge{}, wallet, nil)
	return &testEnv{dest: dest, handler: p.Handler()}
}

type signerEnv struct {
	testEnv
	svc     *fakeBridge
	tracker *tracker.Tracker
}

// newSignerEnv serves the transaction routes backed by a running tracker.
func newSignerEnv(t *testing.T) *signerEnv {
	t.Helper()
	cfg, err := config.ReadConfig([]byte(testCfg))
	require.NoError(t, err)

	src := ethclienttest.NewClient(31336)
	dest := ethclienttest.NewClient(167001)
	clients := ethclient.Clients{31336: src, 167001: dest}
	tr := tracker.NewTracker(logging.Discard(), cfg, clients, nil)
	tr.Start(context.Background())
	t.Cleanup(tr.Stop)

	svc := &fakeBridge{}
	signer := &fakeSigner{address: owner, chainID: 31336}
	p := presenter.NewPresenter(logging.Discard(), cfg, clients, tr, svc, nil, signer)
	return &signerEnv{
		testEnv: testEnv{dest: dest, handler: p.Handler()},
		svc:     svc,
		tracker: tr,
	}
}

func (e *testEnv) post(t *testing.T, path string, body interface{}, res interface{}) int {
	t.Helper()
	var blob []byte
	switch b := body.(type) {
	case string:
		blob = []byte(b)
	default:
		var err error
		blob, err = json.Marshal(body)
		require.NoError(t, err)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(blob)))
	if res != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), res), rec.Body.String())
	}
	return rec.Code
}

func (e *testEnv) get(t *testing.T, path string, res interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if res != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), res), rec.Body.String())
	}
	return rec.Code
}

func TestPresenter_Transactions(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	var res []map[string]interface{}
	require.Equal(t, http.StatusOK, env.get(t, "/transactions/"+owner.Hex(), &res))
	require.Len(t, res, 2)
	require.Equal(t, "DONE", res[0]["status"])
	require.Equal(t, "https://l1.example.org/tx/"+common.HexToHash("0x01").Hex(), res[0]["link"])
	require.NotContains(t, res[1], "link")

	var errRes map[string]interface{}
	require.Equal(t, http.StatusBadRequest, env.get(t, "/transactions/0x1234", &errRes))
	require.Equal(t, "invalid_args", errRes["kind"])
}

func TestPresenter_Pending(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	var res []map[string]interface{}
	require.Equal(t, http.StatusOK, env.get(t, "/pending", &res))
	require.Len(t, res, 2)
	require.Equal(t, "pending", res[0]["txStatus"])
}

func TestPresenter_Chains(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	var res []presenter.ChainInfo
	require.Equal(t, http.StatusOK, env.get(t, "/chains", &res))
	require.Len(t, res, 2)
	require.Equal(t, "l1", res[0].Name)
	require.Equal(t, []uint64{167001}, res[0].Destinations)
	require.Equal(t, destBridge, res[1].BridgeAddress)
}

func TestPresenter_MessageStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.dest.Handle(destBridge, bridgeabi.BridgeABI.ABI, "getMessageStatus", ethclienttest.Returns(uint8(entity.MessageStatusRetriable)))
	path := "/chains/167001/messages/" + msgHash.Hex() + "/status"

	var res map[string]interface{}
	require.Equal(t, http.StatusOK, env.get(t, path, &res))
	require.Equal(t, "RETRIABLE", res["status"])
	require.Equal(t, msgHash.Hex(), res["msgHash"])
	require.Equal(t, float64(167001), res["chainId"])

	var errRes map[string]interface{}
	require.Equal(t, http.StatusNotFound, env.get(t, "/chains/999/messages/"+msgHash.Hex()+"/status", &errRes))
	require.Equal(t, "unsupported_chain", errRes["kind"])

	require.Equal(t, http.StatusNotFound, env.get(t, "/chains/31336/messages/"+msgHash.Hex()+"/status", &errRes))

	env.dest.SetErr(syscall.ECONNREFUSED)
	require.Equal(t, http.StatusBadGateway, env.get(t, path, &errRes))
	require.Equal(t, "network", errRes["kind"])
}

func TestPresenter_ProcessingFee(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		query  string
		status int
		fee    int64
	}{
		{name: "default eth", query: "", status: http.StatusOK, fee: 100},
		{name: "erc20 not deployed", query: "?kind=erc20&deployed=false", status: http.StatusOK, fee: 300},
		{name: "unknown kind", query: "?kind=erc777", status: http.StatusBadRequest},
		{name: "invalid deployed flag", query: "?deployed=maybe", status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var res map[string]interface{}
			require.Equal(t, tc.status, env.get(t, "/chains/167001/fee"+tc.query, &res))
			if tc.status == http.StatusOK {
				require.Equal(t, float64(tc.fee), res["processingFee"])
			}
		})
	}

	var errRes map[string]interface{}
	require.Equal(t, http.StatusNotFound, env.get(t, "/chains/31336/fee", &errRes))
}

func TestPresenter_Wallet(t *testing.T) {
	t.Parallel()
	require.Equal(t, http.StatusNotFound, newTestEnv(t, nil).get(t, "/wallet", nil))

	env := newTestEnv(t, &fakeWallet{state: watcher.State{
		Account:       owner,
		Connected:     true,
		ChainID:       5,
		SwitchNetwork: &watcher.SwitchNetworkRequest{ChainID: 5, Supported: []uint64{31336, 167001}},
	}})
	var res presenter.WalletInfo
	require.Equal(t, http.StatusOK, env.get(t, "/wallet", &res))
	require.False(t, res.Supported)
	require.NotNil(t, res.SwitchNetwork)
	require.Equal(t, []uint64{31336, 167001}, res.SwitchNetwork.Supported)
	require.Equal(t, owner, res.Account)
}

func TestPresenter_TransactionRoutesNeedSigner(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	for _, path := range []string{"/estimate", "/approve", "/bridge", "/claim", "/release"} {
		require.Equal(t, http.StatusNotFound, env.post(t, path, `{}`, nil), path)
	}
}

func TestPresenter_BridgeTracksTransaction(t *testing.T) {
	t.Parallel()
	env := newSignerEnv(t)

	var res presenter.TxResult
	require.Equal(t, http.StatusOK, env.post(t, "/bridge", `{"kind":"eth","destChainId":167001,"amount":1000}`, &res))
	require.Equal(t, common.BytesToHash([]byte{0xb1}), res.TxHash)
	require.Equal(t, uint64(31336), res.ChainID)
	require.Equal(t, "ETH", res.Kind)

	args := env.svc.lastArgs()
	require.Equal(t, owner, args.To)
	require.Equal(t, uint64(31336), args.SrcChainID)
	require.Zero(t, args.Amount.Cmp(big.NewInt(1000)))
	require.True(t, args.Deployed)

	var pending []map[string]interface{}
	require.Equal(t, http.StatusOK, env.get(t, "/pending", &pending))
	require.Len(t, pending, 1)
	require.Equal(t, res.TxHash.Hex(), pending[0]["txHash"])
	require.Equal(t, "pending", pending[0]["txStatus"])

	var txs []map[string]interface{}
	require.Equal(t, http.StatusOK, env.get(t, "/transactions/"+owner.Hex(), &txs))
	require.Len(t, txs, 1)
	require.Equal(t, "https://l1.example.org/tx/"+res.TxHash.Hex(), txs[0]["link"])

	env.svc.setErr(bridgeerr.New(bridgeerr.KindUserRejected, "wallet", "rejected"))
	var errRes map[string]interface{}
	require.Equal(t, http.StatusConflict, env.post(t, "/bridge", `{"kind":"eth","destChainId":167001,"amount":1}`, &errRes))
	require.Equal(t, "user_rejected", errRes["kind"])
	pendingTxs, err := env.tracker.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pendingTxs, 1)
}

func TestPresenter_BridgeInvalidRequest(t *testing.T) {
	t.Parallel()
	env := newSignerEnv(t)

	tests := []struct {
		name string
		body string
		kind string
	}{
		{name: "malformed", body: `{"kind":`, kind: "invalid_args"},
		{name: "unknown field", body: `{"value":1}`, kind: "invalid_args"},
		{name: "unknown kind", body: `{"kind":"erc777"}`, kind: "unknown_token_type"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var res map[string]interface{}
			require.Equal(t, http.StatusBadRequest, env.post(t, "/bridge", tc.body, &res))
			require.Equal(t, tc.kind, res["kind"])
		})
	}
	pending, err := env.tracker.Pending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestPresenter_EstimateAndApprove(t *testing.T) {
	t.Parallel()
	env := newSignerEnv(t)
	body := `{"kind":"erc20","destChainId":167001,"token":"0x0000000000000000000000000000000000000e20","amount":5,"deployed":false}`

	var est presenter.EstimateResult
	require.Equal(t, http.StatusOK, env.post(t, "/estimate", body, &est))
	require.Equal(t, uint64(21000), est.Gas)
	require.True(t, est.RequiresApproval)
	require.Equal(t, "ERC20", est.Kind)
	require.False(t, env.svc.lastArgs().Deployed)

	var res presenter.TxResult
	require.Equal(t, http.StatusOK, env.post(t, "/approve", body, &res))
	require.Equal(t, common.BytesToHash([]byte{0xa1}), res.TxHash)

	pending, err := env.tracker.Pending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending, "approvals are not bridge transactions")
}

func TestPresenter_ClaimAndRelease(t *testing.T) {
	t.Parallel()
	env := newSignerEnv(t)
	req := &presenter.ClaimRequest{
		Kind:    "eth",
		MsgHash: msgHash,
		Message: &entity.Message{
			ID:           big.NewInt(1),
			SrcChainID:   31336,
			DestChainID:  167001,
			Owner:        owner,
			To:           owner,
			DepositValue: big.NewInt(10),
		},
	}

	var res presenter.TxResult
	require.Equal(t, http.StatusOK, env.post(t, "/claim", req, &res))
	require.Equal(t, common.BytesToHash([]byte{0xc1}), res.TxHash)
	require.Equal(t, uint64(167001), res.ChainID)
	require.Equal(t, http.StatusOK, env.post(t, "/release", req, &res))
	require.Equal(t, common.BytesToHash([]byte{0xd1}), res.TxHash)
	require.Len(t, env.svc.claims, 2)
	require.Equal(t, msgHash, env.svc.claims[0].MsgHash)

	var errRes map[string]interface{}
	require.Equal(t, http.StatusBadRequest, env.post(t, "/claim", `{"kind":"eth"}`, &errRes))

	tests := []struct {
		kind   bridgeerr.Kind
		status int
	}{
		{kind: bridgeerr.KindMessageProcessed, status: http.StatusConflict},
		{kind: bridgeerr.KindNotOwner, status: http.StatusForbidden},
		{kind: bridgeerr.KindInvalidProof, status: http.StatusUnprocessableEntity},
		{kind: bridgeerr.KindContractRevert, status: http.StatusUnprocessableEntity},
		{kind: bridgeerr.KindNetwork, status: http.StatusBadGateway},
	}
	for _, tc := range tests {
		env.svc.setErr(bridgeerr.New(tc.kind, "bridge", "failed"))
		require.Equal(t, tc.status, env.post(t, "/claim", req, &errRes), tc.kind.String())
		require.Equal(t, tc.kind.String(), errRes["kind"])
	}
}
