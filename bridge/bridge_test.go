package bridge_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/omni/tokenbridge-client/bridge"
	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/contract/abi"
	"github.com/omni/tokenbridge-client/contract/bridgeabi"
	"github.com/omni/tokenbridge-client/entity"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/ethclient/ethclienttest"
	"github.com/omni/tokenbridge-client/logging"
	"github.com/omni/tokenbridge-client/proof"
	"github.com/omni/tokenbridge-client/token"
	"github.com/omni/tokenbridge-client/wallet"
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
    bridge_address: 0x0000000000000000000000000000000000000101
    signal_service_address: 0x0000000000000000000000000000000000000102
    cross_chain_sync_address: 0x0000000000000000000000000000000000000103
    erc20_vault_address: 0x0000000000000000000000000000000000000104
    erc721_vault_address: 0x0000000000000000000000000000000000000105
    erc1155_vault_address: 0x0000000000000000000000000000000000000106
    destinations:
      - l2
      - l5
  l2:
    chain_id: 167001
    bridge_address: 0x0000000000000000000000000000000000000201
    signal_service_address: 0x0000000000000000000000000000000000000202
    cross_chain_sync_address: 0x0000000000000000000000000000000000000203
    erc20_vault_address: 0x0000000000000000000000000000000000000204
    erc721_vault_address: 0x0000000000000000000000000000000000000205
    erc1155_vault_address: 0x0000000000000000000000000000000000000206
    destinations:
      - l1
  l5:
    chain_id: 5
    bridge_address: 0x0000000000000000000000000000000000000501
`

var (
	srcBridge        = common.HexToAddress("0x0000000000000000000000000000000000000101")
	srcSignalService = common.HexToAddress("0x0000000000000000000000000000000000000102")
	srcERC20Vault    = common.HexToAddress("0x0000000000000000000000000000000000000104")
	srcERC721Vault   = common.HexToAddress("0x0000000000000000000000000000000000000105")
	srcERC1155Vault  = common.HexToAddress("0x0000000000000000000000000000000000000106")
	destBridge       = common.HexToAddress("0x0000000000000000000000000000000000000201")
	destCrossSync    = common.HexToAddress("0x0000000000000000000000000000000000000203")

	owner     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	recipient = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	tokenAddr = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	msgHash   = common.HexToHash("0x5c1d0b2c3d4e5f60718293a4b5c6d7e8f9012345678901234567890123456789")
	txHash    = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	testProof = []byte{0xca, 0xfe}
)

type mockWallet struct {
	mock.Mock
	chainID uint64
}

func (w *mockWallet) Address() common.Address { return owner }
func (w *mockWallet) ChainID() uint64         { return w.chainID }

func (w *mockWallet) SendTransaction(ctx context.Context, tx *wallet.TxRequest) (common.Hash, error) {
	args := w.Called(ctx, tx)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (w *mockWallet) Subscribe(func(wallet.Event)) func() { return func() {} }

type mockProver struct {
	mock.Mock
}

func (p *mockProver) GenerateProof(ctx context.Context, req *proof.Request) ([]byte, error) {
	args := p.Called(ctx, req)
	res, _ := args.Get(0).([]byte)
	return res, args.Error(1)
}

func (p *mockProver) GenerateReleaseProof(ctx context.Context, req *proof.ReleaseRequest) ([]byte, error) {
	args := p.Called(ctx, req)
	res, _ := args.Get(0).([]byte)
	return res, args.Error(1)
}

type userRejectedError struct{}

func (userRejectedError) Error() string  { return "MetaMask Tx Signature: User denied transaction signature." }
func (userRejectedError) ErrorCode() int { return 4001 }

type testEnv struct {
	src    *ethclienttest.Client
	dest   *ethclienttest.Client
	prover *mockProver
	wallet *mockWallet
	svc    *bridge.Service
}

func newTestEnv(t *testing.T, walletChainID uint64) *testEnv {
	t.Helper()
	cfg, err := config.ReadConfig([]byte(testCfg))
	require.NoError(t, err)

	src := ethclienttest.NewClient(srcChainID)
	dest := ethclienttest.NewClient(destChainID)
	clients := ethclient.Clients{srcChainID: src, destChainID: dest}
	detector, err := token.NewDetector(logging.Discard(), clients, 16)
	require.NoError(t, err)

	env := &testEnv{
		src:    src,
		dest:   dest,
		prover: new(mockProver),
		wallet: &mockWallet{chainID: walletChainID},
	}
	env.svc = bridge.NewService(logging.Discard(), cfg, clients, env.prover, detector)
	return env
}

func (e *testEnv) setStatus(status entity.MessageStatus) {
	e.dest.Handle(destBridge, bridgeabi.BridgeABI.ABI, "getMessageStatus", ethclienttest.Returns(uint8(status)))
}

// txCalling matches a transaction invoking method of the contract at to.
func txCalling(to common.Address, contractABI abi.ABI, method string) interface{} {
	return mock.MatchedBy(func(tx *wallet.TxRequest) bool {
		return tx.To != nil && *tx.To == to && bytes.HasPrefix(tx.Data, contractABI.Methods[method].ID)
	})
}

func testMessage() *entity.Message {
	return &entity.Message{
		ID:            big.NewInt(7),
		Sender:        owner,
		SrcChainID:    srcChainID,
		DestChainID:   destChainID,
		Owner:         owner,
		To:            recipient,
		RefundAddress: owner,
		DepositValue:  big.NewInt(0),
		CallValue:     big.NewInt(1000),
		ProcessingFee: big.NewInt(10),
		GasLimit:      big.NewInt(140000),
		Data:          []byte{},
	}
}

// sendMessageDest decodes the destChainId of sendMessage calldata.
func sendMessageDest(t *testing.T, data []byte) uint64 {
	t.Helper()
	values, err := bridgeabi.BridgeABI.Methods["sendMessage"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	destChainID := reflect.ValueOf(values[0]).FieldByName("DestChainId").Interface().(*big.Int)
	return destChainID.Uint64()
}

func TestETHBridge_Bridge_TotalValue(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name            string
		to              common.Address
		fee             *big.Int
		expectedDeposit bool
		expectedGas     int64
	}{
		{"to self with fee", owner, big.NewInt(3), true, 140000},
		{"to other with fee", recipient, big.NewInt(5), false, 140000},
		{"to other without fee", recipient, nil, false, 0},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, srcChainID)
			amount := big.NewInt(1_000_000)
			args := &bridge.Args{
				Kind:          token.KindETH,
				Wallet:        env.wallet,
				SrcChainID:    srcChainID,
				DestChainID:   destChainID,
				To:            tc.to,
				Amount:        amount,
				ProcessingFee: tc.fee,
			}
			b, err := env.svc.For(token.KindETH)
			require.NoError(t, err)
			ethBridge := b.(*bridge.ETHBridge)
			msg := ethBridge.NewMessage(args)

			require.Equal(t, owner, msg.Owner)
			require.Equal(t, owner, msg.Sender)
			require.Equal(t, owner, msg.RefundAddress)
			require.Zero(t, msg.ID.Sign())
			require.Equal(t, tc.expectedGas, msg.GasLimit.Int64())
			if tc.expectedDeposit {
				require.Zero(t, msg.DepositValue.Cmp(amount))
				require.Zero(t, msg.CallValue.Sign())
			} else {
				require.Zero(t, msg.CallValue.Cmp(amount))
				require.Zero(t, msg.DepositValue.Sign())
			}

			env.wallet.On("SendTransaction", mock.Anything, mock.MatchedBy(func(tx *wallet.TxRequest) bool {
				return tx.Value.Cmp(msg.TotalValue()) == 0 && *tx.To == srcBridge &&
					bytes.HasPrefix(tx.Data, bridgeabi.BridgeABI.Methods["sendMessage"].ID)
			})).Return(txHash, nil).Once()

			handle, err := env.svc.Bridge(context.Background(), args)
			require.NoError(t, err)
			require.Equal(t, &bridge.TxHandle{Hash: txHash, ChainID: srcChainID, Kind: token.KindETH}, handle)
			env.wallet.AssertExpectations(t)
		})
	}
}

func TestETHBridge_Bridge_DisabledDestination(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, srcChainID)
	env.src.EstimateGasFn = func(msg ethereum.CallMsg) (uint64, error) {
		if sendMessageDest(t, msg.Data) == disabledChainID {
			return 0, ethclienttest.NewRevertError("B:destChainId")
		}
		return 21000, nil
	}

	_, err := env.svc.Bridge(context.Background(), &bridge.Args{
		Kind:          token.KindETH,
		Wallet:        env.wallet,
		SrcChainID:    srcChainID,
		DestChainID:   disabledChainID,
		To:            owner,
		Amount:        big.NewInt(1),
		ProcessingFee: big.NewInt(1),
	})
	require.Error(t, err)

	var typed *bridgeerr.Error
	require.True(t, errors.As(err, &typed))
	require.Equal(t, bridgeerr.KindContractRevert, typed.Kind)
	require.Equal(t, "B:destChainId", typed.Reason)
	require.True(t, typed.Terminal)
	require.True(t, bridgeerr.IsTerminal(err))
	env.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestETHBridge_Bridge_Preconditions(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name          string
		walletChainID uint64
		destChainID   uint64
		expected      bridgeerr.Kind
	}{
		{"wallet on another chain", destChainID, destChainID, bridgeerr.KindUnsupportedChain},
		{"no route", srcChainID, 1, bridgeerr.KindUnsupportedChain},
		{"same chain", srcChainID, srcChainID, bridgeerr.KindUnsupportedChain},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, tc.walletChainID)
			_, err := env.svc.Bridge(context.Background(), &bridge.Args{
				Kind:        token.KindETH,
				Wallet:      env.wallet,
				SrcChainID:  srcChainID,
				DestChainID: tc.destChainID,
				Amount:      big.NewInt(1),
			})
			require.Equal(t, tc.expected, bridgeerr.KindOf(err))
			require.Zero(t, env.src.Calls("eth_estimateGas"))
		})
	}
}

func TestETHBridge_Bridge_UserRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, srcChainID)
	env.wallet.On("SendTransaction", mock.Anything, mock.Anything).Return(common.Hash{}, userRejectedError{})

	_, err := env.svc.Bridge(context.Background(), &bridge.Args{
		Kind:        token.KindETH,
		Wallet:      env.wallet,
		SrcChainID:  srcChainID,
		DestChainID: destChainID,
		Amount:      big.NewInt(1),
	})
	require.True(t, bridgeerr.Is(err, bridgeerr.KindUserRejected))
	require.True(t, bridgeerr.IsTerminal(err))
}

func TestBridge_Claim_New(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, destChainID)
	env.setStatus(entity.MessageStatusNew)
	msg := testMessage()

	env.prover.On("GenerateProof", mock.Anything, &proof.Request{
		MsgHash:                   msgHash,
		Sender:                    srcBridge,
		SrcBridgeAddress:          srcBridge,
		SrcChainID:                srcChainID,
		DestChainID:               destChainID,
		DestCrossChainSyncAddress: destCrossSync,
		SrcSignalServiceAddress:   srcSignalService,
	}).Return(testProof, nil).Once()
	env.wallet.On("SendTransaction", mock.Anything, mock.MatchedBy(func(tx *wallet.TxRequest) bool {
		if *tx.To != destBridge || tx.Gas != 0 {
			return false
		}
		method := bridgeabi.BridgeABI.Methods["processMessage"]
		if !bytes.HasPrefix(tx.Data, method.ID) {
			return false
		}
		values, err := method.Inputs.Unpack(tx.Data[4:])
		return err == nil && bytes.Equal(values[1].([]byte), testProof)
	})).Return(txHash, nil).Once()

	handle, err := env.svc.Claim(context.Background(), token.KindETH, &bridge.ClaimArgs{
		Wallet:  env.wallet,
		MsgHash: msgHash,
		Message: msg,
	})
	require.NoError(t, err)
	require.Equal(t, &bridge.TxHandle{Hash: txHash, ChainID: destChainID, Kind: token.KindETH}, handle)
	env.prover.AssertExpectations(t)
	env.wallet.AssertExpectations(t)
}

func TestBridge_Claim_Retriable(t *testing.T) {
	t.Parallel()

	for _, kind := range token.Kinds {
		kind := kind
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, destChainID)
			env.setStatus(entity.MessageStatusRetriable)
			env.wallet.On("SendTransaction", mock.Anything, txCalling(destBridge, bridgeabi.BridgeABI, "retryMessage")).
				Return(txHash, nil).Once()

			_, err := env.svc.Claim(context.Background(), kind, &bridge.ClaimArgs{
				Wallet:  env.wallet,
				MsgHash: msgHash,
				Message: testMessage(),
			})
			require.NoError(t, err)
			env.wallet.AssertExpectations(t)
			env.prover.AssertNotCalled(t, "GenerateProof", mock.Anything, mock.Anything)
		})
	}
}

func TestBridge_Claim_HighGasLimit(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		kind        token.Kind
		gasLimit    int64
		expectedGas uint64
	}{
		{token.KindETH, 2_500_000, 0},
		{token.KindETH, 2_500_001, 2_500_001},
		{token.KindERC20, 3_000_000, 3_000_000},
		{token.KindERC721, 3_000_000, 0},
		{token.KindERC1155, 3_100_000, 3_100_000},
	} {
		tc := tc
		t.Run(string(tc.kind), func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, destChainID)
			env.setStatus(entity.MessageStatusNew)
			msg := testMessage()
			msg.GasLimit = big.NewInt(tc.gasLimit)

			env.prover.On("GenerateProof", mock.Anything, mock.Anything).Return(testProof, nil)
			env.wallet.On("SendTransaction", mock.Anything, mock.MatchedBy(func(tx *wallet.TxRequest) bool {
				return tx.Gas == tc.expectedGas
			})).Return(txHash, nil).Once()

			_, err := env.svc.Claim(context.Background(), tc.kind, &bridge.ClaimArgs{
				Wallet:  env.wallet,
				MsgHash: msgHash,
				Message: msg,
			})
			require.NoError(t, err)
			env.wallet.AssertExpectations(t)
		})
	}
}

func TestETHBridge_Claim_UnpredictableGas(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, destChainID)
	env.setStatus(entity.MessageStatusNew)
	env.prover.On("GenerateProof", mock.Anything, mock.Anything).Return(testProof, nil).Once()
	env.wallet.On("SendTransaction", mock.Anything, mock.MatchedBy(func(tx *wallet.TxRequest) bool {
		return tx.Gas == 0
	})).Return(common.Hash{}, errors.New("cannot estimate gas; transaction may fail or may require manual gas limit")).Once()
	env.wallet.On("SendTransaction", mock.Anything, mock.MatchedBy(func(tx *wallet.TxRequest) bool {
		return tx.Gas == config.DefaultUnpredictableGasLimit
	})).Return(txHash, nil).Once()

	handle, err := env.svc.Claim(context.Background(), token.KindETH, &bridge.ClaimArgs{
		Wallet:  env.wallet,
		MsgHash: msgHash,
		Message: testMessage(),
	})
	require.NoError(t, err)
	require.Equal(t, txHash, handle.Hash)
	env.wallet.AssertExpectations(t)
	env.prover.AssertNumberOfCalls(t, "GenerateProof", 1)
}

func TestERC20Bridge_Claim_NoGasFallback(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, destChainID)
	env.setStatus(entity.MessageStatusNew)
	env.prover.On("GenerateProof", mock.Anything, mock.Anything).Return(testProof, nil)
	env.wallet.On("SendTransaction", mock.Anything, mock.Anything).
		Return(common.Hash{}, errors.New("cannot estimate gas; transaction may fail or may require manual gas limit"))

	_, err := env.svc.Claim(context.Background(), token.KindERC20, &bridge.ClaimArgs{
		Wallet:  env.wallet,
		MsgHash: msgHash,
		Message: testMessage(),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "ERC20Bridge.Claim")
	env.wallet.AssertNumberOfCalls(t, "SendTransaction", 1)
}

func TestBridge_Claim_Rejected(t *testing.T) {
	t.Parallel()

	notOwned := testMessage()
	notOwned.Owner = recipient

	for _, tc := range []struct {
		name          string
		status        entity.MessageStatus
		msg           *entity.Message
		walletChainID uint64
		expected      bridgeerr.Kind
	}{
		{"done", entity.MessageStatusDone, testMessage(), destChainID, bridgeerr.KindMessageProcessed},
		{"not owner", entity.MessageStatusNew, notOwned, destChainID, bridgeerr.KindNotOwner},
		{"failed", entity.MessageStatusFailed, testMessage(), destChainID, bridgeerr.KindInvalidArgs},
		{"wallet on source chain", entity.MessageStatusNew, testMessage(), srcChainID, bridgeerr.KindUnsupportedChain},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, tc.walletChainID)
			env.setStatus(tc.status)

			_, err := env.svc.Claim(context.Background(), token.KindETH, &bridge.ClaimArgs{
				Wallet:  env.wallet,
				MsgHash: msgHash,
				Message: tc.msg,
			})
			require.Equal(t, tc.expected, bridgeerr.KindOf(err))
			env.prover.AssertNotCalled(t, "GenerateProof", mock.Anything, mock.Anything)
			env.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
		})
	}
}

func TestBridge_Claim_InvalidProof(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, destChainID)
	env.setStatus(entity.MessageStatusNew)
	env.prover.On("GenerateProof", mock.Anything, mock.Anything).
		Return(nil, bridgeerr.New(bridgeerr.KindInvalidProof, "ProofService.GenerateProof", "storage value 0"))

	_, err := env.svc.Claim(context.Background(), token.KindETH, &bridge.ClaimArgs{
		Wallet:  env.wallet,
		MsgHash: msgHash,
		Message: testMessage(),
	})
	require.True(t, errors.Is(err, bridgeerr.ErrInvalidProof))
	require.False(t, bridgeerr.IsTerminal(err))
	env.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestBridge_Release(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		kind   token.Kind
		to     common.Address
		abi    abi.ABI
		method string
	}{
		{token.KindETH, srcBridge, bridgeabi.BridgeABI, "releaseEther"},
		{token.KindERC20, srcERC20Vault, bridgeabi.ERC20VaultABI, "releaseToken"},
		{token.KindERC721, srcERC721Vault, bridgeabi.ERC721VaultABI, "releaseToken"},
		{token.KindERC1155, srcERC1155Vault, bridgeabi.ERC1155VaultABI, "releaseToken"},
	} {
		tc := tc
		t.Run(string(tc.kind), func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, srcChainID)
			env.setStatus(entity.MessageStatusFailed)
			env.src.Handle(srcBridge, bridgeabi.BridgeABI.ABI, "isEtherReleased", ethclienttest.Returns(false))
			env.prover.On("GenerateReleaseProof", mock.Anything, mock.MatchedBy(func(req *proof.ReleaseRequest) bool {
				return req.MsgHash == msgHash && req.DestBridgeAddress == destBridge && req.Sender == srcBridge
			})).Return(testProof, nil).Once()
			env.wallet.On("SendTransaction", mock.Anything, txCalling(tc.to, tc.abi, tc.method)).Return(txHash, nil).Once()

			handle, err := env.svc.Release(context.Background(), tc.kind, &bridge.ClaimArgs{
				Wallet:  env.wallet,
				MsgHash: msgHash,
				Message: testMessage(),
			})
			require.NoError(t, err)
			require.Equal(t, uint64(srcChainID), handle.ChainID)
			env.prover.AssertExpectations(t)
			env.wallet.AssertExpectations(t)
		})
	}
}

func TestETHBridge_Release_AlreadyReleased(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, srcChainID)
	env.setStatus(entity.MessageStatusFailed)
	env.src.Handle(srcBridge, bridgeabi.BridgeABI.ABI, "isEtherReleased", ethclienttest.Returns(true))
	env.prover.On("GenerateReleaseProof", mock.Anything, mock.Anything).Return(testProof, nil).Once()

	_, err := env.svc.Release(context.Background(), token.KindETH, &bridge.ClaimArgs{
		Wallet:  env.wallet,
		MsgHash: msgHash,
		Message: testMessage(),
	})
	require.Equal(t, bridgeerr.KindMessageProcessed, bridgeerr.KindOf(err))
	env.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestBridge_Release_NotFailed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, srcChainID)
	env.setStatus(entity.MessageStatusRetriable)

	_, err := env.svc.Release(context.Background(), token.KindETH, &bridge.ClaimArgs{
		Wallet:  env.wallet,
		MsgHash: msgHash,
		Message: testMessage(),
	})
	require.Equal(t, bridgeerr.KindInvalidArgs, bridgeerr.KindOf(err))
	env.prover.AssertNotCalled(t, "GenerateReleaseProof", mock.Anything, mock.Anything)
}

func TestBridge_For_UnknownKind(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, srcChainID)
	_, err := env.svc.For(token.Kind("ERC777"))
	require.True(t, bridgeerr.Is(err, bridgeerr.KindUnknownTokenType))
}
