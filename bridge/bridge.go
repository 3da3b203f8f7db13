package bridge

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/contract"
	"github.com/omni/tokenbridge-client/entity"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/logging"
	"github.com/omni/tokenbridge-client/proof"
	"github.com/omni/tokenbridge-client/token"
	"github.com/omni/tokenbridge-client/wallet"
)

// Args describes an outgoing transfer. Amount is the ether or ERC20 amount,
// or the ERC1155 amount of TokenIDs[0]. Only TokenIDs[0] is bridged.
type Args struct {
	Kind          token.Kind
	Wallet        wallet.Wallet
	SrcChainID    uint64
	DestChainID   uint64
	To            common.Address
	Token         common.Address
	Amount        *big.Int
	TokenIDs      []*big.Int
	ProcessingFee *big.Int
	Memo          string
	// Deployed reports whether the token already has a bridged counterpart
	// on the destination chain.
	Deployed bool
}

func (a *Args) fee() *big.Int {
	if a.ProcessingFee == nil {
		return new(big.Int)
	}
	return a.ProcessingFee
}

func (a *Args) hasFee() bool {
	return a.ProcessingFee != nil && a.ProcessingFee.Sign() > 0
}

func (a *Args) recipient() common.Address {
	if a.To == (common.Address{}) {
		return a.Wallet.Address()
	}
	return a.To
}

// ClaimArgs identifies a sent message. Message must be the canonical message
// emitted in MessageSent.
type ClaimArgs struct {
	Wallet  wallet.Wallet
	MsgHash common.Hash
	Message *entity.Message
}

// TxHandle identifies a submitted transaction.
type TxHandle struct {
	Hash    common.Hash
	ChainID uint64
	Kind    token.Kind
}

// Bridge is implemented once per token kind.
type Bridge interface {
	Kind() token.Kind
	EstimateGas(ctx context.Context, args *Args) (uint64, error)
	Bridge(ctx context.Context, args *Args) (*TxHandle, error)
	Claim(ctx context.Context, args *ClaimArgs) (*TxHandle, error)
	Release(ctx context.Context, args *ClaimArgs) (*TxHandle, error)
	// RequiresApproval reports whether Approve must run before Bridge.
	RequiresApproval(ctx context.Context, args *Args) (bool, error)
	Approve(ctx context.Context, args *Args) (*TxHandle, error)
}

// core holds what the token kinds share: chain lookups, the claim and
// release flows and error shaping.
type core struct {
	kind    token.Kind
	logger  logging.Logger
	cfg     *config.Config
	clients ethclient.Clients
	prover  proof.Prover
	gas     *GasPolicy
}

func (c *core) Kind() token.Kind {
	return c.kind
}

func (c *core) chain(op string, chainID uint64) (*config.ChainConfig, ethclient.Client, error) {
	chain := c.cfg.GetChainConfig(chainID)
	if chain == nil || chain.Disabled {
		return nil, nil, bridgeerr.New(bridgeerr.KindUnsupportedChain, op, fmt.Sprintf("chain %d is not supported", chainID))
	}
	client, err := c.clients.Get(chainID)
	if err != nil {
		return nil, nil, bridgeerr.Wrap(bridgeerr.KindUnsupportedChain, op, err)
	}
	return chain, client, nil
}

// route resolves the source chain of an outgoing transfer and checks that
// the wallet is connected to it.
func (c *core) route(op string, args *Args) (*config.ChainConfig, ethclient.Client, error) {
	if args.Wallet == nil || args.Wallet.Address() == (common.Address{}) {
		return nil, nil, bridgeerr.New(bridgeerr.KindInvalidArgs, op, "wallet is not connected")
	}
	src, client, err := c.chain(op, args.SrcChainID)
	if err != nil {
		return nil, nil, err
	}
	if !src.RoutesTo(args.DestChainID) {
		return nil, nil, bridgeerr.New(bridgeerr.KindUnsupportedChain, op,
			fmt.Sprintf("no route from chain %d to chain %d", args.SrcChainID, args.DestChainID))
	}
	if err := checkWalletChain(op, args.Wallet, args.SrcChainID); err != nil {
		return nil, nil, err
	}
	return src, client, nil
}

func checkWalletChain(op string, w wallet.Wallet, chainID uint64) error {
	if w.ChainID() != chainID {
		return bridgeerr.New(bridgeerr.KindUnsupportedChain, op,
			fmt.Sprintf("wallet is connected to chain %d, expected chain %d", w.ChainID(), chainID))
	}
	return nil
}

func (c *core) handle(hash common.Hash, chainID uint64) *TxHandle {
	return &TxHandle{Hash: hash, ChainID: chainID, Kind: c.kind}
}

// fail classifies err and adds the operation name. Typed errors already
// carry it.
func fail(op string, err error) error {
	err = bridgeerr.Classify(op, err)
	if bridgeerr.KindOf(err) != bridgeerr.KindUnknown {
		return err
	}
	return errors.Wrap(err, op)
}

type claimTarget struct {
	src        *config.ChainConfig
	dest       *config.ChainConfig
	destBridge *contract.BridgeContract
	status     entity.MessageStatus
}

// beforeClaiming loads the destination status and checks that the wallet
// may act on the message.
func (c *core) beforeClaiming(ctx context.Context, op string, args *ClaimArgs) (*claimTarget, error) {
	msg := args.Message
	if msg == nil {
		return nil, bridgeerr.New(bridgeerr.KindInvalidArgs, op, "message is required")
	}
	if args.Wallet == nil || args.Wallet.Address() == (common.Address{}) {
		return nil, bridgeerr.New(bridgeerr.KindInvalidArgs, op, "wallet is not connected")
	}
	src, _, err := c.chain(op, msg.SrcChainID)
	if err != nil {
		return nil, err
	}
	dest, destClient, err := c.chain(op, msg.DestChainID)
	if err != nil {
		return nil, err
	}
	destBridge := contract.NewBridgeContract(destClient, dest.BridgeAddress)
	status, err := destBridge.GetMessageStatus(ctx, args.MsgHash)
	if err != nil {
		return nil, fail(op, err)
	}
	if status == entity.MessageStatusDone {
		return nil, bridgeerr.New(bridgeerr.KindMessageProcessed, op, "message already processed")
	}
	if msg.Owner != args.Wallet.Address() {
		return nil, bridgeerr.New(bridgeerr.KindNotOwner, op,
			fmt.Sprintf("message belongs to %s", msg.Owner))
	}
	return &claimTarget{
		src:        src,
		dest:       dest,
		destBridge: destBridge,
		status:     status,
	}, nil
}

// claim processes a NEW message with a fresh proof or retries a RETRIABLE
// one. unpredictableGas enables one resubmission with the fixed gas limit
// when the wallet cannot estimate the processMessage gas.
func (c *core) claim(ctx context.Context, op string, args *ClaimArgs, unpredictableGas bool) (*TxHandle, error) {
	target, err := c.beforeClaiming(ctx, op, args)
	if err != nil {
		return nil, err
	}
	msg := args.Message
	logger := c.logger.WithFields(logrus.Fields{
		"msg_hash":      args.MsgHash,
		"src_chain_id":  msg.SrcChainID,
		"dest_chain_id": msg.DestChainID,
		"status":        target.status,
	})

	switch target.status {
	case entity.MessageStatusFailed:
		return nil, bridgeerr.New(bridgeerr.KindInvalidArgs, op, "message failed, release it instead")
	case entity.MessageStatusRetriable:
		if err = checkWalletChain(op, args.Wallet, msg.DestChainID); err != nil {
			return nil, err
		}
		logger.Info("retrying message")
		hash, err2 := target.destBridge.RetryMessage(ctx, args.Wallet, msg, true, 0)
		if err2 != nil {
			return nil, fail(op, err2)
		}
		return c.handle(hash, msg.DestChainID), nil
	case entity.MessageStatusNew:
	default:
		return nil, bridgeerr.New(bridgeerr.KindInvalidArgs, op, fmt.Sprintf("unexpected message status %s", target.status))
	}

	if err = checkWalletChain(op, args.Wallet, msg.DestChainID); err != nil {
		return nil, err
	}
	signalProof, err := c.prover.GenerateProof(ctx, &proof.Request{
		MsgHash:                   args.MsgHash,
		Sender:                    target.src.BridgeAddress,
		SrcBridgeAddress:          target.src.BridgeAddress,
		SrcChainID:                msg.SrcChainID,
		DestChainID:               msg.DestChainID,
		DestCrossChainSyncAddress: target.dest.CrossChainSyncAddress,
		SrcSignalServiceAddress:   target.src.SignalServiceAddress,
	})
	if err != nil {
		return nil, fail(op, err)
	}

	gas := c.gas.ClaimGas(c.kind, msg.GasLimit)
	logger.WithField("gas", gas).Info("processing message")
	hash, err := target.destBridge.ProcessMessage(ctx, args.Wallet, msg, signalProof, gas)
	if err != nil && unpredictableGas && gas == 0 && isUnpredictableGas(op, err) {
		logger.WithError(err).Warn("can't estimate processMessage gas, resubmitting with fixed gas limit")
		hash, err = target.destBridge.ProcessMessage(ctx, args.Wallet, msg, signalProof, c.gas.cfg.UnpredictableGasLimit)
	}
	if err != nil {
		return nil, fail(op, err)
	}
	return c.handle(hash, msg.DestChainID), nil
}

var unpredictableGasMarkers = []string{
	"cannot estimate gas",
	"gas required exceeds allowance",
	"unpredictable_gas_limit",
}

// isUnpredictableGas reports whether the wallet failed to estimate gas. A
// validation revert is never retried.
func isUnpredictableGas(op string, err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range unpredictableGasMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	classified := bridgeerr.Classify(op, err)
	var typed *bridgeerr.Error
	return errors.As(classified, &typed) && typed.Kind == bridgeerr.KindContractRevert && !typed.Terminal
}

type releaseFunc func(ctx context.Context, srcClient ethclient.Client, src *config.ChainConfig, msg *entity.Message, signalProof []byte) (common.Hash, error)

// release returns the value of a FAILED message to its owner on the source
// chain.
func (c *core) release(ctx context.Context, op string, args *ClaimArgs, send releaseFunc) (*TxHandle, error) {
	target, err := c.beforeClaiming(ctx, op, args)
	if err != nil {
		return nil, err
	}
	msg := args.Message
	if target.status != entity.MessageStatusFailed {
		return nil, bridgeerr.New(bridgeerr.KindInvalidArgs, op,
			fmt.Sprintf("message status is %s, only failed messages can be released", target.status))
	}
	if err = checkWalletChain(op, args.Wallet, msg.SrcChainID); err != nil {
		return nil, err
	}
	signalProof, err := c.prover.GenerateReleaseProof(ctx, &proof.ReleaseRequest{
		MsgHash:                  args.MsgHash,
		Sender:                   target.src.BridgeAddress,
		DestBridgeAddress:        target.dest.BridgeAddress,
		SrcChainID:               msg.SrcChainID,
		DestChainID:              msg.DestChainID,
		SrcCrossChainSyncAddress: target.src.CrossChainSyncAddress,
	})
	if err != nil {
		return nil, fail(op, err)
	}
	_, srcClient, err := c.chain(op, msg.SrcChainID)
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"msg_hash":     args.MsgHash,
		"src_chain_id": msg.SrcChainID,
	}).Info("releasing message value")
	hash, err := send(ctx, srcClient, target.src, msg, signalProof)
	if err != nil {
		return nil, fail(op, err)
	}
	return c.handle(hash, msg.SrcChainID), nil
}

// preflight estimates the transfer before it is sent so that validation
// reverts surface without a wallet prompt.
func preflight(op string, estimate func() (uint64, error)) (uint64, error) {
	gas, err := estimate()
	if err != nil {
		return 0, fail(op, err)
	}
	return gas, nil
}

// firstTokenID returns the single token id a call bridges.
func firstTokenID(op string, args *Args) (*big.Int, error) {
	if len(args.TokenIDs) == 0 || args.TokenIDs[0] == nil {
		return nil, bridgeerr.New(bridgeerr.KindInvalidArgs, op, "token id is required")
	}
	return args.TokenIDs[0], nil
}
