package bridge

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/contract"
	"github.com/omni/tokenbridge-client/entity"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/token"
)

// ETHBridge sends native ether through the bridge contract itself.
type ETHBridge struct {
	core
}

var _ Bridge = (*ETHBridge)(nil)

// NewMessage builds the message sendMessage submits for args. The whole
// amount is a deposit when the wallet sends to itself, otherwise it is the
// call value delivered to To.
func (b *ETHBridge) NewMessage(args *Args) *entity.Message {
	owner := args.Wallet.Address()
	to := args.recipient()
	amount := args.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	msg := &entity.Message{
		ID:            new(big.Int),
		Sender:        owner,
		SrcChainID:    args.SrcChainID,
		DestChainID:   args.DestChainID,
		Owner:         owner,
		To:            to,
		RefundAddress: owner,
		DepositValue:  new(big.Int),
		CallValue:     new(big.Int),
		ProcessingFee: args.fee(),
		GasLimit:      new(big.Int).SetUint64(b.gas.GasLimit(token.KindETH, true, args.hasFee())),
		Data:          []byte{},
		Memo:          args.Memo,
	}
	if to == owner {
		msg.DepositValue = amount
	} else {
		msg.CallValue = amount
	}
	return msg
}

func (b *ETHBridge) prepare(op string, args *Args) (*contract.BridgeContract, *entity.Message, error) {
	src, client, err := b.route(op, args)
	if err != nil {
		return nil, nil, err
	}
	msg := b.NewMessage(args)
	if err = msg.Validate(args.SrcChainID); err != nil {
		return nil, nil, bridgeerr.Wrap(bridgeerr.KindInvalidArgs, op, err)
	}
	return contract.NewBridgeContract(client, src.BridgeAddress), msg, nil
}

func (b *ETHBridge) EstimateGas(ctx context.Context, args *Args) (uint64, error) {
	const op = "ETHBridge.EstimateGas"
	bridge, msg, err := b.prepare(op, args)
	if err != nil {
		return 0, err
	}
	return preflight(op, func() (uint64, error) {
		return bridge.EstimateSendMessage(ctx, args.Wallet.Address(), msg)
	})
}

func (b *ETHBridge) Bridge(ctx context.Context, args *Args) (*TxHandle, error) {
	const op = "ETHBridge.Bridge"
	bridge, msg, err := b.prepare(op, args)
	if err != nil {
		return nil, err
	}
	gas, err := preflight(op, func() (uint64, error) {
		return bridge.EstimateSendMessage(ctx, args.Wallet.Address(), msg)
	})
	if err != nil {
		return nil, err
	}
	b.logger.WithFields(logrus.Fields{
		"dest_chain_id": args.DestChainID,
		"to":            msg.To,
		"value":         msg.TotalValue().String(),
	}).Info("sending ether")
	hash, err := bridge.SendMessage(ctx, args.Wallet, msg, gas)
	if err != nil {
		return nil, fail(op, err)
	}
	return b.handle(hash, args.SrcChainID), nil
}

func (b *ETHBridge) Claim(ctx context.Context, args *ClaimArgs) (*TxHandle, error) {
	return b.claim(ctx, "ETHBridge.Claim", args, true)
}

func (b *ETHBridge) Release(ctx context.Context, args *ClaimArgs) (*TxHandle, error) {
	return b.release(ctx, "ETHBridge.Release", args,
		func(ctx context.Context, client ethclient.Client, src *config.ChainConfig, msg *entity.Message, signalProof []byte) (common.Hash, error) {
			srcBridge := contract.NewBridgeContract(client, src.BridgeAddress)
			released, err := srcBridge.IsEtherReleased(ctx, args.MsgHash)
			if err != nil {
				return common.Hash{}, err
			}
			if released {
				return common.Hash{}, bridgeerr.New(bridgeerr.KindMessageProcessed, "ETHBridge.Release", "ether already released")
			}
			return srcBridge.ReleaseEther(ctx, args.Wallet, msg, signalProof)
		})
}

func (b *ETHBridge) RequiresApproval(context.Context, *Args) (bool, error) {
	return false, nil
}

func (b *ETHBridge) Approve(context.Context, *Args) (*TxHandle, error) {
	return nil, bridgeerr.New(bridgeerr.KindNoApprovalRequired, "ETHBridge.Approve", "ether does not need approval")
}
