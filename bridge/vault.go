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

// vaultBridge is the sendToken flow shared by the token kinds. transferOp
// fills the kind specific amount fields.
type vaultBridge struct {
	core
	transferOp func(op string, args *Args, base *contract.TransferOp) error
}

type vaultCall struct {
	chain  *config.ChainConfig
	client ethclient.Client
	vault  *contract.VaultContract
	op     *contract.TransferOp
}

func (b *vaultBridge) prepare(op string, args *Args) (*vaultCall, error) {
	src, client, err := b.route(op, args)
	if err != nil {
		return nil, err
	}
	if args.Token == (common.Address{}) {
		return nil, bridgeerr.New(bridgeerr.KindInvalidArgs, op, "token address is required")
	}
	if args.ProcessingFee != nil && args.ProcessingFee.Sign() < 0 {
		return nil, bridgeerr.Wrap(bridgeerr.KindInvalidArgs, op, entity.ErrNegativeValue)
	}
	transfer := &contract.TransferOp{
		DestChainID:   args.DestChainID,
		To:            args.recipient(),
		Token:         args.Token,
		GasLimit:      new(big.Int).SetUint64(b.gas.GasLimit(b.kind, args.Deployed, args.hasFee())),
		ProcessingFee: args.fee(),
		RefundTo:      args.Wallet.Address(),
		Memo:          args.Memo,
	}
	if err = b.transferOp(op, args, transfer); err != nil {
		return nil, err
	}
	return &vaultCall{
		chain:  src,
		client: client,
		vault:  token.NewVault(client, src, b.kind),
		op:     transfer,
	}, nil
}

func (b *vaultBridge) EstimateGas(ctx context.Context, args *Args) (uint64, error) {
	op := string(b.kind) + "Bridge.EstimateGas"
	call, err := b.prepare(op, args)
	if err != nil {
		return 0, err
	}
	return preflight(op, func() (uint64, error) {
		return call.vault.EstimateSendToken(ctx, args.Wallet.Address(), call.op)
	})
}

// send submits sendToken with value = processing fee once checkApproval
// passes.
func (b *vaultBridge) send(ctx context.Context, op string, args *Args, checkApproval func(*vaultCall) error) (*TxHandle, error) {
	call, err := b.prepare(op, args)
	if err != nil {
		return nil, err
	}
	if err = checkApproval(call); err != nil {
		return nil, err
	}
	gas, err := preflight(op, func() (uint64, error) {
		return call.vault.EstimateSendToken(ctx, args.Wallet.Address(), call.op)
	})
	if err != nil {
		return nil, err
	}
	b.logger.WithFields(logrus.Fields{
		"kind":          b.kind,
		"token":         args.Token,
		"dest_chain_id": args.DestChainID,
		"gas_limit":     call.op.GasLimit.String(),
	}).Info("sending token")
	hash, err := call.vault.SendToken(ctx, args.Wallet, call.op, gas)
	if err != nil {
		return nil, fail(op, err)
	}
	return b.handle(hash, args.SrcChainID), nil
}

func (b *vaultBridge) Claim(ctx context.Context, args *ClaimArgs) (*TxHandle, error) {
	return b.claim(ctx, string(b.kind)+"Bridge.Claim", args, false)
}

func (b *vaultBridge) Release(ctx context.Context, args *ClaimArgs) (*TxHandle, error) {
	return b.release(ctx, string(b.kind)+"Bridge.Release", args,
		func(ctx context.Context, client ethclient.Client, src *config.ChainConfig, msg *entity.Message, signalProof []byte) (common.Hash, error) {
			return token.NewVault(client, src, b.kind).ReleaseToken(ctx, args.Wallet, msg, signalProof)
		})
}

// approvalArgs resolves the source chain token and vault an approval is
// checked against.
func (b *vaultBridge) approvalArgs(op string, args *Args) (ethclient.Client, common.Address, error) {
	src, client, err := b.route(op, args)
	if err != nil {
		return nil, common.Address{}, err
	}
	if args.Token == (common.Address{}) {
		return nil, common.Address{}, bridgeerr.New(bridgeerr.KindInvalidArgs, op, "token address is required")
	}
	return client, token.VaultAddress(src, b.kind), nil
}
