package bridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/logging"
	"github.com/omni/tokenbridge-client/proof"
	"github.com/omni/tokenbridge-client/token"
)

// Service dispatches bridge operations to the implementation of the token
// kind.
type Service struct {
	cfg      *config.Config
	clients  ethclient.Clients
	detector *token.Detector
	gas      *GasPolicy
	bridges  map[token.Kind]Bridge
}

func NewService(logger logging.Logger, cfg *config.Config, clients ethclient.Clients, prover proof.Prover, detector *token.Detector) *Service {
	logger = logger.WithField("service", "bridge")
	gas := NewGasPolicy(cfg.Gas)
	newCore := func(kind token.Kind) core {
		return core{
			kind:    kind,
			logger:  logger.WithField("kind", kind),
			cfg:     cfg,
			clients: clients,
			prover:  prover,
			gas:     gas,
		}
	}
	return &Service{
		cfg:      cfg,
		clients:  clients,
		detector: detector,
		gas:      gas,
		bridges: map[token.Kind]Bridge{
			token.KindETH:     &ETHBridge{newCore(token.KindETH)},
			token.KindERC20:   &ERC20Bridge{vaultBridge{newCore(token.KindERC20), erc20TransferOp}},
			token.KindERC721:  &ERC721Bridge{vaultBridge{newCore(token.KindERC721), erc721TransferOp}},
			token.KindERC1155: &ERC1155Bridge{vaultBridge{newCore(token.KindERC1155), erc1155TransferOp}},
		},
	}
}

// For returns the bridge of the token kind.
func (s *Service) For(kind token.Kind) (Bridge, error) {
	b, ok := s.bridges[kind]
	if !ok {
		return nil, bridgeerr.New(bridgeerr.KindUnknownTokenType, "bridge.For", fmt.Sprintf("unsupported token kind %q", kind))
	}
	return b, nil
}

// ResolveArgs detects the token kind when it is not set and whether the
// token is already deployed on the destination chain.
func (s *Service) ResolveArgs(ctx context.Context, args *Args) error {
	const op = "bridge.ResolveArgs"
	if args.Kind == "" {
		if args.Token == (common.Address{}) {
			args.Kind = token.KindETH
		} else {
			kind, err := s.detector.DetectContractType(ctx, args.SrcChainID, args.Token)
			if err != nil {
				return err
			}
			args.Kind = kind
		}
	}
	if args.Kind == token.KindETH {
		args.Deployed = true
		return nil
	}
	dest := s.cfg.GetChainConfig(args.DestChainID)
	if dest == nil {
		return bridgeerr.New(bridgeerr.KindUnsupportedChain, op, fmt.Sprintf("chain %d is not supported", args.DestChainID))
	}
	deployed, err := s.detector.IsDeployedCrossChain(ctx, args.Kind, args.Token, args.SrcChainID, dest)
	if err != nil {
		return err
	}
	args.Deployed = deployed
	return nil
}

// RecommendProcessingFee prices the relayer gas budget of a transfer at the
// destination chain gas price.
func (s *Service) RecommendProcessingFee(ctx context.Context, kind token.Kind, destChainID uint64, deployed bool) (*big.Int, error) {
	const op = "bridge.RecommendProcessingFee"
	if _, err := s.For(kind); err != nil {
		return nil, err
	}
	client, err := s.clients.Get(destChainID)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindUnsupportedChain, op, err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fail(op, err)
	}
	return s.gas.ProcessingFee(kind, deployed, gasPrice), nil
}

func (s *Service) EstimateGas(ctx context.Context, args *Args) (uint64, error) {
	b, err := s.For(args.Kind)
	if err != nil {
		return 0, err
	}
	return b.EstimateGas(ctx, args)
}

func (s *Service) Bridge(ctx context.Context, args *Args) (*TxHandle, error) {
	b, err := s.For(args.Kind)
	if err != nil {
		return nil, err
	}
	return b.Bridge(ctx, args)
}

func (s *Service) Claim(ctx context.Context, kind token.Kind, args *ClaimArgs) (*TxHandle, error) {
	b, err := s.For(kind)
	if err != nil {
		return nil, err
	}
	return b.Claim(ctx, args)
}

func (s *Service) Release(ctx context.Context, kind token.Kind, args *ClaimArgs) (*TxHandle, error) {
	b, err := s.For(kind)
	if err != nil {
		return nil, err
	}
	return b.Release(ctx, args)
}

func (s *Service) RequiresApproval(ctx context.Context, args *Args) (bool, error) {
	b, err := s.For(args.Kind)
	if err != nil {
		return false, err
	}
	return b.RequiresApproval(ctx, args)
}

func (s *Service) Approve(ctx context.Context, args *Args) (*TxHandle, error) {
	b, err := s.For(args.Kind)
	if err != nil {
		return nil, err
	}
	return b.Approve(ctx, args)
}
