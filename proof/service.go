package proof

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/contract"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/logging"
)

// Storage values recorded for a message signal, in the exact form
// eth_getProof returns them.
const (
	SentSignalValue    = "0x1"
	ReleaseSignalValue = "0x3"
)

type Request struct {
	MsgHash                   common.Hash
	Sender                    common.Address
	SrcBridgeAddress          common.Address
	SrcChainID                uint64
	DestChainID               uint64
	DestCrossChainSyncAddress common.Address
	SrcSignalServiceAddress   common.Address
}

type ReleaseRequest struct {
	MsgHash                  common.Hash
	Sender                   common.Address
	DestBridgeAddress        common.Address
	SrcChainID               uint64
	DestChainID              uint64
	SrcCrossChainSyncAddress common.Address
}

// Prover produces signal proofs for claim and release transactions.
type Prover interface {
	GenerateProof(ctx context.Context, req *Request) ([]byte, error)
	GenerateReleaseProof(ctx context.Context, req *ReleaseRequest) ([]byte, error)
}

// Service never caches proofs: a proof is bound to the currently synced
// header and becomes stale once it advances. RPC failures are returned to
// the caller without retries.
type Service struct {
	logger  logging.Logger
	clients ethclient.Clients
}

func NewService(logger logging.Logger, clients ethclient.Clients) *Service {
	return &Service{
		logger:  logger.WithField("service", "proof"),
		clients: clients,
	}
}

// StorageKey is keccak256(abi.encodePacked(sender, msgHash)).
func StorageKey(sender common.Address, msgHash common.Hash) common.Hash {
	return crypto.Keccak256Hash(sender.Bytes(), msgHash.Bytes())
}

// GenerateProof proves that the source signal service recorded the message
// at the header last synced to the destination chain.
func (s *Service) GenerateProof(ctx context.Context, req *Request) ([]byte, error) {
	proof, err := s.generate(ctx, "ProofService.GenerateProof", proofTarget{
		msgHash:       req.MsgHash,
		sender:        req.Sender,
		syncChainID:   req.DestChainID,
		syncAddress:   req.DestCrossChainSyncAddress,
		proofChainID:  req.SrcChainID,
		proofAccount:  req.SrcSignalServiceAddress,
		expectedValue: SentSignalValue,
	})
	ObserveProof("send", err)
	return proof, err
}

// GenerateReleaseProof proves that the destination bridge recorded the
// message as failed, at the header last synced to the source chain.
func (s *Service) GenerateReleaseProof(ctx context.Context, req *ReleaseRequest) ([]byte, error) {
	proof, err := s.generate(ctx, "ProofService.GenerateReleaseProof", proofTarget{
		msgHash:       req.MsgHash,
		sender:        req.Sender,
		syncChainID:   req.SrcChainID,
		syncAddress:   req.SrcCrossChainSyncAddress,
		proofChainID:  req.DestChainID,
		proofAccount:  req.DestBridgeAddress,
		expectedValue: ReleaseSignalValue,
	})
	ObserveProof("release", err)
	return proof, err
}

type proofTarget struct {
	msgHash       common.Hash
	sender        common.Address
	syncChainID   uint64
	syncAddress   common.Address
	proofChainID  uint64
	proofAccount  common.Address
	expectedValue string
}

func (s *Service) generate(ctx context.Context, op string, target proofTarget) ([]byte, error) {
	syncClient, err := s.clients.Get(target.syncChainID)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindUnsupportedChain, op, err)
	}
	proofClient, err := s.clients.Get(target.proofChainID)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindUnsupportedChain, op, err)
	}
	key := StorageKey(target.sender, target.msgHash)
	logger := s.logger.WithFields(logrus.Fields{
		"msg_hash":       target.msgHash,
		"proof_chain_id": target.proofChainID,
		"account":        target.proofAccount,
		"storage_key":    key,
	})

	syncContract := contract.NewCrossChainSyncContract(syncClient, target.syncAddress)
	blockHash, err := syncContract.GetCrossChainBlockHash(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("can't get synced block hash: %w", err)
	}

	var header *types.Header
	var accountProof *ethclient.AccountProof
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err2 error
		header, err2 = proofClient.HeaderByHash(gctx, blockHash)
		if err2 != nil {
			return fmt.Errorf("can't get block %s: %w", blockHash, err2)
		}
		return nil
	})
	g.Go(func() error {
		var err2 error
		accountProof, err2 = proofClient.GetProof(gctx, target.proofAccount, []common.Hash{key}, blockHash)
		if err2 != nil {
			return fmt.Errorf("can't get storage proof: %w", err2)
		}
		return nil
	})
	if err = g.Wait(); err != nil {
		return nil, err
	}

	if len(accountProof.StorageProof) == 0 {
		return nil, bridgeerr.New(bridgeerr.KindInvalidProof, op, "empty storage proof")
	}
	storage := accountProof.StorageProof[0]
	if storage.Value.Hex() != target.expectedValue {
		logger.WithField("value", storage.Value.Hex()).Warn("unexpected signal storage value")
		return nil, bridgeerr.New(bridgeerr.KindInvalidProof, op,
			fmt.Sprintf("storage value %q at block %s, expected %s", storage.Value.Hex(), blockHash, target.expectedValue))
	}

	nodes := make([][]byte, len(storage.Proof))
	for i, node := range storage.Proof {
		nodes[i] = node
	}
	encodedNodes, err := rlp.EncodeToBytes(nodes)
	if err != nil {
		return nil, fmt.Errorf("can't rlp encode storage proof: %w", err)
	}
	res, err := EncodeSignalProof(&SignalProof{
		Header: NewBlockHeader(header),
		Proof:  encodedNodes,
	})
	if err != nil {
		return nil, err
	}
	logger.WithField("block_hash", blockHash).Debug("generated signal proof")
	return res, nil
}
