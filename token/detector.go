package token

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/contract"
	"github.com/omni/tokenbridge-client/contract/bridgeabi"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/logging"
)

const invalidTokenIDReason = "ERC721: invalid token ID"

var nonexistentTokenSelector = bridgeabi.ERC721ABI.Errors["ERC721NonexistentToken"].ID.Bytes()[:4]

type cacheKey struct {
	chainID uint64
	address common.Address
}

// Detector probes token contracts for their interface. Results are cached,
// probe failures caused by the network are not.
type Detector struct {
	logger  logging.Logger
	clients ethclient.Clients
	cache   *lru.Cache
}

func NewDetector(logger logging.Logger, clients ethclient.Clients, cacheSize int) (*Detector, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("can't create token kind cache: %w", err)
	}
	return &Detector{
		logger:  logger.WithField("service", "token_detector"),
		clients: clients,
		cache:   cache,
	}, nil
}

// DetectContractType probes ERC721 ownerOf(0), then ERC1155
// isApprovedForAll(0x0, 0x0), then ERC20 balanceOf(0x0).
func (d *Detector) DetectContractType(ctx context.Context, chainID uint64, addr common.Address) (Kind, error) {
	const op = "token.DetectContractType"
	key := cacheKey{chainID, addr}
	if kind, ok := d.cache.Get(key); ok {
		return kind.(Kind), nil
	}
	client, err := d.clients.Get(chainID)
	if err != nil {
		return "", bridgeerr.Wrap(bridgeerr.KindUnsupportedChain, op, err)
	}
	logger := d.logger.WithFields(logrus.Fields{
		"chain_id": chainID,
		"token":    addr,
	})

	probes := []struct {
		kind  Kind
		probe func(ctx context.Context) (bool, error)
	}{
		{KindERC721, func(ctx context.Context) (bool, error) { return isERC721(ctx, contract.NewERC721Contract(client, addr)) }},
		{KindERC1155, func(ctx context.Context) (bool, error) { return isERC1155(ctx, contract.NewERC1155Contract(client, addr)) }},
		{KindERC20, func(ctx context.Context) (bool, error) { return isERC20(ctx, contract.NewERC20Contract(client, addr)) }},
	}
	for _, p := range probes {
		ok, err := p.probe(ctx)
		if err != nil {
			return "", err
		}
		if ok {
			logger.WithField("kind", p.kind).Debug("detected token kind")
			d.cache.Add(key, p.kind)
			return p.kind, nil
		}
	}
	logger.Warn("unable to determine token kind")
	return "", bridgeerr.New(bridgeerr.KindUnknownTokenType, op, addr.String())
}

// probeFailed distinguishes a contract rejecting the probe from a
// failure to reach the node.
func probeFailed(op string, err error) error {
	classified := bridgeerr.Classify(op, err)
	if bridgeerr.Is(classified, bridgeerr.KindNetwork) {
		return classified
	}
	return nil
}

func isERC721(ctx context.Context, c *contract.ERC721Contract) (bool, error) {
	_, err := c.OwnerOf(ctx, new(big.Int))
	if err == nil {
		return true, nil
	}
	if isNonexistentTokenRevert(err) {
		return true, nil
	}
	return false, probeFailed("token.isERC721", err)
}

func isNonexistentTokenRevert(err error) bool {
	if strings.Contains(err.Error(), invalidTokenIDReason) {
		return true
	}
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return false
	}
	data, ok := dataErr.ErrorData().(string)
	if !ok {
		return false
	}
	blob, decodeErr := hexutil.Decode(data)
	if decodeErr != nil || len(blob) < 4 {
		return false
	}
	if bytes.Equal(blob[:4], nonexistentTokenSelector) {
		return true
	}
	reason, ok := bridgeerr.DecodeRevert(blob)
	return ok && strings.Contains(reason, invalidTokenIDReason)
}

func isERC1155(ctx context.Context, c *contract.ERC1155Contract) (bool, error) {
	_, err := c.IsApprovedForAll(ctx, common.Address{}, common.Address{})
	if err == nil {
		return true, nil
	}
	return false, probeFailed("token.isERC1155", err)
}

func isERC20(ctx context.Context, c *contract.ERC20Contract) (bool, error) {
	_, err := c.BalanceOf(ctx, common.Address{})
	if err == nil {
		return true, nil
	}
	return false, probeFailed("token.isERC20", err)
}
