package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/tokenbridge-client/contract/bridgeabi"
	"github.com/omni/tokenbridge-client/entity"
	"github.com/omni/tokenbridge-client/ethclient"
)

type BridgeContract struct {
	*Contract
}

func NewBridgeContract(client ethclient.Client, addr common.Address) *BridgeContract {
	return &BridgeContract{NewContract(client, addr, bridgeabi.BridgeABI)}
}

func (c *BridgeContract) GetMessageStatus(ctx context.Context, msgHash common.Hash) (entity.MessageStatus, error) {
	res, err := c.Call(ctx, "getMessageStatus", msgHash)
	if err != nil {
		return 0, fmt.Errorf("cannot obtain message status: %w", err)
	}
	status, ok := res[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected message status type %T", res[0])
	}
	return entity.MessageStatus(status), nil
}

func (c *BridgeContract) IsEtherReleased(ctx context.Context, msgHash common.Hash) (bool, error) {
	res, err := c.Call(ctx, "isEtherReleased", msgHash)
	if err != nil {
		return false, fmt.Errorf("cannot check ether release: %w", err)
	}
	released, _ := res[0].(bool)
	return released, nil
}

// SendMessage attaches the message total value to the transaction.
func (c *BridgeContract) SendMessage(ctx context.Context, sender Sender, msg *entity.Message, gas uint64) (common.Hash, error) {
	return c.Transact(ctx, sender, TxOpts{Value: msg.TotalValue(), Gas: gas}, "sendMessage", toABIMessage(msg))
}

func (c *BridgeContract) EstimateSendMessage(ctx context.Context, from common.Address, msg *entity.Message) (uint64, error) {
	return c.EstimateGas(ctx, from, TxOpts{Value: msg.TotalValue()}, "sendMessage", toABIMessage(msg))
}

func (c *BridgeContract) ProcessMessage(ctx context.Context, sender Sender, msg *entity.Message, proof []byte, gas uint64) (common.Hash, error) {
	return c.Transact(ctx, sender, TxOpts{Gas: gas}, "processMessage", toABIMessage(msg), proof)
}

func (c *BridgeContract) RetryMessage(ctx context.Context, sender Sender, msg *entity.Message, isLastAttempt bool, gas uint64) (common.Hash, error) {
	return c.Transact(ctx, sender, TxOpts{Gas: gas}, "retryMessage", toABIMessage(msg), isLastAttempt)
}

func (c *BridgeContract) ReleaseEther(ctx context.Context, sender Sender, msg *entity.Message, proof []byte) (common.Hash, error) {
	return c.Transact(ctx, sender, TxOpts{}, "releaseEther", toABIMessage(msg), proof)
}

// FindMessageSent returns the first MessageSent event emitted by this bridge
// in the receipt, or false when there is none.
func (c *BridgeContract) FindMessageSent(receipt *types.Receipt) (common.Hash, *entity.Message, bool, error) {
	eventName := c.abi.Events["MessageSent"].String()
	for _, log := range receipt.Logs {
		if log.Address != c.address || len(log.Topics) == 0 {
			continue
		}
		name, values, err := c.ParseLog(entity.NewLog(c.ChainID(), log))
		if err != nil {
			return common.Hash{}, nil, false, fmt.Errorf("can't parse bridge log: %w", err)
		}
		if name != eventName {
			continue
		}
		return log.Topics[1], fromABIMessage(values["message"]), true, nil
	}
	return common.Hash{}, nil, false, nil
}

// NewMessageSentLog builds the MessageSent log the bridge at addr emits for
// msg.
func NewMessageSentLog(addr common.Address, msgHash common.Hash, msg *entity.Message) (*types.Log, error) {
	event := bridgeabi.BridgeABI.Events["MessageSent"]
	data, err := event.Inputs.NonIndexed().Pack(toABIMessage(msg))
	if err != nil {
		return nil, fmt.Errorf("can't pack MessageSent: %w", err)
	}
	return &types.Log{
		Address: addr,
		Topics:  []common.Hash{event.ID, msgHash},
		Data:    data,
	}, nil
}
