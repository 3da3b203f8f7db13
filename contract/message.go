package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/entity"
)

// bridgeMessage is the ABI shape of IBridge.Message. Field names follow the
// tuple component names.
type bridgeMessage struct {
	Id            *big.Int //nolint:revive,stylecheck
	Sender        common.Address
	SrcChainId    *big.Int //nolint:revive,stylecheck
	DestChainId   *big.Int //nolint:revive,stylecheck
	Owner         common.Address
	To            common.Address
	RefundAddress common.Address
	DepositValue  *big.Int
	CallValue     *big.Int
	ProcessingFee *big.Int
	GasLimit      *big.Int
	Data          []byte
	Memo          string
}

func toABIMessage(msg *entity.Message) bridgeMessage {
	m := msg.Normalized()
	return bridgeMessage{
		Id:            m.ID,
		Sender:        m.Sender,
		SrcChainId:    new(big.Int).SetUint64(m.SrcChainID),
		DestChainId:   new(big.Int).SetUint64(m.DestChainID),
		Owner:         m.Owner,
		To:            m.To,
		RefundAddress: m.RefundAddress,
		DepositValue:  m.DepositValue,
		CallValue:     m.CallValue,
		ProcessingFee: m.ProcessingFee,
		GasLimit:      m.GasLimit,
		Data:          m.Data,
		Memo:          m.Memo,
	}
}

func fromABIMessage(raw interface{}) *entity.Message {
	m := *abi.ConvertType(raw, new(bridgeMessage)).(*bridgeMessage)
	return &entity.Message{
		ID:            m.Id,
		Sender:        m.Sender,
		SrcChainID:    m.SrcChainId.Uint64(),
		DestChainID:   m.DestChainId.Uint64(),
		Owner:         m.Owner,
		To:            m.To,
		RefundAddress: m.RefundAddress,
		DepositValue:  m.DepositValue,
		CallValue:     m.CallValue,
		ProcessingFee: m.ProcessingFee,
		GasLimit:      m.GasLimit,
		Data:          m.Data,
		Memo:          m.Memo,
	}
}
