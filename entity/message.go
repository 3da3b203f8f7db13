package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrZeroOwner        = errors.New("message owner is zero")
	ErrSameChain        = errors.New("destination chain equals source chain")
	ErrWrongSourceChain = errors.New("message source chain mismatch")
	ErrNegativeValue    = errors.New("message value is negative")
)

// Message is a cross-chain instruction as understood by the bridge
// contract. ID is assigned by the source bridge when the message is sent;
// the client always submits zero.
type Message struct {
	ID            *big.Int       `json:"id"`
	Sender        common.Address `json:"sender"`
	SrcChainID    uint64         `json:"srcChainId"`
	DestChainID   uint64         `json:"destChainId"`
	Owner         common.Address `json:"owner"`
	To            common.Address `json:"to"`
	RefundAddress common.Address `json:"refundAddress"`
	DepositValue  *big.Int       `json:"depositValue"`
	CallValue     *big.Int       `json:"callValue"`
	ProcessingFee *big.Int       `json:"processingFee"`
	GasLimit      *big.Int       `json:"gasLimit"`
	Data          hexutil.Bytes  `json:"data"`
	Memo          string         `json:"memo"`
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// TotalValue is the native value that must accompany sendMessage.
func (m *Message) TotalValue() *big.Int {
	total := new(big.Int).Add(bigOrZero(m.DepositValue), bigOrZero(m.CallValue))
	return total.Add(total, bigOrZero(m.ProcessingFee))
}

// Validate checks the client side invariants of a message originating on
// srcChainID. Whether the destination is enabled is decided by the bridge.
func (m *Message) Validate(srcChainID uint64) error {
	if m.Owner == (common.Address{}) {
		return ErrZeroOwner
	}
	if m.SrcChainID != srcChainID {
		return fmt.Errorf("%w: got %d, expected %d", ErrWrongSourceChain, m.SrcChainID, srcChainID)
	}
	if m.DestChainID == srcChainID {
		return ErrSameChain
	}
	for _, v := range []*big.Int{m.DepositValue, m.CallValue, m.ProcessingFee, m.GasLimit} {
		if v != nil && v.Sign() < 0 {
			return ErrNegativeValue
		}
	}
	return nil
}

// Normalized returns a copy with nil numeric fields replaced by zero, the
// form expected by the ABI encoder.
func (m *Message) Normalized() *Message {
	res := *m
	res.ID = bigOrZero(m.ID)
	res.DepositValue = bigOrZero(m.DepositValue)
	res.CallValue = bigOrZero(m.CallValue)
	res.ProcessingFee = bigOrZero(m.ProcessingFee)
	res.GasLimit = bigOrZero(m.GasLimit)
	if res.Data == nil {
		res.Data = hexutil.Bytes{}
	}
	return &res
}

func (m *Message) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Message) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("can't scan %T into message", src)
	}
}
