package proof

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockHeader is the header layout verified by the destination bridge.
// Field order and names match the signal proof tuple.
type BlockHeader struct {
	ParentHash       [32]byte
	OmmersHash       [32]byte
	Beneficiary      common.Address
	StateRoot        [32]byte
	TransactionsRoot [32]byte
	ReceiptsRoot     [32]byte
	LogsBloom        [8][32]byte
	Difficulty       *big.Int
	Height           *big.Int
	GasLimit         uint64
	GasUsed          uint64
	Timestamp        uint64
	ExtraData        []byte
	MixHash          [32]byte
	Nonce            uint64
	BaseFeePerGas    *big.Int
	WithdrawalsRoot  [32]byte
}

type SignalProof struct {
	Header BlockHeader
	Proof  []byte
}

var signalProofArgs = func() abi.Arguments {
	signalProofType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "header", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "parentHash", Type: "bytes32"},
			{Name: "ommersHash", Type: "bytes32"},
			{Name: "beneficiary", Type: "address"},
			{Name: "stateRoot", Type: "bytes32"},
			{Name: "transactionsRoot", Type: "bytes32"},
			{Name: "receiptsRoot", Type: "bytes32"},
			{Name: "logsBloom", Type: "bytes32[8]"},
			{Name: "difficulty", Type: "uint256"},
			{Name: "height", Type: "uint128"},
			{Name: "gasLimit", Type: "uint64"},
			{Name: "gasUsed", Type: "uint64"},
			{Name: "timestamp", Type: "uint64"},
			{Name: "extraData", Type: "bytes"},
			{Name: "mixHash", Type: "bytes32"},
			{Name: "nonce", Type: "uint64"},
			{Name: "baseFeePerGas", Type: "uint256"},
			{Name: "withdrawalsRoot", Type: "bytes32"},
		}},
		{Name: "proof", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "signalProof", Type: signalProofType}}
}()

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// NewBlockHeader converts a chain header. A missing base fee encodes as 0
// and a missing withdrawals root as the zero hash.
func NewBlockHeader(h *types.Header) BlockHeader {
	header := BlockHeader{
		ParentHash:       h.ParentHash,
		OmmersHash:       h.UncleHash,
		Beneficiary:      h.Coinbase,
		StateRoot:        h.Root,
		TransactionsRoot: h.TxHash,
		ReceiptsRoot:     h.ReceiptHash,
		Difficulty:       new(big.Int).Set(orZero(h.Difficulty)),
		Height:           new(big.Int).Set(orZero(h.Number)),
		GasLimit:         h.GasLimit,
		GasUsed:          h.GasUsed,
		Timestamp:        h.Time,
		ExtraData:        common.CopyBytes(h.Extra),
		MixHash:          h.MixDigest,
		Nonce:            h.Nonce.Uint64(),
		BaseFeePerGas:    new(big.Int).Set(orZero(h.BaseFee)),
	}
	if header.ExtraData == nil {
		header.ExtraData = []byte{}
	}
	for i := range header.LogsBloom {
		copy(header.LogsBloom[i][:], h.Bloom[i*32:(i+1)*32])
	}
	if h.WithdrawalsHash != nil {
		header.WithdrawalsRoot = *h.WithdrawalsHash
	}
	return header
}

func EncodeSignalProof(p *SignalProof) ([]byte, error) {
	res, err := signalProofArgs.Pack(*p)
	if err != nil {
		return nil, fmt.Errorf("can't encode signal proof: %w", err)
	}
	return res, nil
}

func DecodeSignalProof(data []byte) (*SignalProof, error) {
	values, err := signalProofArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("can't decode signal proof: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("can't decode signal proof: unexpected %d values", len(values))
	}
	return abi.ConvertType(values[0], new(SignalProof)).(*SignalProof), nil
}
