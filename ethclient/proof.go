package ethclient

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AccountProof is the eth_getProof response.
type AccountProof struct {
	Address      common.Address  `json:"address"`
	AccountProof []hexutil.Bytes `json:"accountProof"`
	Balance      *hexutil.Big    `json:"balance"`
	CodeHash     common.Hash     `json:"codeHash"`
	Nonce        hexutil.Uint64  `json:"nonce"`
	StorageHash  common.Hash     `json:"storageHash"`
	StorageProof []StorageProof  `json:"storageProof"`
}

type StorageProof struct {
	Key   string          `json:"key"`
	Value StorageValue    `json:"value"`
	Proof []hexutil.Bytes `json:"proof"`
}

// StorageValue accepts the loosely formatted quantities nodes return for
// storage slots ("0x", "0x01", "0x1"). Hex keeps the text as returned.
type StorageValue struct {
	big.Int
	raw string
}

func (v *StorageValue) Hex() string {
	return v.raw
}

func (v *StorageValue) UnmarshalJSON(input []byte) error {
	input = bytes.Trim(input, `"`)
	v.raw = ""
	s := strings.TrimPrefix(strings.TrimPrefix(string(input), "0x"), "0X")
	if s == "" || s == "null" {
		if string(input) != "null" {
			v.raw = string(input)
		}
		v.SetInt64(0)
		return nil
	}
	if _, ok := v.SetString(s, 16); !ok {
		return fmt.Errorf("invalid storage value %q", input)
	}
	v.raw = string(input)
	return nil
}

func (v StorageValue) MarshalJSON() ([]byte, error) {
	if v.raw != "" {
		return []byte(`"` + v.raw + `"`), nil
	}
	return []byte(`"` + hexutil.EncodeBig(&v.Int) + `"`), nil
}
