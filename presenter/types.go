package presenter

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tokenbridge-client/bridge"
	"github.com/omni/tokenbridge-client/entity"
	"github.com/omni/tokenbridge-client/watcher"
)

type TransactionInfo struct {
	*entity.BridgeTransaction
	Link string `json:"link,omitempty"`
}

type MessageStatusResult struct {
	ChainID uint64               `json:"chainId"`
	MsgHash common.Hash          `json:"msgHash"`
	Status  entity.MessageStatus `json:"status"`
}

type ChainInfo struct {
	Name          string         `json:"name"`
	ChainID       uint64         `json:"chainId"`
	Disabled      bool           `json:"disabled"`
	BridgeAddress common.Address `json:"bridgeAddress"`
	Destinations  []uint64       `json:"destinations"`
}

type FeeResult struct {
	Kind          string   `json:"kind"`
	DestChainID   uint64   `json:"destChainId"`
	Deployed      bool     `json:"deployed"`
	ProcessingFee *big.Int `json:"processingFee"`
}

type SwitchNetworkInfo struct {
	ChainID   uint64   `json:"chainId"`
	Supported []uint64 `json:"supported"`
}

type WalletInfo struct {
	Account               common.Address      `json:"account"`
	Connected             bool                `json:"connected"`
	ChainID               uint64              `json:"chainId"`
	Supported             bool                `json:"supported"`
	SwitchNetwork         *SwitchNetworkInfo  `json:"switchNetwork,omitempty"`
	IsSmartContractWallet bool                `json:"isSmartContractWallet"`
	Balances              map[uint64]*big.Int `json:"balances,omitempty"`
	Error                 string              `json:"error,omitempty"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

func walletStateToInfo(s watcher.State) *WalletInfo {
	res := &WalletInfo{
		Account:               s.Account,
		Connected:             s.Connected,
		ChainID:               s.ChainID,
		Supported:             s.Chain != nil,
		IsSmartContractWallet: s.IsSmartContractWallet,
		Balances:              s.Balances,
		UpdatedAt:             s.UpdatedAt,
	}
	if s.SwitchNetwork != nil {
		res.SwitchNetwork = &SwitchNetworkInfo{
			ChainID:   s.SwitchNetwork.ChainID,
			Supported: s.SwitchNetwork.Supported,
		}
	}
	if s.Err != nil {
		res.Error = s.Err.Error()
	}
	return res
}

type BridgeRequest struct {
	Kind          string         `json:"kind"`
	SrcChainID    uint64         `json:"srcChainId"`
	DestChainID   uint64         `json:"destChainId"`
	To            common.Address `json:"to"`
	Token         common.Address `json:"token"`
	Amount        *big.Int       `json:"amount"`
	TokenIDs      []*big.Int     `json:"tokenIds"`
	ProcessingFee *big.Int       `json:"processingFee"`
	Memo          string         `json:"memo"`
	Deployed      *bool          `json:"deployed"`
}

type ClaimRequest struct {
	Kind    string          `json:"kind"`
	MsgHash common.Hash     `json:"msgHash"`
	Message *entity.Message `json:"message"`
}

type EstimateResult struct {
	Kind             string `json:"kind"`
	Gas              uint64 `json:"gas"`
	RequiresApproval bool   `json:"requiresApproval"`
}

type TxResult struct {
	TxHash  common.Hash `json:"txHash"`
	ChainID uint64      `json:"chainId"`
	Kind    string      `json:"kind"`
}

func txHandleToResult(h *bridge.TxHandle) *TxResult {
	return &TxResult{TxHash: h.Hash, ChainID: h.ChainID, Kind: string(h.Kind)}
}
