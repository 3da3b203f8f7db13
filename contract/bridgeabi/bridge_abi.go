package bridgeabi

//nolint:golint
import (
	_ "embed"

	"github.com/omni/tokenbridge-client/contract/abi"
)

//go:embed bridge.json
var bridgeJSONABI string

//go:embed erc20_vault.json
var erc20VaultJSONABI string

//go:embed erc721_vault.json
var erc721VaultJSONABI string

//go:embed erc1155_vault.json
var erc1155VaultJSONABI string

//go:embed cross_chain_sync.json
var crossChainSyncJSONABI string

//go:embed erc20.json
var erc20JSONABI string

//go:embed erc721.json
var erc721JSONABI string

//go:embed erc1155.json
var erc1155JSONABI string

const (
	MessageStatusChanged = "event MessageStatusChanged(bytes32 indexed msgHash, uint8 status, address transactor)"
	EtherReleased        = "event EtherReleased(bytes32 indexed msgHash, address to, uint256 amount)"
)

var (
	BridgeABI         = abi.MustReadABI(bridgeJSONABI)
	ERC20VaultABI     = abi.MustReadABI(erc20VaultJSONABI)
	ERC721VaultABI    = abi.MustReadABI(erc721VaultJSONABI)
	ERC1155VaultABI   = abi.MustReadABI(erc1155VaultJSONABI)
	CrossChainSyncABI = abi.MustReadABI(crossChainSyncJSONABI)
	ERC20ABI          = abi.MustReadABI(erc20JSONABI)
	ERC721ABI         = abi.MustReadABI(erc721JSONABI)
	ERC1155ABI        = abi.MustReadABI(erc1155JSONABI)

	MessageSentEventSignature          = BridgeABI.Events["MessageSent"].ID
	MessageStatusChangedEventSignature = BridgeABI.Events["MessageStatusChanged"].ID
)
