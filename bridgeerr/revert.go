package bridgeerr

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Custom errors raised by bridge and vault input validation.
var validationErrors = []string{
	"B_INVALID_CHAINID",
	"B_INVALID_USER",
	"B_INVALID_VALUE",
	"B_INVALID_TO",
	"B_INVALID_SIGNAL",
	"B_STATUS_MISMATCH",
	"B_NOT_RECEIVED",
	"B_NOT_FAILED",
	"B_PERMISSION_DENIED",
	"B_MESSAGE_NOT_SENT",
	"VAULT_INVALID_TOKEN",
	"VAULT_INVALID_AMOUNT",
	"VAULT_INVALID_USER",
	"VAULT_INVALID_TO",
	"VAULT_PERMISSION_DENIED",
}

var customErrorsBySelector = func() map[[4]byte]string {
	res := make(map[[4]byte]string, len(validationErrors))
	for _, name := range validationErrors {
		var selector [4]byte
		copy(selector[:], crypto.Keccak256([]byte(name + "()"))[:4])
		res[selector] = name
	}
	return res
}()

// DecodeRevert extracts a human readable reason from revert data: either an
// Error(string)/Panic(uint256) payload or a known parameterless custom error.
func DecodeRevert(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	var selector [4]byte
	copy(selector[:], data[:4])
	if name, ok := customErrorsBySelector[selector]; ok {
		return name, true
	}
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return "", false
	}
	return reason, true
}

// IsValidationRevert reports whether the reason comes from a contract input
// check ("B:destChainId", B_INVALID_CHAINID, ...), as opposed to a failure
// while executing the message.
func IsValidationRevert(reason string) bool {
	if strings.HasPrefix(reason, "B:") || strings.HasPrefix(reason, "V:") {
		return true
	}
	for _, name := range validationErrors {
		if reason == name {
			return true
		}
	}
	return false
}

// EncodeCustomError builds revert data for a parameterless custom error.
func EncodeCustomError(name string) []byte {
	return crypto.Keccak256([]byte(name + "()"))[:4]
}
