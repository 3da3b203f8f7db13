package bridgeerr

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const userRejectedRPCCode = 4001

var userRejectedMarkers = []string{
	"denied transaction signature",
	"user rejected",
	"user denied",
}

// Classify converts a raw wallet or RPC error into a typed *Error.
// Errors it does not recognise are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if isUserRejected(err) {
		return Wrap(KindUserRejected, op, err)
	}
	if reason, ok := revertReason(err); ok {
		return &Error{
			Kind:     KindContractRevert,
			Op:       op,
			Reason:   reason,
			Terminal: IsValidationRevert(reason),
			Err:      err,
		}
	}
	if isNetworkError(err) {
		return Wrap(KindNetwork, op, err)
	}
	return err
}

func isUserRejected(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedRPCCode {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range userRejectedMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := dataErr.ErrorData().(string); ok {
			if blob, decodeErr := hexutil.Decode(data); decodeErr == nil {
				if reason, ok := DecodeRevert(blob); ok {
					return reason, true
				}
			}
		}
	}
	const marker = "execution reverted"
	msg := err.Error()
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return "", false
	}
	reason := strings.TrimPrefix(msg[idx+len(marker):], ":")
	return strings.TrimSpace(reason), true
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr rpc.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode >= 500
}
