package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/logging"
)

type ErrorResult struct {
	Error string         `json:"error"`
	Kind  bridgeerr.Kind `json:"kind,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	blob, err := marshal(r, res)
	if err != nil {
		Error(w, r, fmt.Errorf("failed to marshal JSON result: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(blob); err != nil {
		logging.LoggerFromContext(r.Context()).WithError(err).Warn("failed to write response")
	}
}

func marshal(r *http.Request, res interface{}) ([]byte, error) {
	if pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty")); pretty {
		return json.MarshalIndent(res, "", "  ")
	}
	return json.Marshal(res)
}

// Error renders err with a status derived from its bridge error kind.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	logger := logging.LoggerFromContext(r.Context()).WithError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request handling failed")
	} else {
		logger.Warn("request rejected")
	}

	res := ErrorResult{Error: err.Error()}
	var bErr *bridgeerr.Error
	if errors.As(err, &bErr) {
		res.Kind = bErr.Kind
	}
	blob, _ := json.Marshal(res)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(blob)
}

func statusOf(err error) int {
	switch bridgeerr.KindOf(err) {
	case bridgeerr.KindInvalidArgs, bridgeerr.KindUnknownTokenType:
		return http.StatusBadRequest
	case bridgeerr.KindUnsupportedChain:
		return http.StatusNotFound
	case bridgeerr.KindNotOwner:
		return http.StatusForbidden
	case bridgeerr.KindMessageProcessed, bridgeerr.KindUserRejected, bridgeerr.KindApprovalRequired,
		bridgeerr.KindNotApproved, bridgeerr.KindNoApprovalRequired:
		return http.StatusConflict
	case bridgeerr.KindContractRevert, bridgeerr.KindInvalidProof:
		return http.StatusUnprocessableEntity
	case bridgeerr.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
