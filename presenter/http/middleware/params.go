package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/presenter/http/render"
)

type ctxKey int

const (
	chainCfgCtxKey ctxKey = iota
	msgHashCtxKey
	ownerCtxKey
)

func GetChainConfigMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chainIDStr := chi.URLParam(r, "chainID")
			chainID, err := strconv.ParseUint(chainIDStr, 10, 64)
			if err != nil {
				render.Error(w, r, bridgeerr.Wrap(bridgeerr.KindInvalidArgs, "presenter", fmt.Errorf("failed to parse chainID: %w", err)))
				return
			}

			chainCfg := cfg.GetChainConfig(chainID)
			if chainCfg == nil {
				render.Error(w, r, bridgeerr.New(bridgeerr.KindUnsupportedChain, "presenter", fmt.Sprintf("chain with id %d not found", chainID)))
				return
			}

			ctx := context.WithValue(r.Context(), chainCfgCtxKey, chainCfg)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ChainConfig(ctx context.Context) *config.ChainConfig {
	if cfg, ok := ctx.Value(chainCfgCtxKey).(*config.ChainConfig); ok {
		return cfg
	}
	return new(config.ChainConfig)
}

func GetMsgHashMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), msgHashCtxKey, common.HexToHash(chi.URLParam(r, "msgHash")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func MsgHash(ctx context.Context) common.Hash {
	hash, _ := ctx.Value(msgHashCtxKey).(common.Hash)
	return hash
}

func GetOwnerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "owner")
		if !common.IsHexAddress(owner) {
			render.Error(w, r, bridgeerr.New(bridgeerr.KindInvalidArgs, "presenter", fmt.Sprintf("invalid owner address %q", owner)))
			return
		}
		ctx := context.WithValue(r.Context(), ownerCtxKey, common.HexToAddress(owner))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func Owner(ctx context.Context) common.Address {
	owner, _ := ctx.Value(ownerCtxKey).(common.Address)
	return owner
}
