package presenter

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/omni/tokenbridge-client/bridge"
	"github.com/omni/tokenbridge-client/bridgeerr"
	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/contract"
	"github.com/omni/tokenbridge-client/entity"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/logging"
	"github.com/omni/tokenbridge-client/presenter/http/middleware"
	"github.com/omni/tokenbridge-client/presenter/http/render"
	"github.com/omni/tokenbridge-client/token"
	"github.com/omni/tokenbridge-client/tracker"
	"github.com/omni/tokenbridge-client/wallet"
	"github.com/omni/tokenbridge-client/watcher"
)

type TransactionSource interface {
	Transactions(ctx context.Context, owner common.Address) ([]*entity.BridgeTransaction, error)
	Pending(ctx context.Context) ([]*entity.BridgeTransaction, error)
	Track(ctx context.Context, tx *entity.BridgeTransaction) (*tracker.Future, error)
}

type BridgeService interface {
	RecommendProcessingFee(ctx context.Context, kind token.Kind, destChainID uint64, deployed bool) (*big.Int, error)
	ResolveArgs(ctx context.Context, args *bridge.Args) error
	EstimateGas(ctx context.Context, args *bridge.Args) (uint64, error)
	RequiresApproval(ctx context.Context, args *bridge.Args) (bool, error)
	Approve(ctx context.Context, args *bridge.Args) (*bridge.TxHandle, error)
	Bridge(ctx context.Context, args *bridge.Args) (*bridge.TxHandle, error)
	Claim(ctx context.Context, kind token.Kind, args *bridge.ClaimArgs) (*bridge.TxHandle, error)
	Release(ctx context.Context, kind token.Kind, args *bridge.ClaimArgs) (*bridge.TxHandle, error)
}

type WalletSource interface {
	State() watcher.State
}

type Presenter struct {
	logger  logging.Logger
	cfg     *config.Config
	clients ethclient.Clients
	txs     TransactionSource
	svc     BridgeService
	wallet  WalletSource
	signer  wallet.Wallet
	root    chi.Router
}

// NewPresenter builds the API. walletState and signer may be nil when no
// wallet is attached; the transaction routes are only mounted with a signer.
func NewPresenter(logger logging.Logger, cfg *config.Config, clients ethclient.Clients, txs TransactionSource, svc BridgeService, walletState WalletSource, signer wallet.Wallet) *Presenter {
	p := &Presenter{
		logger:  logger.WithField("service", "presenter"),
		cfg:     cfg,
		clients: clients,
		txs:     txs,
		svc:     svc,
		wallet:  walletState,
		signer:  signer,
		root:    chi.NewMux(),
	}
	p.routes()
	return p
}

func (p *Presenter) routes() {
	p.root.Use(chimiddleware.Throttle(20))
	p.root.Use(chimiddleware.RequestID)
	p.root.Use(middleware.NewLoggerMiddleware(p.logger))
	p.root.Use(middleware.Recoverer)

	p.root.With(middleware.GetOwnerMiddleware).Get("/transactions/{owner}", p.wrapJSONHandler(p.GetTransactions))
	p.root.Get("/pending", p.wrapJSONHandler(p.GetPending))
	p.root.Get("/chains", p.wrapJSONHandler(p.GetChains))
	p.root.Route("/chains/{chainID:[0-9]+}", func(r chi.Router) {
		r.Use(middleware.GetChainConfigMiddleware(p.cfg))
		r.With(middleware.GetMsgHashMiddleware).
			Get("/messages/{msgHash:0x[0-9a-fA-F]{64}}/status", p.wrapJSONHandler(p.GetMessageStatus))
		r.Get("/fee", p.wrapJSONHandler(p.GetProcessingFee))
	})
	if p.wallet != nil {
		p.root.Get("/wallet", p.wrapJSONHandler(p.GetWallet))
	}
	if p.signer != nil {
		p.root.Post("/estimate", p.wrapJSONHandler(p.PostEstimate))
		p.root.Post("/approve", p.wrapJSONHandler(p.PostApprove))
		p.root.Post("/bridge", p.wrapJSONHandler(p.PostBridge))
		p.root.Post("/claim", p.wrapJSONHandler(p.PostClaim))
		p.root.Post("/release", p.wrapJSONHandler(p.PostRelease))
	}
}

func (p *Presenter) Handler() http.Handler {
	return p.root
}

func (p *Presenter) Serve(addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	return http.ListenAndServe(addr, p.root)
}

func (p *Presenter) wrapJSONHandler(handler func(r *http.Request) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			render.Error(w, r, err)
			return
		}
		render.JSON(w, r, http.StatusOK, res)
	}
}

func (p *Presenter) GetTransactions(r *http.Request) (interface{}, error) {
	ctx := r.Context()
	txs, err := p.txs.Transactions(ctx, middleware.Owner(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return p.transactionsToInfo(txs), nil
}

func (p *Presenter) GetPending(r *http.Request) (interface{}, error) {
	txs, err := p.txs.Pending(r.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transactions: %w", err)
	}
	return p.transactionsToInfo(txs), nil
}

func (p *Presenter) GetChains(*http.Request) (interface{}, error) {
	res := make([]*ChainInfo, 0, len(p.cfg.Chains))
	for name, chain := range p.cfg.Chains {
		info := &ChainInfo{
			Name:          name,
			ChainID:       chain.ChainID,
			Disabled:      chain.Disabled,
			BridgeAddress: chain.BridgeAddress,
			Destinations:  make([]uint64, 0, len(chain.DestChains)),
		}
		for _, dest := range chain.DestChains {
			info.Destinations = append(info.Destinations, dest.ChainID)
		}
		res = append(res, info)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ChainID < res[j].ChainID })
	return res, nil
}

func (p *Presenter) GetMessageStatus(r *http.Request) (interface{}, error) {
	ctx := r.Context()
	chain := middleware.ChainConfig(ctx)
	msgHash := middleware.MsgHash(ctx)

	client, err := p.clients.Get(chain.ChainID)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindUnsupportedChain, "presenter", err)
	}
	status, err := contract.NewBridgeContract(client, chain.BridgeAddress).GetMessageStatus(ctx, msgHash)
	if err != nil {
		return nil, bridgeerr.Classify("presenter", err)
	}
	return &MessageStatusResult{
		ChainID: chain.ChainID,
		MsgHash: msgHash,
		Status:  status,
	}, nil
}

// GetProcessingFee recommends a relayer fee for messages sent to the chain
// in the path.
func (p *Presenter) GetProcessingFee(r *http.Request) (interface{}, error) {
	ctx := r.Context()
	chain := middleware.ChainConfig(ctx)
	query := r.URL.Query()

	kind := token.KindETH
	if s := query.Get("kind"); s != "" {
		k, err := token.ParseKind(strings.ToUpper(s))
		if err != nil {
			return nil, bridgeerr.Wrap(bridgeerr.KindUnknownTokenType, "presenter", err)
		}
		kind = k
	}
	deployed := true
	if s := query.Get("deployed"); s != "" {
		d, err := strconv.ParseBool(s)
		if err != nil {
			return nil, bridgeerr.Wrap(bridgeerr.KindInvalidArgs, "presenter", err)
		}
		deployed = d
	}

	fee, err := p.svc.RecommendProcessingFee(ctx, kind, chain.ChainID, deployed)
	if err != nil {
		return nil, err
	}
	return &FeeResult{
		Kind:          string(kind),
		DestChainID:   chain.ChainID,
		Deployed:      deployed,
		ProcessingFee: fee,
	}, nil
}

func (p *Presenter) GetWallet(*http.Request) (interface{}, error) {
	return walletStateToInfo(p.wallet.State()), nil
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindInvalidArgs, "presenter", fmt.Errorf("can't decode request body: %w", err))
	}
	return nil
}

// bridgeArgs decodes a transfer request for the attached signer and fills
// in the token kind and deployment flag when the caller left them out.
func (p *Presenter) bridgeArgs(r *http.Request) (*bridge.Args, error) {
	var req BridgeRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	args := &bridge.Args{
		Wallet:        p.signer,
		SrcChainID:    req.SrcChainID,
		DestChainID:   req.DestChainID,
		To:            req.To,
		Token:         req.Token,
		Amount:        req.Amount,
		TokenIDs:      req.TokenIDs,
		ProcessingFee: req.ProcessingFee,
		Memo:          req.Memo,
	}
	if args.SrcChainID == 0 {
		args.SrcChainID = p.signer.ChainID()
	}
	if args.To == (common.Address{}) {
		args.To = p.signer.Address()
	}
	if req.Kind != "" {
		kind, err := token.ParseKind(strings.ToUpper(req.Kind))
		if err != nil {
			return nil, bridgeerr.Wrap(bridgeerr.KindUnknownTokenType, "presenter", err)
		}
		args.Kind = kind
	}
	if args.Kind == "" || req.Deployed == nil {
		if err := p.svc.ResolveArgs(r.Context(), args); err != nil {
			return nil, err
		}
	}
	if req.Deployed != nil {
		args.Deployed = *req.Deployed
	}
	return args, nil
}

func (p *Presenter) claimArgs(r *http.Request) (token.Kind, *bridge.ClaimArgs, error) {
	var req ClaimRequest
	if err := decodeBody(r, &req); err != nil {
		return "", nil, err
	}
	kind, err := token.ParseKind(strings.ToUpper(req.Kind))
	if err != nil {
		return "", nil, bridgeerr.Wrap(bridgeerr.KindUnknownTokenType, "presenter", err)
	}
	if req.Message == nil {
		return "", nil, bridgeerr.New(bridgeerr.KindInvalidArgs, "presenter", "message is required")
	}
	return kind, &bridge.ClaimArgs{Wallet: p.signer, MsgHash: req.MsgHash, Message: req.Message}, nil
}

func (p *Presenter) PostEstimate(r *http.Request) (interface{}, error) {
	ctx := r.Context()
	args, err := p.bridgeArgs(r)
	if err != nil {
		return nil, err
	}
	gas, err := p.svc.EstimateGas(ctx, args)
	if err != nil {
		return nil, err
	}
	approval, err := p.svc.RequiresApproval(ctx, args)
	if err != nil {
		return nil, err
	}
	return &EstimateResult{Kind: string(args.Kind), Gas: gas, RequiresApproval: approval}, nil
}

func (p *Presenter) PostApprove(r *http.Request) (interface{}, error) {
	args, err := p.bridgeArgs(r)
	if err != nil {
		return nil, err
	}
	handle, err := p.svc.Approve(r.Context(), args)
	if err != nil {
		return nil, err
	}
	return txHandleToResult(handle), nil
}

// PostBridge sends the transfer and hands the transaction to the tracker.
// A tracking failure does not hide the hash of a transaction that was
// already broadcast.
func (p *Presenter) PostBridge(r *http.Request) (interface{}, error) {
	ctx := r.Context()
	args, err := p.bridgeArgs(r)
	if err != nil {
		return nil, err
	}
	handle, err := p.svc.Bridge(ctx, args)
	if err != nil {
		return nil, err
	}
	tx := &entity.BridgeTransaction{
		Owner:       p.signer.Address(),
		TxHash:      handle.Hash,
		SrcChainID:  handle.ChainID,
		DestChainID: args.DestChainID,
		TokenKind:   string(handle.Kind),
	}
	if _, err = p.txs.Track(ctx, tx); err != nil {
		logging.LoggerFromContext(ctx).WithError(err).WithField("tx_hash", handle.Hash).Error("can't track bridge transaction")
	}
	return txHandleToResult(handle), nil
}

func (p *Presenter) PostClaim(r *http.Request) (interface{}, error) {
	kind, args, err := p.claimArgs(r)
	if err != nil {
		return nil, err
	}
	handle, err := p.svc.Claim(r.Context(), kind, args)
	if err != nil {
		return nil, err
	}
	return txHandleToResult(handle), nil
}

func (p *Presenter) PostRelease(r *http.Request) (interface{}, error) {
	kind, args, err := p.claimArgs(r)
	if err != nil {
		return nil, err
	}
	handle, err := p.svc.Release(r.Context(), kind, args)
	if err != nil {
		return nil, err
	}
	return txHandleToResult(handle), nil
}

func (p *Presenter) transactionsToInfo(txs []*entity.BridgeTransaction) []*TransactionInfo {
	res := make([]*TransactionInfo, len(txs))
	for i, tx := range txs {
		res[i] = &TransactionInfo{
			BridgeTransaction: tx,
			Link:              p.txLink(tx),
		}
	}
	return res
}

func (p *Presenter) txLink(tx *entity.BridgeTransaction) string {
	chain := p.cfg.GetChainConfig(tx.SrcChainID)
	if chain == nil || chain.ExplorerURL == "" {
		return ""
	}
	return strings.TrimSuffix(chain.ExplorerURL, "/") + "/tx/" + tx.TxHash.Hex()
}
