package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/tokenbridge-client/config"
	"github.com/omni/tokenbridge-client/contract"
	"github.com/omni/tokenbridge-client/entity"
	"github.com/omni/tokenbridge-client/ethclient"
	"github.com/omni/tokenbridge-client/logging"
)

var (
	ErrTxReverted = errors.New("transaction reverted")
	ErrTimeout    = errors.New("transaction was not mined in time")
	ErrStopped    = errors.New("tracker stopped")
	ErrRemoved    = errors.New("transaction removed")
	ErrNotTracked = errors.New("transaction is not tracked")
)

const maxConcurrentPolls = 8

// Snapshot is a copy of the tracker collections. Transactions keep
// submission order.
type Snapshot struct {
	Transactions []*entity.BridgeTransaction
	Pending      []*entity.BridgeTransaction
}

// Tracker owns the user's bridge transactions. All state lives in the run
// goroutine; other goroutines send it commands, so concurrent submissions
// never lose entries.
type Tracker struct {
	logger  logging.Logger
	chains  *config.Config
	cfg     *config.TrackerConfig
	clients ethclient.Clients
	repo    entity.BridgeTransactionsRepo

	cmds     chan func(*state)
	done     chan struct{}
	stopOnce sync.Once
	cron     *cron.Cron
}

type pendingTx struct {
	future *Future
}

type state struct {
	txs     []*entity.BridgeTransaction
	pending map[entity.Key]*pendingTx
	subs    map[int]chan *Snapshot
	nextSub int
}

// NewTracker creates a tracker. A nil repo keeps the history in memory.
func NewTracker(logger logging.Logger, cfg *config.Config, clients ethclient.Clients, repo entity.BridgeTransactionsRepo) *Tracker {
	logger = logger.WithField("service", "tracker")
	return &Tracker{
		logger:  logger,
		chains:  cfg,
		cfg:     cfg.Tracker,
		clients: clients,
		repo:    repo,
		cmds:    make(chan func(*state)),
		done:    make(chan struct{}),
		cron:    newCron(logger),
	}
}

// Start runs the state owner and the polling jobs until ctx is done or
// Stop is called.
func (t *Tracker) Start(ctx context.Context) {
	t.logger.Info("starting transaction tracker")
	s := &state{
		pending: make(map[entity.Key]*pendingTx),
		subs:    make(map[int]chan *Snapshot),
	}
	go t.run(ctx, s)

	jobs := []*job{
		{
			name:     "receipts",
			logger:   t.logger.WithField("job", "receipts"),
			interval: t.cfg.ReceiptPollInterval,
			timeout:  t.cfg.ReceiptPollInterval * 4,
			fn:       t.PollReceipts,
		},
		{
			name:     "statuses",
			logger:   t.logger.WithField("job", "statuses"),
			interval: t.cfg.StatusPollInterval,
			timeout:  t.cfg.StatusPollInterval * 4,
			fn:       t.PollStatuses,
		},
	}
	for _, j := range jobs {
		j.schedule(ctx, t.cron)
	}
	t.cron.Start()
}

// Stop stops polling and rejects every pending future. Results of polls
// still in flight are discarded.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.logger.Info("stopping transaction tracker")
		t.cron.Stop()
		close(t.done)
	})
}

func (t *Tracker) run(ctx context.Context, s *state) {
	ctxDone := ctx.Done()
	for {
		select {
		case cmd := <-t.cmds:
			cmd(s)
		case <-ctxDone:
			ctxDone = nil
			t.Stop()
		case <-t.done:
			for key, p := range s.pending {
				p.future.reject(nil, ErrStopped)
				delete(s.pending, key)
			}
			for id, ch := range s.subs {
				close(ch)
				delete(s.subs, id)
			}
			PendingTransactions.Set(0)
			return
		}
	}
}

// do runs fn on the state owner and waits for it to finish.
func (t *Tracker) do(ctx context.Context, fn func(*state)) error {
	finished := make(chan struct{})
	cmd := func(s *state) {
		fn(s)
		close(finished)
	}
	select {
	case t.cmds <- cmd:
	case <-t.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

func cloneTx(tx *entity.BridgeTransaction) *entity.BridgeTransaction {
	res := *tx
	return &res
}

func (s *state) index(key entity.Key) int {
	for i, tx := range s.txs {
		if tx.Key() == key {
			return i
		}
	}
	return -1
}

func (s *state) snapshot() *Snapshot {
	res := &Snapshot{
		Transactions: make([]*entity.BridgeTransaction, len(s.txs)),
		Pending:      make([]*entity.BridgeTransaction, 0, len(s.pending)),
	}
	for i, tx := range s.txs {
		res.Transactions[i] = cloneTx(tx)
	}
	for _, tx := range s.txs {
		if _, ok := s.pending[tx.Key()]; ok {
			res.Pending = append(res.Pending, cloneTx(tx))
		}
	}
	return res
}

// notify hands the latest snapshot to every subscriber, replacing one it
// has not consumed yet.
func (s *state) notify() {
	PendingTransactions.Set(float64(len(s.pending)))
	TrackedTransactions.Set(float64(len(s.txs)))
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshot()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// upsert replaces the transaction with the same key or appends it.
func (s *state) upsert(tx *entity.BridgeTransaction) {
	if i := s.index(tx.Key()); i >= 0 {
		s.txs[i] = tx
		return
	}
	s.txs = append(s.txs, tx)
}

func (s *state) remove(key entity.Key) bool {
	i := s.index(key)
	if i < 0 {
		return false
	}
	s.txs = append(s.txs[:i], s.txs[i+1:]...)
	return true
}

func (t *Tracker) persist(ctx context.Context, txs ...*entity.BridgeTransaction) error {
	if t.repo == nil || len(txs) == 0 {
		return nil
	}
	return t.repo.Ensure(ctx, txs...)
}

// Track adds a freshly submitted source chain transaction. The returned
// future settles on the first confirmation: it resolves when the receipt
// succeeded and rejects with ErrTxReverted otherwise.
func (t *Tracker) Track(ctx context.Context, tx *entity.BridgeTransaction) (*Future, error) {
	if tx.TxHash == (common.Hash{}) {
		return nil, errors.New("transaction hash is required")
	}
	if !t.chains.IsSupportedChain(tx.SrcChainID) {
		return nil, fmt.Errorf("source chain %d: %w", tx.SrcChainID, config.ErrUnknownChain)
	}
	tx = cloneTx(tx)
	tx.TxStatus = entity.TxStatusPending
	tx.Status = entity.MessageStatusNew
	if tx.SubmittedAt.IsZero() {
		tx.SubmittedAt = time.Now().UTC()
	}
	if err := t.persist(ctx, tx); err != nil {
		return nil, fmt.Errorf("can't persist transaction: %w", err)
	}

	var future *Future
	err := t.do(ctx, func(s *state) {
		key := tx.Key()
		if p, ok := s.pending[key]; ok {
			future = p.future
			return
		}
		future = newFuture()
		s.upsert(tx)
		s.pending[key] = &pendingTx{future: future}
		s.notify()
	})
	if err != nil {
		return nil, err
	}
	t.logger.WithFields(logrus.Fields{
		"chain_id": tx.SrcChainID,
		"tx_hash":  tx.TxHash,
		"owner":    tx.Owner,
	}).Info("tracking bridge transaction")
	return future, nil
}

// Load merges the persisted history of owner. Transactions that were
// still pending are polled for receipts again.
func (t *Tracker) Load(ctx context.Context, owner common.Address) error {
	if t.repo == nil {
		return nil
	}
	txs, err := t.repo.GetByOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("can't load transactions: %w", err)
	}
	return t.do(ctx, func(s *state) {
		for _, tx := range txs {
			key := tx.Key()
			if _, ok := s.pending[key]; ok {
				continue
			}
			s.upsert(tx)
			if tx.TxStatus == entity.TxStatusPending {
				s.pending[key] = &pendingTx{future: newFuture()}
			}
		}
		s.notify()
	})
}

func (t *Tracker) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := t.do(ctx, func(s *state) {
		snap = s.snapshot()
	})
	return snap, err
}

// Transactions returns the tracked transactions of owner in submission
// order.
func (t *Tracker) Transactions(ctx context.Context, owner common.Address) ([]*entity.BridgeTransaction, error) {
	snap, err := t.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]*entity.BridgeTransaction, 0, len(snap.Transactions))
	for _, tx := range snap.Transactions {
		if tx.Owner == owner {
			res = append(res, tx)
		}
	}
	return res, nil
}

func (t *Tracker) Pending(ctx context.Context) ([]*entity.BridgeTransaction, error) {
	snap, err := t.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Pending, nil
}

func (t *Tracker) Get(ctx context.Context, key entity.Key) (*entity.BridgeTransaction, error) {
	var res *entity.BridgeTransaction
	err := t.do(ctx, func(s *state) {
		if i := s.index(key); i >= 0 {
			res = cloneTx(s.txs[i])
		}
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrNotTracked
	}
	return res, nil
}

// Remove drops a transaction by key. A pending future is rejected with
// ErrRemoved. The in-memory entry goes first so that a confirmation
// settling concurrently can't write the row back after the delete.
func (t *Tracker) Remove(ctx context.Context, key entity.Key) error {
	var found bool
	err := t.do(ctx, func(s *state) {
		if p, ok := s.pending[key]; ok {
			delete(s.pending, key)
			p.future.reject(nil, ErrRemoved)
		}
		found = s.remove(key)
		if found {
			s.notify()
		}
	})
	if err != nil {
		return err
	}
	if t.repo != nil {
		if err = t.repo.Delete(ctx, key.ChainID, key.TxHash); err != nil {
			return fmt.Errorf("can't delete transaction: %w", err)
		}
	}
	if !found {
		return ErrNotTracked
	}
	return nil
}

// Subscribe returns a channel receiving the latest snapshot after every
// change. Slow readers only see the most recent one. The channel is closed
// when the tracker stops.
func (t *Tracker) Subscribe(ctx context.Context) (<-chan *Snapshot, func(), error) {
	ch := make(chan *Snapshot, 1)
	var id int
	err := t.do(ctx, func(s *state) {
		id = s.nextSub
		s.nextSub++
		s.subs[id] = ch
		ch <- s.snapshot()
	})
	if err != nil {
		return nil, nil, err
	}
	unsubscribe := func() {
		_ = t.do(context.Background(), func(s *state) {
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
	return ch, unsubscribe, nil
}

type confirmation struct {
	key     entity.Key
	tx      *entity.BridgeTransaction
	receipt *types.Receipt
	err     error
}

// PollReceipts checks every pending transaction for a receipt and settles
// the confirmed ones. RPC failures are left for the next run.
func (t *Tracker) PollReceipts(ctx context.Context) error {
	snap, err := t.Snapshot(ctx)
	if err != nil {
		return err
	}
	if len(snap.Pending) == 0 {
		return nil
	}

	results := make([]*confirmation, len(snap.Pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPolls)
	for i, tx := range snap.Pending {
		i, tx := i, tx
		g.Go(func() error {
			res, err2 := t.checkReceipt(gctx, tx)
			if err2 != nil {
				t.logger.WithError(err2).WithFields(logrus.Fields{
					"chain_id": tx.SrcChainID,
					"tx_hash":  tx.TxHash,
				}).Warn("can't check transaction receipt")
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	settled := make([]*confirmation, 0, len(results))
	for _, res := range results {
		if res != nil {
			settled = append(settled, res)
		}
	}
	if len(settled) == 0 {
		return nil
	}
	return t.do(ctx, func(s *state) {
		for _, res := range settled {
			t.settle(ctx, s, res)
		}
		s.notify()
	})
}

// checkReceipt returns nil while the transaction is neither mined nor
// timed out.
func (t *Tracker) checkReceipt(ctx context.Context, tx *entity.BridgeTransaction) (*confirmation, error) {
	client, err := t.clients.Get(tx.SrcChainID)
	if err != nil {
		return nil, err
	}
	receipt, err := client.TransactionReceipt(ctx, tx.TxHash)
	if errors.Is(err, ethereum.NotFound) {
		if time.Since(tx.SubmittedAt) > t.cfg.PendingTimeout {
			updated := cloneTx(tx)
			now := time.Now().UTC()
			updated.UpdatedAt = &now
			updated.TxStatus = entity.TxStatusTimedOut
			return &confirmation{key: tx.Key(), tx: updated, err: ErrTimeout}, nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	updated := cloneTx(tx)
	now := time.Now().UTC()
	updated.UpdatedAt = &now
	if receipt.Status != types.ReceiptStatusSuccessful {
		updated.TxStatus = entity.TxStatusReverted
		return &confirmation{key: tx.Key(), tx: updated, receipt: receipt, err: ErrTxReverted}, nil
	}
	updated.TxStatus = entity.TxStatusMined

	chain := t.chains.GetChainConfig(tx.SrcChainID)
	if chain == nil {
		return nil, fmt.Errorf("source chain %d: %w", tx.SrcChainID, config.ErrUnknownChain)
	}
	msgHash, msg, found, err := contract.NewBridgeContract(client, chain.BridgeAddress).FindMessageSent(receipt)
	if err != nil {
		return nil, err
	}
	if found {
		updated.MsgHash = &msgHash
		updated.Message = msg
		updated.DestChainID = msg.DestChainID
	}
	return &confirmation{key: tx.Key(), tx: updated, receipt: receipt}, nil
}

// settle applies a confirmation and persists the final transaction state.
// Transactions removed while the receipt was being fetched are ignored.
func (t *Tracker) settle(ctx context.Context, s *state, res *confirmation) {
	p, ok := s.pending[res.key]
	if !ok {
		return
	}
	delete(s.pending, res.key)
	chainID := strconv.FormatUint(res.key.ChainID, 10)
	logger := t.logger.WithFields(logrus.Fields{
		"chain_id": res.key.ChainID,
		"tx_hash":  res.key.TxHash,
	})

	switch {
	case errors.Is(res.err, ErrTimeout):
		Confirmations.WithLabelValues(chainID, "timeout").Inc()
		logger.Warn("transaction was not mined in time")
	case res.err != nil:
		Confirmations.WithLabelValues(chainID, "reverted").Inc()
		logger.Warn("transaction reverted")
	default:
		Confirmations.WithLabelValues(chainID, "success").Inc()
		logger.WithField("msg_hash", res.tx.MsgHash).Info("transaction confirmed")
	}
	if s.index(res.key) >= 0 {
		s.upsert(res.tx)
		if err := t.persist(ctx, res.tx); err != nil {
			logger.WithError(err).Error("can't persist settled transaction")
		}
	}
	result := &Result{Tx: cloneTx(res.tx), Receipt: res.receipt}
	if res.err != nil {
		p.future.reject(result, res.err)
	} else {
		p.future.resolve(result)
	}
}

// PollStatuses refreshes the destination status of every mined message
// that is not final yet.
func (t *Tracker) PollStatuses(ctx context.Context) error {
	snap, err := t.Snapshot(ctx)
	if err != nil {
		return err
	}
	var open []*entity.BridgeTransaction
	for _, tx := range snap.Transactions {
		if tx.TxStatus == entity.TxStatusMined && tx.MsgHash != nil && !tx.Status.IsFinal() {
			open = append(open, tx)
		}
	}
	if len(open) == 0 {
		return nil
	}

	updates := make([]*entity.BridgeTransaction, len(open))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPolls)
	for i, tx := range open {
		i, tx := i, tx
		g.Go(func() error {
			status, err2 := t.messageStatus(gctx, tx)
			if err2 != nil {
				t.logger.WithError(err2).WithField("msg_hash", tx.MsgHash).Warn("can't get message status")
				return nil
			}
			if status != tx.Status {
				updated := cloneTx(tx)
				updated.Status = status
				now := time.Now().UTC()
				updated.UpdatedAt = &now
				updates[i] = updated
			}
			return nil
		})
	}
	_ = g.Wait()

	changed := make([]*entity.BridgeTransaction, 0, len(updates))
	for _, tx := range updates {
		if tx != nil {
			changed = append(changed, tx)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	return t.do(ctx, func(s *state) {
		for _, tx := range changed {
			if s.index(tx.Key()) < 0 {
				continue
			}
			s.upsert(tx)
			if err2 := t.persist(ctx, tx); err2 != nil {
				t.logger.WithError(err2).WithField("msg_hash", tx.MsgHash).Error("can't persist message status")
			}
			StatusTransitions.WithLabelValues(strconv.FormatUint(tx.DestChainID, 10), tx.Status.String()).Inc()
			t.logger.WithFields(logrus.Fields{
				"msg_hash": tx.MsgHash,
				"status":   tx.Status,
			}).Info("message status changed")
		}
		s.notify()
	})
}

func (t *Tracker) messageStatus(ctx context.Context, tx *entity.BridgeTransaction) (entity.MessageStatus, error) {
	dest := t.chains.GetChainConfig(tx.DestChainID)
	if dest == nil {
		return 0, fmt.Errorf("destination chain %d: %w", tx.DestChainID, config.ErrUnknownChain)
	}
	client, err := t.clients.Get(tx.DestChainID)
	if err != nil {
		return 0, err
	}
	return contract.NewBridgeContract(client, dest.BridgeAddress).GetMessageStatus(ctx, *tx.MsgHash)
}
