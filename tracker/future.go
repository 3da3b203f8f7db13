package tracker

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/tokenbridge-client/entity"
)

type Result struct {
	Tx      *entity.BridgeTransaction
	Receipt *types.Receipt
}

// Future is settled once, when the tracked transaction gets its first
// confirmation, times out, or the tracker stops.
type Future struct {
	once sync.Once
	done chan struct{}
	res  *Result
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) resolve(res *Result) {
	f.settle(res, nil)
}

func (f *Future) reject(res *Result, err error) {
	f.settle(res, err)
}

func (f *Future) settle(res *Result, err error) {
	f.once.Do(func() {
		f.res = res
		f.err = err
		close(f.done)
	})
}
