// Package operation tracks the single motion command a drive base is executing so that a newer
// command preempts an older one.
package operation

import (
	"context"
	"sync"
	"time"

	goutils "go.viam.com/utils"
)

// SingleOperationManager ensures only 1 operation is happening a time.
// An operation can be nested, so if there is already an operation in progress,
// it can have sub-operations without an issue.
type SingleOperationManager struct {
	mu        sync.Mutex
	currentOp *anOp
}

type somCtxKey byte

const somCtxKeySingleOp = somCtxKey(iota)

type anOp struct {
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// New creates a new operation, cancels the previous one and returns the operation's context
// along with a function to call when done.
func (sm *SingleOperationManager) New(ctx context.Context) (context.Context, func()) {
	if ctx.Value(somCtxKeySingleOp) != nil {
		return ctx, func() {}
	}

	sm.mu.Lock()
	sm.cancelInLock(ctx)

	theOp := &anOp{}
	ctx = context.WithValue(ctx, somCtxKeySingleOp, theOp)
	theOp.ctx, theOp.cancelFunc = context.WithCancel(ctx)
	sm.currentOp = theOp
	sm.mu.Unlock()

	return theOp.ctx, func() {
		sm.mu.Lock()
		if theOp == sm.currentOp {
			sm.currentOp = nil
		}
		sm.mu.Unlock()
		theOp.cancelFunc()
	}
}

// CancelRunning cancels the current operation unless ctx belongs to it.
func (sm *SingleOperationManager) CancelRunning(ctx context.Context) {
	if ctx.Value(somCtxKeySingleOp) != nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.cancelInLock(ctx)
}

// OpRunning returns if there is a current operation.
func (sm *SingleOperationManager) OpRunning() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.currentOp != nil
}

// WaitFor calls cond every pollTime until it returns true or an error, or until ctx is done.
// It does not start an operation of its own, so it can poll while one is running.
func WaitFor(ctx context.Context, pollTime time.Duration, cond func(ctx context.Context) (bool, error)) error {
	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !goutils.SelectContextOrWait(ctx, pollTime) {
			return ctx.Err()
		}
	}
}

func (sm *SingleOperationManager) cancelInLock(ctx context.Context) {
	myOp := ctx.Value(somCtxKeySingleOp)
	op := sm.currentOp

	if op == nil || myOp == op {
		return
	}

	op.cancelFunc()
	sm.currentOp = nil
}
