// Package testutils provides shared test doubles for the engine packages.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/perseid-labs/txengine"
)

// SubmitResult scripts one Submit outcome.
type SubmitResult struct {
	TxID string
	Err  error
}

// FakeChainClient is a scriptable in-memory chain. Submit outcomes are
// consumed in FIFO order; once the script is exhausted every submission
// succeeds with a generated transaction id.
type FakeChainClient struct {
	mu            sync.Mutex
	script        []SubmitResult
	submitted     []txengine.OperationContext
	receipts      map[string]*txengine.Receipt
	receiptErrs   map[string]error
	nextSeq       int
	onSubmit      func(opCtx txengine.OperationContext)
	receiptCalled map[string]int
}

var _ txengine.ChainClient = (*FakeChainClient)(nil)

func NewFakeChainClient() *FakeChainClient {
	return &FakeChainClient{
		receipts:      make(map[string]*txengine.Receipt),
		receiptErrs:   make(map[string]error),
		receiptCalled: make(map[string]int),
	}
}

// QueueSubmit appends one scripted Submit outcome.
func (f *FakeChainClient) QueueSubmit(txID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, SubmitResult{TxID: txID, Err: err})
}

// OnSubmit registers a callback invoked under the client lock for every
// submission, scripted or not.
func (f *FakeChainClient) OnSubmit(fn func(opCtx txengine.OperationContext)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSubmit = fn
}

func (f *FakeChainClient) Submit(_ context.Context, opCtx txengine.OperationContext) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, opCtx.Clone())
	if f.onSubmit != nil {
		f.onSubmit(opCtx)
	}
	if len(f.script) > 0 {
		next := f.script[0]
		f.script = f.script[1:]
		return next.TxID, next.Err
	}
	f.nextSeq++
	return fmt.Sprintf("0xtx%04d", f.nextSeq), nil
}

// SetReceipt scripts the receipt returned for a transaction id. A nil
// receipt means "not yet included".
func (f *FakeChainClient) SetReceipt(txID string, receipt *txengine.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if receipt == nil {
		delete(f.receipts, txID)
		return
	}
	f.receipts[txID] = receipt
}

// SetReceiptErr makes GetReceipt fail for a transaction id.
func (f *FakeChainClient) SetReceiptErr(txID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.receiptErrs, txID)
		return
	}
	f.receiptErrs[txID] = err
}

func (f *FakeChainClient) GetReceipt(_ context.Context, txID string) (*txengine.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptCalled[txID]++
	if err, ok := f.receiptErrs[txID]; ok {
		return nil, err
	}
	receipt, ok := f.receipts[txID]
	if !ok {
		return nil, nil
	}
	out := *receipt
	return &out, nil
}

func (f *FakeChainClient) AwaitReceipt(ctx context.Context, txID string, confirmations uint32) (*txengine.Receipt, error) {
	for {
		receipt, err := f.GetReceipt(ctx, txID)
		if err != nil {
			return nil, err
		}
		if receipt != nil && receipt.Confirmations >= confirmations {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Submitted returns every submission context in order.
func (f *FakeChainClient) Submitted() []txengine.OperationContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]txengine.OperationContext, len(f.submitted))
	for i, c := range f.submitted {
		out[i] = c.Clone()
	}
	return out
}

func (f *FakeChainClient) SubmitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

// ReceiptCalls returns how many times GetReceipt was asked about a
// transaction id.
func (f *FakeChainClient) ReceiptCalls(txID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receiptCalled[txID]
}
