package txengine

import "context"

// ChainClient is the remote-operation capability the engine consumes. The
// wrapping application implements the actual wire protocol and signing; the
// engine only drives submissions through it.
type ChainClient interface {
	// Submit signs and broadcasts the transaction described by opCtx and
	// returns the assigned transaction id.
	Submit(ctx context.Context, opCtx OperationContext) (string, error)

	// AwaitReceipt blocks until the transaction has the requested number of
	// confirmations, or fails.
	AwaitReceipt(ctx context.Context, txID string, confirmations uint32) (*Receipt, error)

	// GetReceipt returns the receipt for txID, or nil if the transaction has
	// not been included yet.
	GetReceipt(ctx context.Context, txID string) (*Receipt, error)
}
