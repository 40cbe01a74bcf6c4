package txengine

import (
	"math/big"

	gethcommon "github.com/ethereum/go-ethereum/common"
)

// OperationContext carries everything needed to (re)submit one logical
// transaction. It is passed by value between retry attempts; escalated-fee
// attempts are produced with the With* helpers, never by mutating in place.
type OperationContext struct {
	NetworkID     string
	TargetAddress gethcommon.Address
	CallerAddress gethcommon.Address
	Amount        *big.Int
	FeeLimit      uint64
	FeePrice      uint64
	Nonce         *uint64
	TxID          string
	CallData      []byte
	Metadata      map[string]string
}

// Clone returns a deep copy. The zero-cost value copy is not enough because
// of the metadata map and the big.Int amount.
func (c OperationContext) Clone() OperationContext {
	out := c
	if c.Amount != nil {
		out.Amount = new(big.Int).Set(c.Amount)
	}
	if c.Nonce != nil {
		nonce := *c.Nonce
		out.Nonce = &nonce
	}
	if c.CallData != nil {
		out.CallData = append([]byte(nil), c.CallData...)
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// WithFeePrice returns a copy of the context carrying the given fee price.
func (c OperationContext) WithFeePrice(feePrice uint64) OperationContext {
	out := c.Clone()
	out.FeePrice = feePrice
	return out
}

// WithTxID returns a copy of the context carrying the given transaction id.
func (c OperationContext) WithTxID(txID string) OperationContext {
	out := c.Clone()
	out.TxID = txID
	return out
}

// WithCallData returns a copy of the context carrying replacement call data.
func (c OperationContext) WithCallData(callData []byte) OperationContext {
	out := c.Clone()
	out.CallData = append([]byte(nil), callData...)
	return out
}

// Receipt is the finalized-execution record returned by the ledger for a
// submitted transaction.
type Receipt struct {
	TxID          string
	BlockNumber   uint64
	Confirmations uint32
	Success       bool
	RevertData    []byte
}
