package txerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcError implements go-ethereum's rpc.Error.
type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }

// rpcDataError additionally carries the structured data field.
type rpcDataError struct {
	rpcError
	data any
}

func (e *rpcDataError) ErrorData() any { return e.data }

// Error("Insufficient balance") ABI-encoded.
const insufficientBalanceRevert = "0x08c379a0" +
	"0000000000000000000000000000000000000000000000000000000000000020" +
	"0000000000000000000000000000000000000000000000000000000000000014" +
	"496e73756666696369656e742062616c616e6365000000000000000000000000"

func TestClassify_InsufficientFunds(t *testing.T) {
	raw := errors.New("insufficient funds for gas * price + value: balance 1000, tx cost 2000")
	ce := Classify(raw)
	require.NotNil(t, ce)
	assert.Equal(t, TypeUser, ce.Type)
	assert.Equal(t, CodeInsufficientFunds, ce.Code)
	assert.Equal(t, SeverityHigh, ce.Severity)
	assert.False(t, ce.Retryable)
	assert.NotEmpty(t, ce.SuggestedActions)
	assert.Equal(t, raw.Error(), ce.RawMessage)
}

func TestClassify_PatternTable(t *testing.T) {
	for _, tc := range []struct {
		name      string
		raw       string
		errType   Type
		code      string
		retryable bool
	}{
		{"timeout", "context deadline exceeded", TypeNetwork, CodeNetworkTimeout, true},
		{"connection refused", "dial tcp 10.0.0.1:8545: connection refused", TypeNetwork, CodeConnectionFailed, true},
		{"rate limited", "429 too many requests", TypeNetwork, CodeRateLimited, true},
		{"underpriced", "replacement transaction underpriced", TypeGas, CodeGasPriceTooLow, true},
		{"out of gas", "out of gas", TypeGas, CodeGasLimitExceeded, true},
		{"nonce too low", "nonce too low", TypeValidation, CodeNonceTooLow, true},
		{"reverted", "execution reverted", TypeContract, CodeExecutionReverted, false},
		{"no code", "no contract code at given address", TypeContract, CodeContractNotFound, false},
		{"user rejected", "user rejected the request", TypeUser, CodeUserRejected, false},
		{"wrong chain", "chain id mismatch", TypeValidation, CodeInvalidNetwork, false},
		{"dust", "amount too small", TypeValidation, CodeBelowMinimum, false},
		{"misconfigured", "missing configuration for network", TypeSystem, CodeConfigError, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ce := Classify(errors.New(tc.raw))
			assert.Equal(t, tc.errType, ce.Type, tc.raw)
			assert.Equal(t, tc.code, ce.Code, tc.raw)
			assert.Equal(t, tc.retryable, ce.Retryable, tc.raw)
		})
	}
}

func TestClassify_Unknown(t *testing.T) {
	ce := Classify(errors.New("some entirely novel failure"))
	assert.Equal(t, TypeSystem, ce.Type)
	assert.Equal(t, CodeUnknown, ce.Code)
	assert.False(t, ce.Retryable)

	ce = Classify(nil)
	require.NotNil(t, ce)
	assert.Equal(t, CodeUnknown, ce.Code)
}

func TestClassify_AlreadyCanonical(t *testing.T) {
	orig := Cancelled("test")
	ce := Classify(fmt.Errorf("wrapped: %w", orig))
	assert.Same(t, orig, ce)
}

func TestClassify_RPCNumericCodes(t *testing.T) {
	for _, tc := range []struct {
		code     int
		expected string
	}{
		{4001, CodeUserRejected},
		{3, CodeExecutionReverted},
		{-32000, CodeRPCInternal},
		{-32002, CodeRateLimited},
		{-32602, CodeInvalidParams},
		{-32603, CodeRPCInternal},
	} {
		ce := Classify(&rpcError{code: tc.code, msg: "opaque provider message"})
		assert.Equal(t, tc.expected, ce.Code, "rpc code %d", tc.code)
	}

	// Unrecognized numeric code falls through to the pattern table.
	ce := Classify(&rpcError{code: -31999, msg: "request timed out"})
	assert.Equal(t, CodeNetworkTimeout, ce.Code)
}

func TestClassify_RevertData(t *testing.T) {
	raw := &rpcDataError{
		rpcError: rpcError{code: 3, msg: "execution reverted"},
		data:     insufficientBalanceRevert,
	}
	ce := Classify(raw)
	assert.Equal(t, TypeContract, ce.Type)
	assert.Equal(t, CodeExecutionReverted, ce.Code)
	assert.Equal(t, "Insufficient balance", ce.UserMessage)
	assert.Equal(t, "Insufficient balance", ce.TechnicalDetails["revertReason"])
	assert.False(t, ce.Retryable)
}

func TestClassify_RevertPayloadInMessage(t *testing.T) {
	raw := errors.New("rpc call failed: " + insufficientBalanceRevert[2:])
	ce := Classify(raw)
	assert.Equal(t, CodeExecutionReverted, ce.Code)
	assert.Equal(t, "Insufficient balance", ce.UserMessage)
}

func TestClassify_ContextLabel(t *testing.T) {
	ce := ClassifyWithContext(errors.New("timeout"), "mainnet")
	assert.Equal(t, "mainnet", ce.Context)
}

func TestCanonicalError_Is(t *testing.T) {
	a := Classify(errors.New("request timed out"))
	b := Classify(errors.New("deadline exceeded"))
	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, Cancelled("x")))
}

func TestIsNonRetryableCode(t *testing.T) {
	assert.True(t, IsNonRetryableCode(CodeUserRejected))
	assert.True(t, IsNonRetryableCode(CodeInsufficientFunds))
	assert.False(t, IsNonRetryableCode(CodeNetworkTimeout))
}

func TestDecodeRevertReason(t *testing.T) {
	assert.Equal(t, "Insufficient balance", decodeRevertReasonHex(insufficientBalanceRevert))
	assert.Equal(t, "", decodeRevertReasonHex("0xdeadbeef"))
	assert.Equal(t, "", decodeRevertReasonHex("not hex at all"))
}
