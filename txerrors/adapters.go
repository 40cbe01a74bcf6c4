package txerrors

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// An adapter recognizes one known upstream error shape and classifies it
// directly. Adapters are tried in a fixed order before any text matching;
// the first non-nil result wins.
type adapter func(raw error) *CanonicalError

var adapters = []adapter{
	adaptCanonical,
	adaptRPCError,
	adaptRevertMessage,
}

// adaptCanonical short-circuits errors that were already classified, so a
// failure is never re-parsed downstream of its original boundary.
func adaptCanonical(raw error) *CanonicalError {
	var ce *CanonicalError
	if errors.As(raw, &ce) {
		return ce
	}
	return nil
}

// adaptRPCError recognizes go-ethereum JSON-RPC errors carrying a numeric
// code and, optionally, ABI-encoded revert data.
func adaptRPCError(raw error) *CanonicalError {
	var dataErr rpc.DataError
	if errors.As(raw, &dataErr) {
		if payload, ok := dataErr.ErrorData().(string); ok {
			if reason := decodeRevertReasonHex(payload); reason != "" {
				return revertError(raw.Error(), reason)
			}
		}
	}

	var rpcErr rpc.Error
	if !errors.As(raw, &rpcErr) {
		return nil
	}
	r, ok := numericCodeRules[rpcErr.ErrorCode()]
	if !ok {
		return nil
	}
	return fromRule(r, raw.Error())
}

// adaptRevertMessage handles providers that embed the Error(string) hex blob
// in the message text instead of a structured data field.
func adaptRevertMessage(raw error) *CanonicalError {
	reason := findRevertPayload(raw.Error())
	if reason == "" {
		return nil
	}
	return revertError(raw.Error(), reason)
}

func revertError(rawMessage, reason string) *CanonicalError {
	return &CanonicalError{
		Type:             TypeContract,
		Severity:         SeverityHigh,
		Code:             CodeExecutionReverted,
		RawMessage:       rawMessage,
		UserMessage:      reason,
		Retryable:        false,
		SuggestedActions: []string{"Review the transaction parameters.", "Contact support if the problem persists."},
		TechnicalDetails: map[string]string{"revertReason": reason},
		Timestamp:        time.Now(),
	}
}

func fromRule(r rule, rawMessage string) *CanonicalError {
	retryable := r.retryable && !IsNonRetryableCode(r.code)
	return &CanonicalError{
		Type:             r.errType,
		Severity:         r.severity,
		Code:             r.code,
		RawMessage:       rawMessage,
		UserMessage:      r.userMessage,
		Retryable:        retryable,
		SuggestedActions: append([]string(nil), r.actions...),
		Timestamp:        time.Now(),
	}
}
