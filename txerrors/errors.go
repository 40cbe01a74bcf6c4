// Package txerrors normalizes arbitrary upstream failures into a canonical
// error taxonomy. Classification happens exactly once at the boundary where
// a failure occurs; every downstream decision (retry eligibility, fee
// escalation, recovery action selection) consumes only the canonical record.
package txerrors

import (
	"fmt"
	"time"
)

// Type is the top-level error category.
type Type string

const (
	TypeNetwork    Type = "NETWORK"
	TypeContract   Type = "CONTRACT"
	TypeUser       Type = "USER"
	TypeGas        Type = "GAS"
	TypeValidation Type = "VALIDATION"
	TypeSystem     Type = "SYSTEM"
)

// Severity grades how serious a canonical error is for operators.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// CanonicalError is the taxonomy-normalized representation of a raw upstream
// failure. Treat values as immutable once built; the classifier never hands
// out shared mutable state.
type CanonicalError struct {
	Type             Type
	Severity         Severity
	Code             string
	RawMessage       string
	UserMessage      string
	Retryable        bool
	SuggestedActions []string
	TechnicalDetails map[string]string
	Context          string
	Timestamp        time.Time
}

var _ error = (*CanonicalError)(nil)

func (e *CanonicalError) Error() string {
	if e.RawMessage != "" && e.RawMessage != e.UserMessage {
		return fmt.Sprintf("%s (%s): %s: %s", e.Code, e.Type, e.UserMessage, e.RawMessage)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Type, e.UserMessage)
}

// Is makes errors.Is match on the stable code, so callers can compare
// against sentinel canonical errors without caring about timestamps or raw
// messages.
func (e *CanonicalError) Is(target error) bool {
	t, ok := target.(*CanonicalError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Cancelled builds the canonical error raised when a retry session is
// deactivated between attempts.
func Cancelled(context string) *CanonicalError {
	return &CanonicalError{
		Type:             TypeUser,
		Severity:         SeverityLow,
		Code:             CodeOperationCancelled,
		UserMessage:      "The operation was cancelled.",
		Retryable:        false,
		SuggestedActions: []string{"Submit the operation again if this was unintentional."},
		Context:          context,
		Timestamp:        time.Now(),
	}
}
