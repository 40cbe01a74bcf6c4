package txerrors

import "time"

// Classify turns an arbitrary upstream failure into a canonical error. It is
// total: any input, including nil, yields a well-formed record, and a panic
// anywhere in the pipeline degrades to a SYSTEM/CRITICAL record instead of
// crashing the caller. No I/O is performed.
func Classify(raw error) *CanonicalError {
	return ClassifyWithContext(raw, "")
}

// ClassifyWithContext is Classify with an operation context label attached
// to the resulting record.
func ClassifyWithContext(raw error, opContext string) (result *CanonicalError) {
	defer func() {
		if r := recover(); r != nil {
			result = &CanonicalError{
				Type:        TypeSystem,
				Severity:    SeverityCritical,
				Code:        CodeUnknown,
				UserMessage: "An unexpected error occurred.",
				Retryable:   false,
				Context:     opContext,
				Timestamp:   time.Now(),
			}
		}
	}()

	if raw == nil {
		return unknownError("", opContext)
	}

	// 1. Source-specific adapters, fixed chain.
	for _, adapt := range adapters {
		if ce := adapt(raw); ce != nil {
			if ce.Context == "" {
				ce.Context = opContext
			}
			return ce
		}
	}

	// 2. Ordered pattern table over the raw message, first match wins.
	message := raw.Error()
	for _, r := range patternRules {
		if r.pattern.MatchString(message) {
			ce := fromRule(r, message)
			ce.Context = opContext
			return ce
		}
	}

	// 3. Nothing recognized.
	return unknownError(message, opContext)
}

func unknownError(rawMessage, opContext string) *CanonicalError {
	return &CanonicalError{
		Type:             TypeSystem,
		Severity:         SeverityMedium,
		Code:             CodeUnknown,
		RawMessage:       rawMessage,
		UserMessage:      "An unexpected error occurred.",
		Retryable:        false,
		SuggestedActions: []string{"Try again.", "Contact support if the problem persists."},
		Context:          opContext,
		Timestamp:        time.Now(),
	}
}
