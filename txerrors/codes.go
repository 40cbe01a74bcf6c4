package txerrors

import "regexp"

// Stable error codes. These are part of the engine's public contract: the
// message/notification layer keys localized copy off them, so renaming one
// is a breaking change.
const (
	CodeNetworkTimeout     = "NETWORK_TIMEOUT"
	CodeConnectionFailed   = "CONNECTION_FAILED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeRPCInternal        = "RPC_INTERNAL"
	CodeUserRejected       = "USER_REJECTED"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeExecutionReverted  = "EXECUTION_REVERTED"
	CodeContractNotFound   = "CONTRACT_NOT_FOUND"
	CodeGasPriceTooLow     = "GAS_PRICE_TOO_LOW"
	CodeGasLimitExceeded   = "GAS_LIMIT_EXCEEDED"
	CodeNonceTooLow        = "NONCE_TOO_LOW"
	CodeInvalidAddress     = "INVALID_ADDRESS"
	CodeInvalidNetwork     = "INVALID_NETWORK"
	CodeBelowMinimum       = "BELOW_MINIMUM"
	CodeInvalidParams      = "INVALID_PARAMS"
	CodeConfigError        = "CONFIG_ERROR"
	CodeOperationCancelled = "OPERATION_CANCELLED"
	CodeUnknown            = "UNKNOWN"
)

// nonRetryableCodes always override type-level retry defaults, whatever the
// classified type says.
var nonRetryableCodes = map[string]struct{}{
	CodeUserRejected:       {},
	CodeInsufficientFunds:  {},
	CodeInvalidAddress:     {},
	CodeInvalidNetwork:     {},
	CodeBelowMinimum:       {},
	CodeContractNotFound:   {},
	CodeConfigError:        {},
	CodeOperationCancelled: {},
}

// IsNonRetryableCode reports whether code is on the fixed denylist.
func IsNonRetryableCode(code string) bool {
	_, ok := nonRetryableCodes[code]
	return ok
}

// rule is one entry of the ordered pattern table. First match wins.
type rule struct {
	pattern     *regexp.Regexp
	errType     Type
	code        string
	severity    Severity
	retryable   bool
	userMessage string
	actions     []string
}

// patternRules is matched case-insensitively against the extracted raw
// message after the source-specific adapters have had their chance.
var patternRules = []rule{
	{
		pattern:     regexp.MustCompile(`(?i)user (rejected|denied|cancelled)|rejected by user|request rejected`),
		errType:     TypeUser,
		code:        CodeUserRejected,
		severity:    SeverityLow,
		retryable:   false,
		userMessage: "The request was rejected in the wallet.",
		actions:     []string{"Approve the request in your wallet to continue."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)insufficient (funds|balance)|not enough (funds|balance)`),
		errType:     TypeUser,
		code:        CodeInsufficientFunds,
		severity:    SeverityHigh,
		retryable:   false,
		userMessage: "The account does not hold enough funds for this transaction.",
		actions:     []string{"Top up the account balance.", "Reduce the transaction amount."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)(deadline|context deadline) exceeded|timed? ?out|timeout`),
		errType:     TypeNetwork,
		code:        CodeNetworkTimeout,
		severity:    SeverityMedium,
		retryable:   true,
		userMessage: "The network did not respond in time.",
		actions:     []string{"The operation will be retried automatically.", "Check your network connection."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)connection (refused|reset)|network (unreachable|error)|no such host|broken pipe|\bEOF\b`),
		errType:     TypeNetwork,
		code:        CodeConnectionFailed,
		severity:    SeverityMedium,
		retryable:   true,
		userMessage: "Could not reach the network endpoint.",
		actions:     []string{"The operation will be retried automatically.", "Verify the node endpoint is reachable."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)rate limit|too many requests|429`),
		errType:     TypeNetwork,
		code:        CodeRateLimited,
		severity:    SeverityMedium,
		retryable:   true,
		userMessage: "The network endpoint is rate limiting requests.",
		actions:     []string{"The operation will be retried with backoff."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)replacement transaction underpriced|transaction underpriced|gas price (too low|below)|max fee per gas less than block base fee|fee too low`),
		errType:     TypeGas,
		code:        CodeGasPriceTooLow,
		severity:    SeverityMedium,
		retryable:   true,
		userMessage: "The offered fee is too low for current network conditions.",
		actions:     []string{"The fee will be increased automatically and the transaction retried."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)out of (gas|energy)|gas limit|intrinsic gas too low|exceeds block gas limit`),
		errType:     TypeGas,
		code:        CodeGasLimitExceeded,
		severity:    SeverityMedium,
		retryable:   true,
		userMessage: "The transaction ran out of gas.",
		actions:     []string{"The gas allowance will be increased automatically and the transaction retried."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)nonce too low|already known|known transaction`),
		errType:     TypeValidation,
		code:        CodeNonceTooLow,
		severity:    SeverityMedium,
		retryable:   true,
		userMessage: "A transaction with this sequence number was already submitted.",
		actions:     []string{"Wait for the pending transaction to settle."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)execution reverted|revert(ed)?\b|VM Exception`),
		errType:     TypeContract,
		code:        CodeExecutionReverted,
		severity:    SeverityHigh,
		retryable:   false,
		userMessage: "The contract rejected the transaction.",
		actions:     []string{"Review the transaction parameters.", "Contact support if the problem persists."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)(contract|code) not (found|deployed)|no (contract )?code at`),
		errType:     TypeContract,
		code:        CodeContractNotFound,
		severity:    SeverityCritical,
		retryable:   false,
		userMessage: "No contract was found at the target address.",
		actions:     []string{"Verify the contract address and network."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)invalid (address|recipient)|bad address checksum|address.*malformed`),
		errType:     TypeValidation,
		code:        CodeInvalidAddress,
		severity:    SeverityHigh,
		retryable:   false,
		userMessage: "The target address is not valid.",
		actions:     []string{"Double-check the address and try again."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)wrong (network|chain)|chain.?id mismatch|unsupported (network|chain)`),
		errType:     TypeValidation,
		code:        CodeInvalidNetwork,
		severity:    SeverityHigh,
		retryable:   false,
		userMessage: "The wallet is connected to the wrong network.",
		actions:     []string{"Switch to the expected network and try again."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)below (the )?minimum|dust (amount|threshold)|amount too (small|low)`),
		errType:     TypeValidation,
		code:        CodeBelowMinimum,
		severity:    SeverityMedium,
		retryable:   false,
		userMessage: "The amount is below the minimum allowed.",
		actions:     []string{"Increase the amount above the minimum."},
	},
	{
		pattern:     regexp.MustCompile(`(?i)(missing|invalid) (config|configuration)|misconfigur`),
		errType:     TypeSystem,
		code:        CodeConfigError,
		severity:    SeverityCritical,
		retryable:   false,
		userMessage: "The application is misconfigured.",
		actions:     []string{"Contact support."},
	},
}

// JSON-RPC numeric codes recognized when no text pattern matched.
// 4001 is the EIP-1193 user rejection code; the -32xxx family is standard
// JSON-RPC, and 3 is the geth execution-revert code.
var numericCodeRules = map[int]rule{
	4001: {
		errType:     TypeUser,
		code:        CodeUserRejected,
		severity:    SeverityLow,
		retryable:   false,
		userMessage: "The request was rejected in the wallet.",
		actions:     []string{"Approve the request in your wallet to continue."},
	},
	3: {
		errType:     TypeContract,
		code:        CodeExecutionReverted,
		severity:    SeverityHigh,
		retryable:   false,
		userMessage: "The contract rejected the transaction.",
		actions:     []string{"Review the transaction parameters."},
	},
	-32000: {
		errType:     TypeSystem,
		code:        CodeRPCInternal,
		severity:    SeverityMedium,
		retryable:   true,
		userMessage: "The node reported an internal error.",
		actions:     []string{"The operation will be retried automatically."},
	},
	-32002: {
		errType:     TypeNetwork,
		code:        CodeRateLimited,
		severity:    SeverityMedium,
		retryable:   true,
		userMessage: "The node is busy processing requests.",
		actions:     []string{"The operation will be retried with backoff."},
	},
	-32602: {
		errType:     TypeValidation,
		code:        CodeInvalidParams,
		severity:    SeverityHigh,
		retryable:   false,
		userMessage: "The request parameters were rejected by the node.",
		actions:     []string{"Review the transaction parameters."},
	},
	-32603: {
		errType:     TypeSystem,
		code:        CodeRPCInternal,
		severity:    SeverityMedium,
		retryable:   true,
		userMessage: "The node reported an internal error.",
		actions:     []string{"The operation will be retried automatically."},
	},
}
