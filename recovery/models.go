package recovery

import (
	"time"

	"github.com/perseid-labs/txengine"
	"github.com/perseid-labs/txengine/txerrors"
)

// Status is the recovery lifecycle state of a monitored transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStuck     Status = "stuck"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRecovered Status = "recovered"
)

// stuck may re-enter stuck across repeated recovery attempts until resolved
// or exhausted.
var stateTransitions = map[Status][]Status{
	StatusPending: {StatusStuck, StatusRecovered, StatusFailed},
	StatusStuck:   {StatusStuck, StatusCancelled, StatusRecovered, StatusFailed},
}

func (s Status) CanTransitionTo(t Status) bool {
	allowed, exists := stateTransitions[s]
	if !exists {
		return false
	}
	for _, a := range allowed {
		if t == a {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusRecovered
}

// ActionKind names a corrective action offered for a stuck transaction.
type ActionKind string

const (
	ActionCancel  ActionKind = "cancel"
	ActionSpeedUp ActionKind = "speed_up"
	ActionReplace ActionKind = "replace"
	ActionRetry   ActionKind = "retry"
)

// RiskLevel grades how risky an action is for the user.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Action describes one corrective action and whether it is still available.
// An action is disabled once its per-kind attempt cap is reached.
type Action struct {
	Kind         ActionKind
	FeeFactorBps uint32
	Enabled      bool
	Risk         RiskLevel
	Requirements []string
}

// AttemptRecord is one recovery submission, successful or not. Failures
// carry the canonical classification and never escape the manager.
type AttemptRecord struct {
	Kind      ActionKind
	Timestamp time.Time
	TxID      string
	Success   bool
	Reason    string
	Err       *txerrors.CanonicalError
}

// State is the recovery record for one monitored transaction. Context is
// always the original submission context; WatchTxID tracks the transaction
// id currently being watched for a receipt, which moves to the replacement
// after a successful speed-up/replace/retry.
type State struct {
	OriginalTxKey    string
	Status           Status
	StuckSince       *time.Time
	LastActivity     time.Time
	AvailableActions []Action
	Attempts         []AttemptRecord
	Context          txengine.OperationContext
	WatchTxID        string
}
