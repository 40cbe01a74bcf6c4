package status

import (
	"fmt"
	"time"

	"github.com/perseid-labs/txengine"
	"github.com/perseid-labs/txengine/txerrors"
)

// TxStatus is the lifecycle state of a tracked transaction.
type TxStatus int

const (
	Preparing TxStatus = iota
	Validating
	WaitingConfirmation
	Submitted
	Confirming
	Completed
	Failed
	Retrying
)

func (s TxStatus) String() string {
	switch s {
	case Preparing:
		return "PREPARING"
	case Validating:
		return "VALIDATING"
	case WaitingConfirmation:
		return "WAITING_CONFIRMATION"
	case Submitted:
		return "SUBMITTED"
	case Confirming:
		return "CONFIRMING"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	case Retrying:
		return "RETRYING"
	default:
		return fmt.Sprintf("TxStatus(%d)", s)
	}
}

// Failed is reachable from every non-terminal state; Completed and Failed
// are terminal and absorbing.
var stateTransitions = map[TxStatus][]TxStatus{
	Preparing:           {Validating, Failed},
	Validating:          {WaitingConfirmation, Failed},
	WaitingConfirmation: {Submitted, Retrying, Failed},
	Submitted:           {Confirming, Retrying, Failed},
	Confirming:          {Completed, Failed},
	Retrying:            {WaitingConfirmation, Failed},
}

func (s TxStatus) CanTransitionTo(t TxStatus) bool {
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

func (s TxStatus) IsTerminal() bool {
	return s == Completed || s == Failed
}

// progressTable maps each status to a completion percentage. Confirming is
// interpolated upward toward 100 proportional to confirmations/target.
var progressTable = map[TxStatus]int{
	Preparing:           5,
	Validating:          15,
	WaitingConfirmation: 25,
	Submitted:           40,
	Confirming:          70,
	Completed:           100,
	Failed:              100,
	Retrying:            25,
}

// StatusUpdate is the typed event delivered to subscribers.
type StatusUpdate struct {
	TxKey         string
	Status        TxStatus
	Message       string
	Confirmations uint32
	Progress      int
	Meta          map[string]string
	Timestamp     time.Time
}

// Entry is the tracked record for one transaction key. Copies handed out by
// the tracker are snapshots; mutating them has no effect.
type Entry struct {
	TxKey               string
	Context             txengine.OperationContext
	Status              TxStatus
	StartTime           time.Time
	LastUpdate          time.Time
	Updates             []StatusUpdate
	Confirmations       uint32
	Err                 *txerrors.CanonicalError
	EstimatedCompletion time.Time
}
