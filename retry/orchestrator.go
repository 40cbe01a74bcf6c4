package retry

import (
	"context"
	"sync"
	"time"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"golang.org/x/exp/maps"

	"github.com/perseid-labs/txengine"
	"github.com/perseid-labs/txengine/clock"
	"github.com/perseid-labs/txengine/txerrors"
)

// Operation is the fallible remote call supplied by the caller. It receives
// the context for the current attempt (fee escalation produces a fresh one)
// and the 0-based attempt index.
type Operation func(ctx context.Context, opCtx txengine.OperationContext, attempt int) (any, error)

// AttemptHook is invoked synchronously after each failed attempt is
// recorded, before the inter-attempt delay.
type AttemptHook func(session *Session, attempt Attempt)

// Orchestrator replays operations under a pluggable backoff/fee-escalation
// strategy. It owns the process-wide session registry; construct one per
// engine instance rather than sharing a global.
type Orchestrator struct {
	lggr logger.Logger
	clk  clock.Clock

	lock     sync.RWMutex
	sessions map[string]*Session
}

func NewOrchestrator(lggr logger.Logger, clk clock.Clock) *Orchestrator {
	return &Orchestrator{
		lggr:     logger.Named(lggr, "RetryOrchestrator"),
		clk:      clk,
		sessions: make(map[string]*Session),
	}
}

// ExecuteWithRetry runs op until it succeeds, the classified error is not
// retryable, retries are exhausted, or the session is cancelled. The first
// successful result is returned; otherwise the canonical classification of
// the last failure. Attempts are strictly sequential.
func (o *Orchestrator) ExecuteWithRetry(ctx context.Context, op Operation, opCtx txengine.OperationContext, cfg Config, onAttempt AttemptHook) (any, error) {
	cfg = cfg.withDefaults()
	strategy, err := ForName(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	session := newSession(opCtx, cfg, strategy, o.clk.Now())
	o.addSession(session)

	o.lggr.Debugw("starting retry session", "sessionID", session.ID(), "strategy", strategy.Name(), "maxRetries", cfg.MaxRetries)

	current := session.CurrentContext()
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, opErr := op(ctx, current, attempt)
		if opErr == nil {
			session.finish(o.clk.Now())
			o.lggr.Infow("operation succeeded", "sessionID", session.ID(), "attempt", attempt)
			return result, nil
		}

		cerr := txerrors.ClassifyWithContext(opErr, current.NetworkID)

		if !session.Active() {
			o.lggr.Debugw("session deactivated, not retrying", "sessionID", session.ID(), "attempt", attempt)
			return nil, txerrors.Cancelled("retry session deactivated")
		}

		last := attempt == cfg.MaxRetries || !strategy.ShouldRetry(cerr, attempt, cfg)

		var delay time.Duration
		var feeAdj *FeeAdjustment
		if !last {
			next := attempt + 1
			delay = strategy.ComputeDelay(next, cfg)
			// Only fee-class failures escalate the fee; everything else
			// retries with the context unchanged.
			if cerr.Type == txerrors.TypeGas {
				original := session.OriginalContext().FeePrice
				adjusted, factor := strategy.AdjustFee(original, next, cerr)
				if adjusted != current.FeePrice {
					feeAdj = &FeeAdjustment{OriginalFee: original, AdjustedFee: adjusted, FactorBps: factor}
					current = current.WithFeePrice(adjusted)
					session.setCurrentContext(current)
				}
			}
		}

		record := Attempt{
			Index:         attempt,
			Timestamp:     o.clk.Now(),
			Err:           cerr,
			Delay:         delay,
			FeeAdjustment: feeAdj,
		}
		session.recordAttempt(record)
		if onAttempt != nil {
			onAttempt(session, record)
		}

		if last {
			session.Deactivate()
			o.lggr.Errorw("retries exhausted", "sessionID", session.ID(), "attempts", attempt+1, "code", cerr.Code, "type", cerr.Type)
			return nil, cerr
		}

		o.lggr.Infow("retrying operation", "sessionID", session.ID(), "nextAttempt", attempt+1, "delay", delay, "code", cerr.Code, "feeAdjusted", feeAdj != nil)

		if err := o.clk.SleepCtx(ctx, withJitter(delay, cfg.JitterBps)); err != nil {
			session.Deactivate()
			return nil, txerrors.Cancelled("retry delay interrupted")
		}
		if !session.Active() {
			return nil, txerrors.Cancelled("retry session deactivated")
		}
	}

	// Unreachable: the loop always returns from inside.
	return nil, txerrors.Cancelled("retry session ended unexpectedly")
}

func (o *Orchestrator) addSession(s *Session) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.sessions[s.id] = s
}

// Session returns a live or finished session by id.
func (o *Orchestrator) Session(id string) (*Session, bool) {
	o.lock.RLock()
	defer o.lock.RUnlock()
	s, ok := o.sessions[id]
	return s, ok
}

// Deactivate requests cooperative cancellation of a session. The in-flight
// attempt, if any, completes; no further attempts run.
func (o *Orchestrator) Deactivate(id string) bool {
	o.lock.RLock()
	s, ok := o.sessions[id]
	o.lock.RUnlock()
	if !ok {
		return false
	}
	s.Deactivate()
	return true
}

// InflightCount returns the number of active sessions.
func (o *Orchestrator) InflightCount() int {
	o.lock.RLock()
	defer o.lock.RUnlock()
	count := 0
	for _, s := range o.sessions {
		if s.Active() {
			count++
		}
	}
	return count
}

// ReapSessions drops inactive sessions whose last activity is older than the
// retention period, returning how many were removed.
func (o *Orchestrator) ReapSessions(retention time.Duration) int {
	cutoff := o.clk.Now().Add(-retention)
	o.lock.Lock()
	defer o.lock.Unlock()
	removed := 0
	for _, s := range maps.Values(o.sessions) {
		if !s.Active() && s.LastAttemptTime().Before(cutoff) {
			delete(o.sessions, s.id)
			removed++
		}
	}
	return removed
}
