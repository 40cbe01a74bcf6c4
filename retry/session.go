package retry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perseid-labs/txengine"
	"github.com/perseid-labs/txengine/txerrors"
)

// FeeAdjustment records one fee escalation. OriginalFee is the session's
// starting fee price; factors always apply to it, never compound on top of a
// previously adjusted fee.
type FeeAdjustment struct {
	OriginalFee uint64
	AdjustedFee uint64
	FactorBps   uint32
}

// Attempt is the record of one failed execution within a session.
type Attempt struct {
	// Index is 0-based and increases by exactly one per attempt.
	Index         int
	Timestamp     time.Time
	Err           *txerrors.CanonicalError
	Delay         time.Duration
	FeeAdjustment *FeeAdjustment
}

// Session is the bounded attempt sequence of one logical submission. A
// session is single-flight: the orchestrator never runs two attempts of the
// same session concurrently. Sessions are deactivated on success,
// exhaustion, or explicit cancellation and never reused.
type Session struct {
	mu sync.RWMutex

	id          string
	originalCtx txengine.OperationContext
	currentCtx  txengine.OperationContext
	cfg         Config
	strategy    Strategy

	attempts        []Attempt
	startTime       time.Time
	lastAttemptTime time.Time
	active          bool
}

func newSession(opCtx txengine.OperationContext, cfg Config, strategy Strategy, now time.Time) *Session {
	return &Session{
		id:          uuid.NewString(),
		originalCtx: opCtx.Clone(),
		currentCtx:  opCtx.Clone(),
		cfg:         cfg,
		strategy:    strategy,
		startTime:   now,
		active:      true,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Deactivate requests cooperative cancellation. The orchestrator checks the
// flag between attempts, never mid-call.
func (s *Session) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

func (s *Session) OriginalContext() txengine.OperationContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.originalCtx.Clone()
}

func (s *Session) CurrentContext() txengine.OperationContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentCtx.Clone()
}

func (s *Session) Attempts() []Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Attempt(nil), s.attempts...)
}

func (s *Session) StartTime() time.Time { return s.startTime }

func (s *Session) LastAttemptTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAttemptTime
}

func (s *Session) Strategy() Strategy { return s.strategy }

func (s *Session) recordAttempt(a Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
	s.lastAttemptTime = a.Timestamp
}

func (s *Session) setCurrentContext(opCtx txengine.OperationContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentCtx = opCtx
}

func (s *Session) finish(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.lastAttemptTime = now
}
