package recovery

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/smartcontractkit/chainlink-common/pkg/services"
	"github.com/smartcontractkit/chainlink-common/pkg/utils"

	"github.com/perseid-labs/txengine"
	"github.com/perseid-labs/txengine/clock"
	"github.com/perseid-labs/txengine/monitor"
	"github.com/perseid-labs/txengine/status"
	"github.com/perseid-labs/txengine/txerrors"
)

// Client is the slice of the chain capability the manager needs: recovery
// submissions and receipt lookups.
type Client interface {
	Submit(ctx context.Context, opCtx txengine.OperationContext) (string, error)
	GetReceipt(ctx context.Context, txID string) (*txengine.Receipt, error)
}

// StatusRegistrar registers replacement transactions with the status
// tracker. Satisfied by *status.Tracker.
type StatusRegistrar interface {
	StartTracking(txKey string, opCtx txengine.OperationContext, initial status.TxStatus) error
}

// Config tunes the recovery manager.
type Config struct {
	// StuckThreshold is how long a transaction may go without observed
	// activity before it is flagged stuck.
	StuckThreshold time.Duration
	// PollPeriod is the liveness polling interval.
	PollPeriod time.Duration
	// MaxRecoveryAttempts caps attempts independently per action kind.
	MaxRecoveryAttempts int
	CancelFeeBps        uint32
	SpeedUpFeeBps       uint32
	ReplaceFeeBps       uint32
	// AutoRecovery attempts AutoRecoveryOrder actions on transition to
	// stuck, stopping at the first success. Failures are recorded, never
	// raised.
	AutoRecovery      bool
	AutoRecoveryOrder []ActionKind
}

func (c Config) withDefaults() Config {
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = 5 * time.Minute
	}
	if c.PollPeriod <= 0 {
		c.PollPeriod = 10 * time.Second
	}
	if c.MaxRecoveryAttempts <= 0 {
		c.MaxRecoveryAttempts = 3
	}
	if c.CancelFeeBps == 0 {
		c.CancelFeeBps = 11_000
	}
	if c.SpeedUpFeeBps == 0 {
		c.SpeedUpFeeBps = 15_000
	}
	if c.ReplaceFeeBps == 0 {
		c.ReplaceFeeBps = 15_000
	}
	if len(c.AutoRecoveryOrder) == 0 {
		c.AutoRecoveryOrder = []ActionKind{ActionSpeedUp, ActionCancel}
	}
	return c
}

// Manager detects stuck submissions and offers nonce-preserving
// cancel/speed-up/replace actions. It owns the recovery-state registry; all
// mutation goes through its methods.
type Manager struct {
	services.StateMachine
	lggr    logger.Logger
	cfg     Config
	client  Client
	tracker StatusRegistrar
	clk     clock.Clock

	lock   sync.RWMutex
	states map[string]*State

	chStop services.StopChan
	done   sync.WaitGroup
}

func NewManager(lggr logger.Logger, client Client, tracker StatusRegistrar, clk clock.Clock, cfg Config) *Manager {
	return &Manager{
		lggr:    logger.Named(lggr, "RecoveryManager"),
		cfg:     cfg.withDefaults(),
		client:  client,
		tracker: tracker,
		clk:     clk,
		states:  make(map[string]*State),
		chStop:  make(services.StopChan),
	}
}

func (m *Manager) Name() string { return m.lggr.Name() }

func (m *Manager) Start(context.Context) error {
	return m.StartOnce("RecoveryManager", func() error {
		m.done.Add(1)
		go m.monitorLoop()
		return nil
	})
}

func (m *Manager) Close() error {
	return m.StopOnce("RecoveryManager", func() error {
		close(m.chStop)
		m.done.Wait()
		return nil
	})
}

func (m *Manager) HealthReport() map[string]error {
	return map[string]error{m.Name(): m.Healthy()}
}

// StartMonitoring begins liveness polling for a submitted transaction. The
// context must carry the chain nonce; without it no nonce-preserving
// corrective action is possible.
func (m *Manager) StartMonitoring(txKey string, opCtx txengine.OperationContext) error {
	if opCtx.Nonce == nil {
		return fmt.Errorf("cannot monitor %s: context carries no nonce", txKey)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if _, exists := m.states[txKey]; exists {
		return fmt.Errorf("already monitoring: %s", txKey)
	}

	watch := opCtx.TxID
	if watch == "" {
		watch = txKey
	}
	m.states[txKey] = &State{
		OriginalTxKey: txKey,
		Status:        StatusPending,
		LastActivity:  m.clk.Now(),
		Context:       opCtx.Clone(),
		WatchTxID:     watch,
	}
	m.lggr.Debugw("monitoring transaction", "txKey", txKey, "watchTxID", watch, "nonce", *opCtx.Nonce)
	return nil
}

// State returns a snapshot of the recovery record.
func (m *Manager) State(txKey string) (State, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	state, ok := m.states[txKey]
	if !ok {
		return State{}, false
	}
	return snapshotState(state), true
}

// AvailableActions lists the corrective actions for a stuck transaction.
func (m *Manager) AvailableActions(txKey string) []Action {
	m.lock.RLock()
	defer m.lock.RUnlock()
	state, ok := m.states[txKey]
	if !ok {
		return nil
	}
	return append([]Action(nil), state.AvailableActions...)
}

// StopMonitoring drops a recovery record. Dropping a record that is still
// pending or stuck is logged loudly; records are never removed implicitly.
func (m *Manager) StopMonitoring(txKey string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	state, ok := m.states[txKey]
	if !ok {
		return false
	}
	if !state.Status.IsTerminal() {
		m.lggr.Warnw("dropping unresolved recovery state", "txKey", txKey, "status", state.Status)
		if state.Status == StatusStuck {
			monitor.DecStuckTransactions()
		}
	}
	delete(m.states, txKey)
	return true
}

// CancelTransaction resubmits a zero-value self-directed transfer at the
// same nonce as the stuck original, escalating the fee so it wins the nonce
// slot. On success the state becomes cancelled.
func (m *Manager) CancelTransaction(ctx context.Context, txKey string, feePrice *uint64) error {
	original, err := m.beginAction(txKey, ActionCancel)
	if err != nil {
		return err
	}

	fee := txengine.ApplyBps(original.FeePrice, m.cfg.CancelFeeBps)
	if feePrice != nil {
		fee = *feePrice
	}
	cancelCtx := original.Clone()
	cancelCtx.TargetAddress = original.CallerAddress
	cancelCtx.Amount = big.NewInt(0)
	cancelCtx.CallData = nil
	cancelCtx.FeePrice = fee
	cancelCtx.TxID = ""

	_, err = m.submitAction(ctx, txKey, ActionCancel, cancelCtx, func(state *State, newTxID string) {
		if !m.setStatusLocked(state, StatusCancelled) {
			return
		}
		state.WatchTxID = newTxID
		monitor.DecStuckTransactions()
		m.lggr.Infow("cancellation submitted", "txKey", txKey, "cancelTxID", newTxID, "nonce", *cancelCtx.Nonce, "feePrice", fee)
	})
	return err
}

// SpeedUpTransaction resubmits the identical call at the same nonce with a
// higher fee. On success the replacement is registered with the status
// tracker under its new transaction id.
func (m *Manager) SpeedUpTransaction(ctx context.Context, txKey string, feeFactorBps *uint32) (string, error) {
	original, err := m.beginAction(txKey, ActionSpeedUp)
	if err != nil {
		return "", err
	}

	factor := m.cfg.SpeedUpFeeBps
	if feeFactorBps != nil {
		factor = *feeFactorBps
	}
	speedUpCtx := original.WithFeePrice(txengine.ApplyBps(original.FeePrice, factor))
	speedUpCtx.TxID = ""

	return m.submitAction(ctx, txKey, ActionSpeedUp, speedUpCtx, func(state *State, newTxID string) {
		state.WatchTxID = newTxID
		m.registerReplacement(newTxID, speedUpCtx)
		m.lggr.Infow("speed-up submitted", "txKey", txKey, "replacementTxID", newTxID, "nonce", *speedUpCtx.Nonce, "feeFactorBps", factor)
	})
}

// ReplaceTransaction resubmits alternate call data at the same nonce with an
// escalated fee.
func (m *Manager) ReplaceTransaction(ctx context.Context, txKey string, newCallData []byte, feeFactorBps *uint32) (string, error) {
	original, err := m.beginAction(txKey, ActionReplace)
	if err != nil {
		return "", err
	}

	factor := m.cfg.ReplaceFeeBps
	if feeFactorBps != nil {
		factor = *feeFactorBps
	}
	replaceCtx := original.WithCallData(newCallData)
	replaceCtx.FeePrice = txengine.ApplyBps(original.FeePrice, factor)
	replaceCtx.TxID = ""

	return m.submitAction(ctx, txKey, ActionReplace, replaceCtx, func(state *State, newTxID string) {
		state.WatchTxID = newTxID
		m.registerReplacement(newTxID, replaceCtx)
		m.lggr.Infow("replacement submitted", "txKey", txKey, "replacementTxID", newTxID, "nonce", *replaceCtx.Nonce, "feeFactorBps", factor)
	})
}

// RetryTransaction resubmits the identical call at the original fee.
func (m *Manager) RetryTransaction(ctx context.Context, txKey string) (string, error) {
	original, err := m.beginAction(txKey, ActionRetry)
	if err != nil {
		return "", err
	}
	retryCtx := original.Clone()
	retryCtx.TxID = ""

	return m.submitAction(ctx, txKey, ActionRetry, retryCtx, func(state *State, newTxID string) {
		state.WatchTxID = newTxID
		m.registerReplacement(newTxID, retryCtx)
		m.lggr.Infow("retry submitted", "txKey", txKey, "replacementTxID", newTxID, "nonce", *retryCtx.Nonce)
	})
}

// beginAction validates that an action may run and returns the original
// submission context it must derive from.
func (m *Manager) beginAction(txKey string, kind ActionKind) (txengine.OperationContext, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	state, ok := m.states[txKey]
	if !ok {
		return txengine.OperationContext{}, fmt.Errorf("not monitoring: %s", txKey)
	}
	if state.Status != StatusStuck {
		return txengine.OperationContext{}, fmt.Errorf("transaction %s is not stuck (status: %s)", txKey, state.Status)
	}
	if attemptsFor(state, kind) >= m.cfg.MaxRecoveryAttempts {
		return txengine.OperationContext{}, fmt.Errorf("%s attempts exhausted for %s", kind, txKey)
	}
	return state.Context.Clone(), nil
}

// submitAction performs the submission and records the outcome. Submission
// failures are classified, appended to the attempt log with their reason,
// and leave the overall status stuck.
func (m *Manager) submitAction(ctx context.Context, txKey string, kind ActionKind, subCtx txengine.OperationContext, onSuccess func(state *State, newTxID string)) (string, error) {
	newTxID, submitErr := m.client.Submit(ctx, subCtx)
	now := m.clk.Now()

	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.states[txKey]
	if !ok {
		return "", fmt.Errorf("not monitoring: %s", txKey)
	}

	if submitErr != nil {
		cerr := txerrors.ClassifyWithContext(submitErr, subCtx.NetworkID)
		state.Attempts = append(state.Attempts, AttemptRecord{
			Kind:      kind,
			Timestamp: now,
			Success:   false,
			Reason:    cerr.UserMessage,
			Err:       cerr,
		})
		state.AvailableActions = m.buildActionsLocked(state)
		monitor.RecordRecoveryAction(string(kind), "failure")
		m.lggr.Errorw("recovery submission failed", "txKey", txKey, "kind", kind, "code", cerr.Code, "error", submitErr)
		return "", cerr
	}

	state.Attempts = append(state.Attempts, AttemptRecord{
		Kind:      kind,
		Timestamp: now,
		TxID:      newTxID,
		Success:   true,
	})
	state.LastActivity = now
	onSuccess(state, newTxID)
	state.AvailableActions = m.buildActionsLocked(state)
	monitor.RecordRecoveryAction(string(kind), "success")
	return newTxID, nil
}

func (m *Manager) registerReplacement(newTxID string, opCtx txengine.OperationContext) {
	if m.tracker == nil {
		return
	}
	if err := m.tracker.StartTracking(newTxID, opCtx.WithTxID(newTxID), status.Submitted); err != nil {
		m.lggr.Warnw("could not register replacement with status tracker", "txID", newTxID, "error", err)
	}
}

func (m *Manager) buildActionsLocked(state *State) []Action {
	enabled := func(kind ActionKind) bool {
		return attemptsFor(state, kind) < m.cfg.MaxRecoveryAttempts
	}
	return []Action{
		{Kind: ActionSpeedUp, FeeFactorBps: m.cfg.SpeedUpFeeBps, Enabled: enabled(ActionSpeedUp), Risk: RiskLow, Requirements: []string{"balance covers the escalated fee"}},
		{Kind: ActionCancel, FeeFactorBps: m.cfg.CancelFeeBps, Enabled: enabled(ActionCancel), Risk: RiskMedium, Requirements: []string{"original transaction still pending"}},
		{Kind: ActionReplace, FeeFactorBps: m.cfg.ReplaceFeeBps, Enabled: enabled(ActionReplace), Risk: RiskHigh, Requirements: []string{"replacement call data", "original transaction still pending"}},
		{Kind: ActionRetry, FeeFactorBps: txengine.BpsDenominator, Enabled: enabled(ActionRetry), Risk: RiskLow},
	}
}

func (m *Manager) monitorLoop() {
	defer m.done.Done()

	ctx, cancel := m.chStop.NewCtx()
	defer cancel()

	m.lggr.Debugw("monitorLoop: started")
	tick := time.After(utils.WithJitter(m.cfg.PollPeriod))
	for {
		select {
		case <-tick:
			start := time.Now()
			m.checkLiveness(ctx)
			remaining := m.cfg.PollPeriod - time.Since(start)
			tick = time.After(utils.WithJitter(remaining.Abs()))
		case <-m.chStop:
			m.lggr.Debugw("monitorLoop: stopped")
			return
		}
	}
}

// checkLiveness queries a receipt for every unresolved transaction. Checks
// for different keys are independent; one failing lookup never blocks the
// rest.
func (m *Manager) checkLiveness(ctx context.Context) {
	type item struct {
		txKey string
		watch string
	}
	m.lock.RLock()
	var work []item
	for key, state := range m.states {
		if state.Status.IsTerminal() {
			continue
		}
		work = append(work, item{txKey: key, watch: state.WatchTxID})
	}
	m.lock.RUnlock()

	for _, it := range work {
		receipt, err := m.client.GetReceipt(ctx, it.watch)
		if err != nil {
			m.lggr.Errorw("liveness check failed", "txKey", it.txKey, "watchTxID", it.watch, "error", err)
			continue
		}
		if receipt != nil {
			m.markRecovered(it.txKey, receipt)
			continue
		}
		if m.maybeMarkStuck(it.txKey) && m.cfg.AutoRecovery {
			m.autoRecover(ctx, it.txKey)
		}
	}
}

func (m *Manager) markRecovered(txKey string, receipt *txengine.Receipt) {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.states[txKey]
	if !ok || state.Status.IsTerminal() {
		return
	}
	wasStuck := state.Status == StatusStuck
	if !m.setStatusLocked(state, StatusRecovered) {
		return
	}
	if wasStuck {
		monitor.DecStuckTransactions()
	}
	state.LastActivity = m.clk.Now()
	m.lggr.Infow("transaction recovered", "txKey", txKey, "txID", receipt.TxID, "blockNumber", receipt.BlockNumber)
}

// maybeMarkStuck flags a pending transaction stuck once it has been inactive
// past the threshold. Returns true on the pending -> stuck transition.
func (m *Manager) maybeMarkStuck(txKey string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.states[txKey]
	if !ok || state.Status != StatusPending {
		return false
	}
	now := m.clk.Now()
	inactive := now.Sub(state.LastActivity)
	if inactive <= m.cfg.StuckThreshold {
		return false
	}

	if !m.setStatusLocked(state, StatusStuck) {
		return false
	}
	stuckSince := now
	state.StuckSince = &stuckSince
	state.AvailableActions = m.buildActionsLocked(state)
	monitor.IncStuckTransactions()
	m.lggr.Errorw("transaction stuck", "txKey", txKey, "inactive", inactive, "threshold", m.cfg.StuckThreshold)
	return true
}

// autoRecover walks the configured action order and stops at the first
// success. Failures are recorded on the state but never escape.
func (m *Manager) autoRecover(ctx context.Context, txKey string) {
	for _, kind := range m.cfg.AutoRecoveryOrder {
		var err error
		switch kind {
		case ActionCancel:
			err = m.CancelTransaction(ctx, txKey, nil)
		case ActionSpeedUp:
			_, err = m.SpeedUpTransaction(ctx, txKey, nil)
		case ActionRetry:
			_, err = m.RetryTransaction(ctx, txKey)
		case ActionReplace:
			// Replacement needs caller-provided call data, so it cannot run
			// unattended.
			m.lggr.Debugw("skipping replace in auto recovery", "txKey", txKey)
			continue
		default:
			m.lggr.Warnw("unknown auto recovery action", "kind", kind)
			continue
		}
		if err == nil {
			m.lggr.Infow("auto recovery action succeeded", "txKey", txKey, "kind", kind)
			return
		}
		m.lggr.Warnw("auto recovery action failed", "txKey", txKey, "kind", kind, "error", err)
	}
}

// setStatusLocked moves a recovery record through the transition table.
// Callers hold the write lock and only request moves the table allows, so a
// rejection indicates a bug and is logged loudly.
func (m *Manager) setStatusLocked(state *State, to Status) bool {
	if !state.Status.CanTransitionTo(to) {
		m.lggr.Errorw("invalid recovery transition", "txKey", state.OriginalTxKey, "from", state.Status, "to", to)
		return false
	}
	state.Status = to
	return true
}

func attemptsFor(state *State, kind ActionKind) int {
	count := 0
	for _, a := range state.Attempts {
		if a.Kind == kind {
			count++
		}
	}
	return count
}

func snapshotState(state *State) State {
	out := *state
	out.Context = state.Context.Clone()
	out.AvailableActions = append([]Action(nil), state.AvailableActions...)
	out.Attempts = append([]AttemptRecord(nil), state.Attempts...)
	if state.StuckSince != nil {
		t := *state.StuckSince
		out.StuckSince = &t
	}
	return out
}
